// Package stats tracks per-cycle run counters.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Run holds the counters for one refresh cycle. Counters are reset at the
// start of every cycle and reported once at cycle end.
type Run struct {
	updates int64
	deletes int64
	skipped int64
}

// Reset clears all counters
func (r *Run) Reset() {
	atomic.StoreInt64(&r.updates, 0)
	atomic.StoreInt64(&r.deletes, 0)
	atomic.StoreInt64(&r.skipped, 0)
}

// AddUpdates increments the update counter by n
func (r *Run) AddUpdates(n int64) {
	atomic.AddInt64(&r.updates, n)
}

// AddDeletes increments the delete counter by n
func (r *Run) AddDeletes(n int64) {
	atomic.AddInt64(&r.deletes, n)
}

// AddSkipped increments the skipped counter by n
func (r *Run) AddSkipped(n int64) {
	atomic.AddInt64(&r.skipped, n)
}

// Updates returns the update count
func (r *Run) Updates() int64 { return atomic.LoadInt64(&r.updates) }

// Deletes returns the delete count
func (r *Run) Deletes() int64 { return atomic.LoadInt64(&r.deletes) }

// Skipped returns the skipped count
func (r *Run) Skipped() int64 { return atomic.LoadInt64(&r.skipped) }

// Summary formats the cycle summary line
func (r *Run) Summary(elapsed time.Duration) string {
	return fmt.Sprintf("Processed in %.3f/seconds: %d/updates, %d/deletes, %d/skipped",
		elapsed.Seconds(), r.Updates(), r.Deletes(), r.Skipped())
}
