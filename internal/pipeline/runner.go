// Package pipeline orchestrates refresh cycles: fetch the catalog document,
// transform qualifying records, and deliver them to the configured
// destination. Batch mode runs one cycle; daemon mode repeats under the
// adaptive scheduler until cancelled.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/endpoint"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/metrics"
	"github.com/ncsa/training-sync/pkg/schedule"
	"github.com/ncsa/training-sync/pkg/source"
	"github.com/ncsa/training-sync/pkg/stats"
	"github.com/ncsa/training-sync/pkg/transform"
	"github.com/ncsa/training-sync/pkg/warehouse"
)

// drainTimeout bounds the best-effort flush performed after cancellation
const drainTimeout = 30 * time.Second

// TriggerStartup labels the first cycle of a run
const TriggerStartup = "startup"

// Runner owns the per-cycle state and the daemon loop
type Runner struct {
	dst         *endpoint.Endpoint
	reader      source.Reader
	transformer *transform.Transformer
	ingestor    *warehouse.Ingestor
	sched       *schedule.Scheduler
	run         *stats.Run
	now         func() time.Time
	log         *zap.Logger
}

// Option customizes a Runner
type Option func(*Runner)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner wires a runner for the given destination. The ingestor may be
// nil for the file and analyze destinations.
func NewRunner(dst *endpoint.Endpoint, reader source.Reader, transformer *transform.Transformer,
	ingestor *warehouse.Ingestor, sched *schedule.Scheduler, run *stats.Run, log *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		dst:         dst,
		reader:      reader,
		transformer: transformer,
		ingestor:    ingestor,
		sched:       sched,
		run:         run,
		now:         time.Now,
		log:         log.With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cycles until done. In batch mode exactly one cycle runs. In
// daemon mode the scheduler gates each following cycle; an unreachable
// source skips the cycle and the loop keeps scheduling, while config, parse,
// and sink errors end the run.
func (r *Runner) Run(ctx context.Context, daemon bool) error {
	trigger := TriggerStartup

	for {
		start := r.now()

		err := r.Cycle(ctx)
		metrics.ObserveCycle(trigger, err)

		switch {
		case err == nil:
		case errors.IsType(err, errors.ErrorTypeSignal):
			return err
		case errors.IsType(err, errors.ErrorTypeSource):
			// The source being down costs one cycle, never the process
			r.log.Error("cycle skipped, no data from source", zap.Error(err))
			if !daemon {
				return nil
			}
		default:
			return err
		}

		if !daemon {
			return nil
		}

		reason, err := r.sched.Wait(ctx, start)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSignal, "daemon interrupted while sleeping")
		}
		trigger = string(reason)
	}
}

// Cycle performs one fetch, transform, and deliver pass and logs the
// elapsed-time summary
func (r *Runner) Cycle(ctx context.Context) error {
	start := r.now()
	r.run.Reset()

	fetchStart := time.Now()
	doc, err := r.reader.Fetch(ctx)
	metrics.SourceFetchDuration.Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		return err
	}

	switch r.dst.Scheme {
	case endpoint.SchemeFile:
		_, err = source.WriteCache(r.dst.Path, doc, r.log)
	case endpoint.SchemeAnalyze:
		err = r.analyze(doc)
	case endpoint.SchemeIndex:
		err = r.warehouse(ctx, doc)
	default:
		err = errors.New(errors.ErrorTypeInternal, "unhandled destination scheme").
			WithDetail("scheme", r.dst.Scheme)
	}
	if err != nil {
		return err
	}

	elapsed := r.now().Sub(start)
	r.log.Info(r.run.Summary(elapsed))
	metrics.RecordsProcessed.WithLabelValues("update").Add(float64(r.run.Updates()))
	metrics.RecordsProcessed.WithLabelValues("delete").Add(float64(r.run.Deletes()))
	metrics.RecordsProcessed.WithLabelValues("skipped").Add(float64(r.run.Skipped()))
	return nil
}

// analyze transforms the document and reports what would be ingested,
// without touching the sink
func (r *Runner) analyze(doc *catalog.Document) error {
	entries, err := r.transformer.Transform(doc, r.run)
	if err != nil {
		return err
	}

	r.log.Info("analysis complete",
		zap.Int("records", len(doc.Results)),
		zap.Int("entries", len(entries)),
		zap.Int64("skipped", r.run.Skipped()))
	for _, entry := range entries {
		r.log.Debug("would ingest", zap.String("subject", entry.Subject))
	}
	return nil
}

// warehouse transforms the document and submits each entry, flushing the
// remainder at the end. Cancellation is checked between entries; whatever is
// buffered gets one best-effort flush before the cycle reports the signal.
func (r *Runner) warehouse(ctx context.Context, doc *catalog.Document) error {
	entries, err := r.transformer.Transform(doc, r.run)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return r.drain(ctx.Err())
		}

		err := r.ingestor.Submit(ctx, entry)
		metrics.BufferDepth.Set(float64(r.ingestor.Buffered()))
		if err != nil {
			if ctx.Err() != nil {
				return r.drain(ctx.Err())
			}
			return err
		}
	}

	flushStart := time.Now()
	if err := r.ingestor.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			return r.drain(ctx.Err())
		}
		return err
	}
	metrics.FlushDuration.Observe(time.Since(flushStart).Seconds())
	metrics.BufferDepth.Set(0)
	return nil
}

// drain attempts one flush of the buffered entries on a fresh context so a
// shutdown loses as little as possible, then reports the termination
func (r *Runner) drain(cause error) error {
	if r.ingestor != nil && r.ingestor.Buffered() > 0 {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		r.log.Warn("terminating, flushing buffered entries",
			zap.Int("buffered", r.ingestor.Buffered()))
		if err := r.ingestor.Flush(drainCtx); err != nil {
			r.log.Error("shutdown flush failed, buffered entries lost", zap.Error(err))
		}
	}

	return errors.Wrap(cause, errors.ErrorTypeSignal, "terminated during cycle")
}
