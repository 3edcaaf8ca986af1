// Package schedule implements the adaptive refresh scheduler: how long to
// sleep between cycles, and which condition wakes a refresh early.
package schedule

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ncsa/training-sync/pkg/clients"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/json"
)

// Reason identifies which condition triggered a refresh
type Reason string

const (
	// ReasonNone means no refresh condition held
	ReasonNone Reason = ""
	// ReasonBoundary means the UTC noon or midnight boundary was crossed
	ReasonBoundary Reason = "half_day_boundary"
	// ReasonStale means data age exceeded the staleness threshold
	ReasonStale Reason = "stale"
	// ReasonUpstream means the upstream probe reported a newer update
	ReasonUpstream Reason = "upstream_update"
)

// Config holds the scheduling intervals
type Config struct {
	// PeakSleep is used while the current UTC hour is in [12, 24)
	PeakSleep time.Duration
	// OffSleep is used outside the peak window
	OffSleep time.Duration
	// MaxStale bounds the age of data before a forced refresh
	MaxStale time.Duration
}

// SleepFor returns the interval to sleep starting at now. Peak hours cover
// 12:00 to 24:00 UTC, roughly 6 AM to 6 PM US Central.
func SleepFor(now time.Time, cfg Config) time.Duration {
	if now.UTC().Hour() >= 12 {
		return cfg.PeakSleep
	}
	return cfg.OffSleep
}

// Decide evaluates the clock-driven refresh conditions. It is pure so the
// boundary and staleness rules can be tested without sleeping. The upstream
// probe is network I/O and is handled separately by the Scheduler.
func Decide(now, lastRun time.Time, cfg Config) (Reason, bool) {
	// Crossing noon or midnight UTC forces at least two refreshes per day
	if (now.UTC().Hour() < 12) != (lastRun.UTC().Hour() < 12) {
		return ReasonBoundary, true
	}

	if now.Sub(lastRun) > cfg.MaxStale {
		return ReasonStale, true
	}

	return ReasonNone, false
}

// ProbeFunc reports when the upstream data was last updated
type ProbeFunc func(ctx context.Context) (time.Time, error)

// Scheduler blocks between refresh cycles. The sleep and clock functions are
// injectable so tests never wait on the wall clock.
type Scheduler struct {
	cfg   Config
	probe ProbeFunc
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *zap.Logger
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithProbe sets the optional upstream last-update probe
func WithProbe(probe ProbeFunc) Option {
	return func(s *Scheduler) { s.probe = probe }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep overrides the blocking wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// NewScheduler creates a Scheduler with real clock and sleep
func NewScheduler(cfg Config, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:   cfg,
		now:   time.Now,
		sleep: ctxSleep,
		log:   log.With(zap.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until a refresh condition fires and returns the reason. It
// sleeps for the interval appropriate to the current UTC hour, then checks
// the boundary, staleness, and upstream conditions in that order, looping
// until one holds. Cancelling ctx ends the wait with the context error.
func (s *Scheduler) Wait(ctx context.Context, lastRun time.Time) (Reason, error) {
	for {
		d := SleepFor(s.now(), s.cfg)
		s.log.Debug("sleeping", zap.Duration("interval", d))
		if err := s.sleep(ctx, d); err != nil {
			return ReasonNone, err
		}

		now := s.now()
		if reason, ok := Decide(now, lastRun, s.cfg); ok {
			switch reason {
			case ReasonBoundary:
				s.log.Info("REFRESH TRIGGER: half-day boundary crossed")
			case ReasonStale:
				s.log.Info("REFRESH TRIGGER: data stale",
					zap.Duration("age", now.Sub(lastRun)),
					zap.Duration("threshold", s.cfg.MaxStale))
			}
			return reason, nil
		}

		if s.probe == nil {
			continue
		}

		// A probe failure is logged and ignored so an optional signal can
		// never stall the daemon
		updated, err := s.probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ReasonNone, ctx.Err()
			}
			s.log.Error("upstream probe failed", zap.Error(err))
			continue
		}

		s.log.Info("upstream last update",
			zap.Time("upstream", updated), zap.Time("last_run", lastRun))
		if updated.After(lastRun) {
			s.log.Info("REFRESH TRIGGER: upstream updated since last run")
			return ReasonUpstream, nil
		}
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// lastUpdateBody is the payload shape served by the probe URL
type lastUpdateBody struct {
	LastUpdateTime string `json:"last_update_time"`
}

var probeTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05-07:00",
}

// NewHTTPProbe builds a ProbeFunc that GETs url and reads the
// last_update_time field from the JSON response
func NewHTTPProbe(url string, client *clients.HTTPClient) ProbeFunc {
	return func(ctx context.Context) (time.Time, error) {
		resp, err := client.Get(ctx, url, map[string]string{"Accept": "application/json"})
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.ErrorTypeConnection, "fetching last-update probe").
				WithDetail("url", url)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return time.Time{}, errors.New(errors.ErrorTypeSource, "last-update probe returned non-success status").
				WithDetail("status", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.ErrorTypeConnection, "reading last-update probe body")
		}

		var body lastUpdateBody
		if err := json.Unmarshal(data, &body); err != nil {
			return time.Time{}, errors.Wrap(err, errors.ErrorTypeParse, "parsing last-update probe body")
		}

		ts, err := parseProbeTime(body.LastUpdateTime)
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.ErrorTypeParse, "parsing last_update_time").
				WithDetail("value", body.LastUpdateTime)
		}
		return ts, nil
	}
}

func parseProbeTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range probeTimeFormats {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
