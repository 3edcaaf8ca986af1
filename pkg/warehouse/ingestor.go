package warehouse

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/stats"
)

// Ingestor buffers normalized entries and flushes them to the sink. A batch
// size of 1 sends each entry immediately as a single update; larger sizes
// group entries into bulk ingests. Successful flush is the only path that
// clears the buffer, so a failed batch can be resent unchanged.
type Ingestor struct {
	client    Client
	batchSize int
	buffer    []*catalog.Entry
	run       *stats.Run
	retry     *RetryPolicy
	log       *zap.Logger
}

// IngestorOption customizes an Ingestor
type IngestorOption func(*Ingestor)

// WithRetryPolicy overrides the sink retry policy
func WithRetryPolicy(rp *RetryPolicy) IngestorOption {
	return func(in *Ingestor) { in.retry = rp }
}

// NewIngestor creates an Ingestor writing through client
func NewIngestor(client Client, batchSize int, run *stats.Run, log *zap.Logger, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		client:    client,
		batchSize: batchSize,
		run:       run,
		retry:     DefaultRetryPolicy(),
		log:       log.With(zap.String("component", "ingestor")),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Submit accepts one entry, or nil to force a flush of whatever is buffered.
// In single mode (batch size 1) each entry is sent immediately. In batched
// mode the entry is appended and the buffer flushed once it reaches the
// batch size. Any sink rejection is logged with its sub-errors and returned;
// the buffer is left exactly as it was.
func (in *Ingestor) Submit(ctx context.Context, entry *catalog.Entry) error {
	if entry != nil && in.batchSize == 1 {
		return in.updateSingle(ctx, entry)
	}

	if entry != nil {
		in.buffer = append(in.buffer, entry)
	}

	if len(in.buffer) == 0 {
		return nil
	}
	if entry != nil && in.batchSize > 0 && len(in.buffer) < in.batchSize {
		return nil
	}

	return in.flush(ctx)
}

// Flush sends all buffered entries regardless of the batch size threshold.
// Flushing an empty buffer is a no-op.
func (in *Ingestor) Flush(ctx context.Context) error {
	if len(in.buffer) == 0 {
		return nil
	}
	return in.flush(ctx)
}

// Buffered returns the number of entries awaiting flush
func (in *Ingestor) Buffered() int {
	return len(in.buffer)
}

func (in *Ingestor) updateSingle(ctx context.Context, entry *catalog.Entry) error {
	err := in.retry.ExecuteWithCondition(ctx, func() error {
		return in.client.UpdateEntry(ctx, entry)
	}, retryableSinkError)
	if err != nil {
		in.logSinkError(err)
		return err
	}

	in.run.AddUpdates(1)
	return nil
}

func (in *Ingestor) flush(ctx context.Context) error {
	count := len(in.buffer)

	err := in.retry.ExecuteWithCondition(ctx, func() error {
		return in.client.Ingest(ctx, in.buffer)
	}, retryableSinkError)
	if err != nil {
		// Buffer stays intact so a later retry resends the same batch
		in.logSinkError(err)
		return err
	}

	in.run.AddUpdates(int64(count))
	in.log.Debug("flushed entries", zap.Int("count", count))
	in.buffer = in.buffer[:0]
	return nil
}

func (in *Ingestor) logSinkError(err error) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		in.log.Error("sink API error",
			zap.String("code", apiErr.Code),
			zap.String("message", apiErr.Message))
		if sub := apiErr.SubErrorSummary(); sub != "" {
			in.log.Error("sink API sub-errors", zap.String("errors", sub))
		}
		return
	}
	in.log.Error("sink call failed", zap.Error(err))
}

// retryableSinkError accepts transport-level failures and sink rejections
// that indicate transient overload
func retryableSinkError(err error) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return errors.IsRetryable(err)
}
