package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw site request into a serialized estimate.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline consumes site requests, estimates runoff, and publishes the results.
type Pipeline struct {
	extractor      BatchExtractor
	transformer    Transformer
	loader         BatchLoader
	logger         *slog.Logger
	metrics        *observability.Metrics
	ready          atomic.Bool
	batchSize      int
	backoffInitial time.Duration
	backoffMax     time.Duration
}

const (
	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
)

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:      e,
		transformer:    t,
		loader:         l,
		logger:         logger,
		metrics:        metrics,
		batchSize:      batchSize,
		backoffInitial: defaultBackoffInitial,
		backoffMax:     defaultBackoffMax,
	}
}

// WithBackoff sets the retry delay bounds. Non-positive values keep the
// current setting.
func (p *Pipeline) WithBackoff(initial, maxDelay time.Duration) *Pipeline {
	if initial > 0 {
		p.backoffInitial = initial
	}
	if maxDelay > 0 {
		p.backoffMax = maxDelay
	}
	p.backoffMax = max(p.backoffMax, p.backoffInitial)
	return p
}

// CheckReadiness returns nil once the pipeline has published at least one
// estimate.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any estimates yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"batch_size", p.batchSize,
		"backoff_initial", p.backoffInitial,
		"backoff_max", p.backoffMax,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := p.backoffInitial

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. A batch that fails to
// load, or hits an unavailable provider, is retried in place until it
// succeeds or the context ends. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = p.backoffInitial

	for {
		loaded, reason, err := p.transformAndLoad(ctx, rawBatch)
		if err == nil {
			if loaded > 0 {
				p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
				p.ready.Store(true)
			}
			*backoff = p.backoffInitial
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.metrics.BatchRetries.WithLabelValues(reason).Inc()
		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
	}
}

// Retry reasons reported on BatchRetries.
const (
	retryLoad     = "load"
	retryProvider = "provider"
)

// transformAndLoad estimates each message, loads the successes, and commits
// the whole batch. Requests that can never be estimated are skipped. When a
// provider is unavailable or the load fails nothing is committed and the
// retry reason is returned with the error.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent) (int, string, error) {
	outBatch := make([]domain.OutputEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return 0, "", ctx.Err()
			}
			if errors.Is(err, domain.ErrProviderUnavailable) {
				p.logger.Warn("provider unavailable, holding batch for retry",
					"error", err,
					"key", string(raw.Key),
					"partition", raw.Partition,
					"offset", raw.Offset,
				)
				return 0, retryProvider, err
			}
			p.logger.Warn("estimate failed, skipping message",
				"error", err,
				"key", string(raw.Key),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			continue
		}
		outBatch = append(outBatch, out)
	}

	if len(outBatch) > 0 {
		if err := p.loader.LoadBatch(ctx, outBatch); err != nil {
			p.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch))
			return 0, retryLoad, err
		}
		p.metrics.MessagesProduced.Add(float64(len(outBatch)))
	}

	// Commits follow the load and run in offset order, so a skipped message
	// never commits past an estimate that was not published.
	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), "", nil
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, p.backoffMax)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
