package slots

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mintoctopus/reserve/internal/observability"
)

// Extractor is the public extraction contract: total, non-blocking past
// the configured timeout, and error-free. The returned batch may be
// empty, never nil.
type Extractor interface {
	Extract(ctx context.Context, text string, ref time.Time) Batch
}

// modelTier is what the engine needs from the LLM tier. Satisfied by
// *ModelExtractor; tests substitute a stub.
type modelTier interface {
	Extract(ctx context.Context, text string, ref time.Time) (Batch, error)
}

// Engine chains the model tier and the rule-based fallback. The model
// tier runs only when configured; any failure, including an answer with
// no usable slot, falls through silently to the fallback. The caller
// never sees which tier answered except through SlotCandidate.Source.
type Engine struct {
	model    modelTier // nil when no API key is configured
	fallback *FallbackExtractor
	metrics  *observability.Metrics

	// degradedLog throttles the degraded-mode log line to once a
	// minute so a model outage does not flood the log.
	degradedLog *rate.Limiter
}

// NewEngine builds the extraction engine. Pass a nil model to run on
// the fallback tier alone.
func NewEngine(model *ModelExtractor, fallback *FallbackExtractor, metrics *observability.Metrics) *Engine {
	e := &Engine{
		fallback:    fallback,
		metrics:     metrics,
		degradedLog: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	if model != nil {
		e.model = model
	}
	return e
}

// Extract implements Extractor.
func (e *Engine) Extract(ctx context.Context, text string, ref time.Time) Batch {
	if e.model != nil {
		batch, err := e.model.Extract(ctx, text, ref)
		if err == nil {
			return batch
		}
		e.recordDegraded(err)
	}
	return e.fallback.Extract(text, ref)
}

func (e *Engine) recordDegraded(err error) {
	if e.metrics != nil {
		e.metrics.RecordDegraded()
	}
	if e.degradedLog.Allow() {
		slog.Warn("slot extraction degraded to fallback tier", "error", err)
	}
}
