package scorer

import (
	"context"
	"log/slog"

	"dutyguard/internal/classify"
	"dutyguard/internal/domain"
	"dutyguard/pkg/platform/circuit"
)

// Fallback routes scoring through a primary scorer guarded by a circuit
// breaker, degrading to a secondary scorer while the breaker is open. The
// workflow keeps classifying when the LLM is down; results just carry the
// heuristic's wider intervals.
type Fallback struct {
	primary   classify.Scorer
	secondary classify.Scorer
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

func NewFallback(primary, secondary classify.Scorer, breaker *circuit.Breaker, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, breaker: breaker, logger: logger}
}

func (f *Fallback) Score(ctx context.Context, description string, attrs classify.Attributes) (domain.Classification, error) {
	if f.breaker.IsOpen() {
		// Probe the primary so sustained recovery closes the breaker again.
		if result, err := f.primary.Score(ctx, description, attrs); err == nil {
			if _, change := f.breaker.RecordSuccess(); change.Closed {
				f.logger.InfoContext(ctx, "primary scorer recovered", "breaker", f.breaker.Name())
			}
			return result, nil
		} else {
			f.breaker.RecordFailure()
		}
		return f.secondary.Score(ctx, description, attrs)
	}

	result, err := f.primary.Score(ctx, description, attrs)
	if err == nil {
		f.breaker.RecordSuccess()
		return result, nil
	}

	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.WarnContext(ctx, "primary scorer circuit opened",
			"breaker", f.breaker.Name(),
			"error", err,
		)
	}
	return f.secondary.Score(ctx, description, attrs)
}
