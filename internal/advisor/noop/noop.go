package noop

import (
	"context"

	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

// Advisor is the fallback used when no provider is configured. It always
// agrees with the deterministic pipeline.
type Advisor struct{}

// New returns an advisor that always proceeds.
func New() *Advisor {
	return &Advisor{}
}

func (a *Advisor) Advise(ctx context.Context, stage model.State, session *model.Session, event map[string]any) (model.Opinion, error) {
	logger.Debug(ctx, "Noop advisor called - always proceeds", "stage", stage, "symbol", session.Symbol)
	return model.Opinion{
		Stage:      stage,
		Proceed:    true,
		Confidence: 0.0,
		Reasoning:  "noop_advisor",
		Provider:   "noop",
	}, nil
}
