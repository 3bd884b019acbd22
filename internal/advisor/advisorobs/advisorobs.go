// Package advisorobs wraps an Advisor with the fail-open contract: rate
// limiting per stage, a hard timeout, and degradation of every failure
// into a Proceed=true opinion. The deterministic pipeline never blocks on
// the advisory path.
package advisorobs

import (
	"context"
	"sync"
	"time"

	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/trace"
)

// observableAdvisor wraps an Advisor with observability and fail-open semantics
type observableAdvisor struct {
	advisor  interfaces.Advisor
	timeout  time.Duration
	cooldown time.Duration

	mu       sync.Mutex
	lastCall map[model.State]time.Time
}

// Compile-time interface check
var _ interfaces.Advisor = (*observableAdvisor)(nil)

// Wrap wraps an advisor with observability middleware. timeout bounds each
// provider call; cooldown is the minimum spacing between calls per stage.
func Wrap(advisor interfaces.Advisor, timeout, cooldown time.Duration) interfaces.Advisor {
	return &observableAdvisor{
		advisor:  advisor,
		timeout:  timeout,
		cooldown: cooldown,
		lastCall: make(map[model.State]time.Time),
	}
}

// Advise requests a second opinion with observability. Rate-limited,
// failed or slow calls all return a Proceed=true opinion and a nil error.
func (oa *observableAdvisor) Advise(ctx context.Context, stage model.State, session *model.Session, event map[string]any) (model.Opinion, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.Advise")
	defer span.End()

	if !oa.allow(stage) {
		logger.DebugSkip(ctx, 1, "Advisory call rate-limited", "stage", stage, "symbol", session.Symbol)
		return failOpen(stage, "rate_limited"), nil
	}

	logger.DebugSkip(ctx, 1, "Requesting advisory opinion", "stage", stage, "symbol", session.Symbol)

	callCtx := ctx
	if oa.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, oa.timeout)
		defer cancel()
	}

	opinion, err := oa.advisor.Advise(callCtx, stage, session, event)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Advisory call failed, proceeding without it",
			"stage", stage,
			"symbol", session.Symbol,
			"error", err,
		)
		return failOpen(stage, "advisor_error"), nil
	}

	logger.InfoSkip(ctx, 1, "Advisory opinion received",
		"stage", stage,
		"symbol", session.Symbol,
		"proceed", opinion.Proceed,
		"confidence", opinion.Confidence,
		"provider", opinion.Provider,
	)
	return opinion, nil
}

// allow reserves a call slot for the stage if the cooldown has passed.
func (oa *observableAdvisor) allow(stage model.State) bool {
	oa.mu.Lock()
	defer oa.mu.Unlock()

	now := time.Now()
	if last, ok := oa.lastCall[stage]; ok && now.Sub(last) < oa.cooldown {
		return false
	}
	oa.lastCall[stage] = now
	return true
}

func failOpen(stage model.State, reason string) model.Opinion {
	return model.Opinion{
		Stage:      stage,
		Proceed:    true,
		Confidence: 0,
		Reasoning:  reason,
		Provider:   "fail-open",
	}
}
