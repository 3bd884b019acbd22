package interfaces

import (
	"context"

	"als-trading-bot/internal/model"
)

// Advisor provides a best-effort second opinion at each major state
// transition. The contract is fail-open: implementations surface errors,
// and the advisorobs wrapper converts any failure, timeout or rate-limit
// skip into a Proceed=true Opinion so the deterministic path never blocks.
type Advisor interface {
	Advise(ctx context.Context, stage model.State, session *model.Session, event map[string]any) (model.Opinion, error)
}
