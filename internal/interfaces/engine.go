package interfaces

import (
	"context"

	"als-trading-bot/internal/model"
)

// Engine performs one strategy pass for a symbol, dispatched on the
// current session state.
type Engine interface {
	Step(ctx context.Context, symbol string) (*model.StepResult, error)
}

// Scheduler drives the engine in a single polling loop with
// state-dependent cadence and daily limits.
type Scheduler interface {
	Start(ctx context.Context, symbol string) error
	Stop(ctx context.Context) error
	Status() model.SchedulerStatus
}
