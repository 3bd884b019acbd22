package interfaces

import (
	"context"
	"time"

	"als-trading-bot/internal/model"
)

// Store is the persistence port for the trading core. Implementations
// exist in internal/store/memory and internal/store/postgres. Reads may be
// eventually consistent; writes happen only from the scheduler goroutine.
type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error
	// SessionForDay returns the session for (date, symbol) or
	// model.ErrNotFound.
	SessionForDay(ctx context.Context, date time.Time, symbol string) (*model.Session, error)

	CreateSweep(ctx context.Context, sw *model.Sweep) error
	LatestSweep(ctx context.Context, sessionID int64) (*model.Sweep, error)

	CreateSignal(ctx context.Context, sig *model.Signal) error
	UpdateSignalStatus(ctx context.Context, id string, status model.SignalStatus) error
	LatestSignal(ctx context.Context, sessionID int64) (*model.Signal, error)

	CreateExecution(ctx context.Context, e *model.Execution) error
	UpdateExecution(ctx context.Context, e *model.Execution) error
	LatestExecution(ctx context.Context, signalID string) (*model.Execution, error)
	// LastExecutionTime returns the time of the most recent execution
	// across all signals, used for daily-counter rollover detection.
	LastExecutionTime(ctx context.Context) (time.Time, error)

	CreateManagementAction(ctx context.Context, a *model.ManagementAction) error
	HasManagementAction(ctx context.Context, executionID int64, t model.ActionType) (bool, error)

	CreateConfluenceCheck(ctx context.Context, c *model.ConfluenceCheck) error

	CreateNewsEvent(ctx context.Context, n *model.NewsEvent) error
	// NewsEventsBetween returns scheduled events of the given severities
	// with a release time inside [from, to].
	NewsEventsBetween(ctx context.Context, from, to time.Time, severities []model.Severity) ([]model.NewsEvent, error)

	CreateSystemEvent(ctx context.Context, ev *model.SystemEvent) error
}
