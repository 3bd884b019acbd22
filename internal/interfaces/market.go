package interfaces

import (
	"context"
	"time"

	"als-trading-bot/internal/model"
)

// MarketData is the abstract terminal port: quotes, bars, account state
// and order execution. Two implementations exist: the HTTP terminal
// bridge and the simulator. The core depends only on this interface.
type MarketData interface {
	GetBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error)
	GetTick(ctx context.Context, symbol string) (model.Tick, error)
	GetAccountInfo(ctx context.Context) (model.AccountInfo, error)
	GetSymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error)
	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error)
	// ClosePosition closes a position; volume 0 closes it in full, a
	// smaller volume closes partially.
	ClosePosition(ctx context.Context, ticket int64, volume float64) error
	ModifyStopTarget(ctx context.Context, ticket int64, stop, target float64) error
	OpenPositions(ctx context.Context, symbol string) ([]model.Position, error)
}
