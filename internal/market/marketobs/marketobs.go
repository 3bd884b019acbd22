package marketobs

import (
	"context"
	"time"

	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/trace"
)

// observableMarket wraps a MarketData port with observability (logging & tracing)
type observableMarket struct {
	market interfaces.MarketData
}

// Compile-time interface check
var _ interfaces.MarketData = (*observableMarket)(nil)

// Wrap wraps a market-data port with observability middleware
func Wrap(market interfaces.MarketData) interfaces.MarketData {
	return &observableMarket{
		market: market,
	}
}

// GetBars fetches bars with observability
func (om *observableMarket) GetBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "market.GetBars")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching bars", "symbol", symbol, "timeframe", tf, "from", start, "to", end)

	bars, err := om.market.GetBars(ctx, symbol, tf, start, end)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch bars", err, "symbol", symbol, "timeframe", tf)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Bars fetched successfully", "symbol", symbol, "timeframe", tf, "count", len(bars))
	return bars, nil
}

// GetTick fetches the current quote with observability
func (om *observableMarket) GetTick(ctx context.Context, symbol string) (model.Tick, error) {
	ctx, span := trace.StartSpan(ctx, "market.GetTick")
	defer span.End()

	tick, err := om.market.GetTick(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch tick", err, "symbol", symbol)
		return model.Tick{}, err
	}

	logger.DebugSkip(ctx, 1, "Tick fetched", "symbol", symbol, "bid", tick.Bid, "ask", tick.Ask)
	return tick, nil
}

// GetAccountInfo fetches the account snapshot with observability
func (om *observableMarket) GetAccountInfo(ctx context.Context) (model.AccountInfo, error) {
	ctx, span := trace.StartSpan(ctx, "market.GetAccountInfo")
	defer span.End()

	info, err := om.market.GetAccountInfo(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account info", err)
		return model.AccountInfo{}, err
	}

	logger.DebugSkip(ctx, 1, "Account info fetched", "balance", info.Balance, "equity", info.Equity)
	return info, nil
}

// GetSymbolMeta fetches symbol metadata with observability
func (om *observableMarket) GetSymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error) {
	ctx, span := trace.StartSpan(ctx, "market.GetSymbolMeta")
	defer span.End()

	meta, err := om.market.GetSymbolMeta(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch symbol meta", err, "symbol", symbol)
		return model.SymbolMeta{}, err
	}

	logger.DebugSkip(ctx, 1, "Symbol meta fetched", "symbol", symbol, "point", meta.PointSize, "tick_value", meta.TickValue)
	return meta, nil
}

// PlaceOrder places an order with observability
func (om *observableMarket) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "market.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"volume", req.Volume,
		"sl", req.Stop,
		"tp", req.Target,
	)

	result, err := om.market.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"volume", req.Volume,
		)
		return model.OrderResult{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", result.OrderID,
		"fill_price", result.FillPrice,
		"volume", result.Volume,
	)
	return result, nil
}

// ClosePosition closes a position with observability
func (om *observableMarket) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	ctx, span := trace.StartSpan(ctx, "market.ClosePosition")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing position", "ticket", ticket, "volume", volume)

	if err := om.market.ClosePosition(ctx, ticket, volume); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close position", err, "ticket", ticket, "volume", volume)
		return err
	}

	logger.InfoSkip(ctx, 1, "Position closed", "ticket", ticket, "volume", volume)
	return nil
}

// ModifyStopTarget adjusts protective levels with observability
func (om *observableMarket) ModifyStopTarget(ctx context.Context, ticket int64, stop, target float64) error {
	ctx, span := trace.StartSpan(ctx, "market.ModifyStopTarget")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Modifying stop/target", "ticket", ticket, "sl", stop, "tp", target)

	if err := om.market.ModifyStopTarget(ctx, ticket, stop, target); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to modify stop/target", err, "ticket", ticket)
		return err
	}

	return nil
}

// OpenPositions lists open positions with observability
func (om *observableMarket) OpenPositions(ctx context.Context, symbol string) ([]model.Position, error) {
	ctx, span := trace.StartSpan(ctx, "market.OpenPositions")
	defer span.End()

	positions, err := om.market.OpenPositions(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list positions", err, "symbol", symbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Positions listed", "symbol", symbol, "count", len(positions))
	return positions, nil
}
