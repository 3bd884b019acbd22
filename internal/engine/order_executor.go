package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/tradelog"
)

const (
	orderDeviation = 20
	orderMagic     = 234000
	orderComment   = "ALS Bot"
)

type executionStatus int

const (
	executed executionStatus = iota
	rejected
	windowClosed
)

type executionOutcome struct {
	Status    executionStatus
	OrderID   int64
	FillPrice float64
	Detail    string
}

// orderExecutor places the armed signal's order and records the fill.
type orderExecutor struct {
	cfg    *config.Config
	market interfaces.MarketData
	store  interfaces.Store
}

func newOrderExecutor(cfg *config.Config, market interfaces.MarketData, store interfaces.Store) *orderExecutor {
	return &orderExecutor{cfg: cfg, market: market, store: store}
}

// Execute places the order for an armed signal. Placement only happens
// inside the execution window; outside it the signal is cancelled.
func (oe *orderExecutor) Execute(ctx context.Context, sess *model.Session, sig *model.Signal, now time.Time) (executionOutcome, error) {
	if now.Hour() >= oe.cfg.Session.ExecutionEndHour {
		if err := oe.store.UpdateSignalStatus(ctx, sig.ID, model.SignalCancelled); err != nil {
			logger.Warn(ctx, "Failed to cancel signal", "error", err, "signal_id", sig.ID)
		}
		return executionOutcome{Status: windowClosed, Detail: "execution window closed"}, nil
	}

	req := model.OrderRequest{
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Volume:    sig.Volume,
		Stop:      sig.Stop,
		Target:    sig.Target1,
		Deviation: orderDeviation,
		Magic:     orderMagic,
		Comment:   orderComment,
	}

	result, err := oe.market.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrOrderRejected) {
			// the signal stays ACTIVE and the session stays armed, so the
			// next pass retries while the window is still open
			logger.Warn(ctx, "Order rejected, will retry next pass", "error", err, "signal_id", sig.ID)
			return executionOutcome{Status: rejected, Detail: fmt.Sprintf("order rejected: %v", err)}, nil
		}
		return executionOutcome{}, err
	}

	exec := &model.Execution{
		SignalID:  sig.ID,
		OrderID:   result.OrderID,
		FillPrice: result.FillPrice,
		FillTime:  now,
		Status:    "OPEN",
	}
	if err := oe.store.CreateExecution(ctx, exec); err != nil {
		return executionOutcome{}, fmt.Errorf("persist execution: %w", err)
	}
	if err := oe.store.UpdateSignalStatus(ctx, sig.ID, model.SignalExecuted); err != nil {
		return executionOutcome{}, fmt.Errorf("mark signal executed: %w", err)
	}

	logger.Trade(ctx, sig.Symbol, string(sig.Side), sig.Volume, result.FillPrice, result.OrderID,
		"signal_id", sig.ID,
	)

	_ = tradelog.Append(tradelog.Entry{
		Symbol:   sig.Symbol,
		Side:     string(sig.Side),
		SignalID: sig.ID,
		OrderID:  result.OrderID,
		Volume:   sig.Volume,
		Price:    result.FillPrice,
		Stop:     sig.Stop,
		Target1:  sig.Target1,
		Target2:  sig.Target2,
		Reason:   "entry",
	})

	return executionOutcome{
		Status:    executed,
		OrderID:   result.OrderID,
		FillPrice: result.FillPrice,
		Detail:    fmt.Sprintf("filled %s %.2f @ %.2f", sig.Side, sig.Volume, result.FillPrice),
	}, nil
}
