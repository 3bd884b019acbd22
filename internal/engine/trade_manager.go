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
	"als-trading-bot/internal/strategy"
	"als-trading-bot/internal/ta"
	"als-trading-bot/internal/tradelog"
)

const (
	breakevenR = 0.5
	trailR     = 1.0
	trailATRx  = 1.3

	partialFraction = 0.5

	maxHoldDuration = 4 * time.Hour
	trailLookback   = time.Hour
)

type manageOutcome struct {
	Closed bool
	PnL    float64
	Price  float64
	Detail string
}

// tradeManager runs one management pass over the live position: hard
// exits first, then breakeven, trailing and the partial take-profit.
// Every adjustment is recorded as a ManagementAction and applied at most
// once, so a crashed and restarted process never repeats one.
type tradeManager struct {
	cfg    *config.Config
	market interfaces.MarketData
	store  interfaces.Store
	news   strategy.BlackoutChecker
}

func newTradeManager(cfg *config.Config, market interfaces.MarketData, store interfaces.Store, news strategy.BlackoutChecker) *tradeManager {
	return &tradeManager{cfg: cfg, market: market, store: store, news: news}
}

func (tm *tradeManager) Manage(ctx context.Context, sess *model.Session, sig *model.Signal, now time.Time) (manageOutcome, error) {
	exec, err := tm.store.LatestExecution(ctx, sig.ID)
	if err != nil {
		return manageOutcome{}, fmt.Errorf("load execution: %w", err)
	}
	if exec.ClosedAt != nil {
		// already accounted for on a previous pass
		return manageOutcome{Detail: "position already closed"}, nil
	}

	pos, found, err := tm.findPosition(ctx, sig.Symbol, exec.OrderID)
	if err != nil {
		return manageOutcome{}, err
	}
	if !found {
		// the terminal closed it (stop, target or manual): settle the books
		return tm.settle(ctx, sig.Symbol, exec, exec.PnL, "position closed by terminal")
	}

	// mark the running profit so a terminal-side close settles with the
	// last observed number
	exec.PnL = pos.Profit

	if out, closed, err := tm.hardExits(ctx, exec, pos, now); err != nil || closed {
		return out, err
	}

	r, price, err := tm.rMultiple(ctx, sig, pos)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			return manageOutcome{Detail: "quote unavailable"}, tm.store.UpdateExecution(ctx, exec)
		}
		return manageOutcome{}, err
	}

	if err := tm.breakeven(ctx, exec, pos, r); err != nil {
		return manageOutcome{}, err
	}
	if err := tm.trail(ctx, exec, pos, r, now); err != nil {
		return manageOutcome{}, err
	}
	if err := tm.partialTakeProfit(ctx, sig, exec, pos, price); err != nil {
		return manageOutcome{}, err
	}

	if err := tm.store.UpdateExecution(ctx, exec); err != nil {
		return manageOutcome{}, fmt.Errorf("persist execution: %w", err)
	}
	return manageOutcome{
		Price:  price,
		Detail: fmt.Sprintf("managing (r=%.2f profit=%.2f)", r, pos.Profit),
	}, nil
}

func (tm *tradeManager) findPosition(ctx context.Context, symbol string, orderID int64) (model.Position, bool, error) {
	positions, err := tm.market.OpenPositions(ctx, symbol)
	if err != nil {
		return model.Position{}, false, err
	}
	for _, p := range positions {
		if p.Ticket == orderID {
			return p, true, nil
		}
	}
	return model.Position{}, false, nil
}

// hardExits closes the position outright on session end, a news blackout
// or the hold timeout.
func (tm *tradeManager) hardExits(ctx context.Context, exec *model.Execution, pos model.Position, now time.Time) (manageOutcome, bool, error) {
	type exit struct {
		action model.ActionType
		reason string
		hit    bool
	}
	exits := []exit{
		{model.ActionCloseSessionEnd, "session end", now.Hour() >= tm.cfg.Session.RangeEndHour || now.Hour() < tm.cfg.Session.RangeStartHour},
		{model.ActionCloseTimeout, "hold timeout", now.Sub(pos.OpenTime) >= maxHoldDuration},
	}
	if tm.news != nil {
		risk, _, err := tm.news.Blackout(ctx, now)
		if err != nil {
			logger.Warn(ctx, "News check failed during management", "error", err)
		} else {
			exits = append(exits, exit{model.ActionCloseNewsBlackout, "news blackout", risk})
		}
	}

	for _, ex := range exits {
		if !ex.hit {
			continue
		}
		if err := tm.market.ClosePosition(ctx, pos.Ticket, 0); err != nil && !errors.Is(err, model.ErrNotFound) {
			return manageOutcome{}, false, fmt.Errorf("close position: %w", err)
		}
		tm.recordAction(ctx, pos.Symbol, exec.ID, ex.action, pos.Stop, 0, ex.reason)
		out, err := tm.settle(ctx, pos.Symbol, exec, pos.Profit, ex.reason)
		return out, true, err
	}
	return manageOutcome{}, false, nil
}

// settle marks the execution closed and journals the result. Safe to call
// once; callers guard on ClosedAt.
func (tm *tradeManager) settle(ctx context.Context, symbol string, exec *model.Execution, pnl float64, reason string) (manageOutcome, error) {
	now := time.Now().UTC()
	exec.Status = "CLOSED"
	exec.PnL = pnl
	exec.ClosedAt = &now
	if err := tm.store.UpdateExecution(ctx, exec); err != nil {
		return manageOutcome{}, fmt.Errorf("persist close: %w", err)
	}

	logger.Risk(ctx, symbol, "POSITION_CLOSED", "order_id", exec.OrderID, "pnl", pnl, "reason", reason)
	_ = tradelog.Append(tradelog.Entry{
		Symbol:   symbol,
		SignalID: exec.SignalID,
		OrderID:  exec.OrderID,
		Price:    exec.FillPrice,
		PnL:      pnl,
		Reason:   reason,
	})

	return manageOutcome{Closed: true, PnL: pnl, Detail: reason}, nil
}

// rMultiple is the favorable move measured in initial-risk units.
func (tm *tradeManager) rMultiple(ctx context.Context, sig *model.Signal, pos model.Position) (float64, float64, error) {
	tick, err := tm.market.GetTick(ctx, sig.Symbol)
	if err != nil {
		return 0, 0, err
	}

	risk := sig.Entry - sig.Stop
	if pos.Side == model.SideSell {
		risk = sig.Stop - sig.Entry
	}
	if risk <= 0 {
		return 0, tick.Bid, nil
	}

	if pos.Side == model.SideBuy {
		return (tick.Bid - pos.Entry) / risk, tick.Bid, nil
	}
	return (pos.Entry - tick.Ask) / risk, tick.Ask, nil
}

// breakeven moves the stop to entry once the trade reaches +0.5R.
func (tm *tradeManager) breakeven(ctx context.Context, exec *model.Execution, pos model.Position, r float64) error {
	if exec.BreakevenMoved || r < breakevenR {
		return nil
	}
	done, err := tm.store.HasManagementAction(ctx, exec.ID, model.ActionMoveToBreakeven)
	if err != nil {
		return err
	}
	if done {
		exec.BreakevenMoved = true
		return nil
	}

	if err := tm.market.ModifyStopTarget(ctx, pos.Ticket, pos.Entry, pos.Target); err != nil {
		return fmt.Errorf("move to breakeven: %w", err)
	}
	exec.BreakevenMoved = true
	tm.recordAction(ctx, pos.Symbol, exec.ID, model.ActionMoveToBreakeven, pos.Stop, pos.Entry, fmt.Sprintf("+%.1fR reached", breakevenR))
	return nil
}

// trail tightens the stop once at +1.0R, by a multiple of the recent M1
// mean true range, and only when the new stop improves on the entry.
func (tm *tradeManager) trail(ctx context.Context, exec *model.Execution, pos model.Position, r float64, now time.Time) error {
	if exec.TrailingActive || r < trailR {
		return nil
	}
	done, err := tm.store.HasManagementAction(ctx, exec.ID, model.ActionTrailingStop)
	if err != nil {
		return err
	}
	if done {
		exec.TrailingActive = true
		return nil
	}

	bars, err := tm.market.GetBars(ctx, pos.Symbol, model.TimeframeM1, now.Add(-trailLookback), now)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			return nil
		}
		return err
	}
	distance := trailATRx * ta.MeanRange(bars, 0)
	if distance <= 0 {
		return nil
	}

	tick, err := tm.market.GetTick(ctx, pos.Symbol)
	if err != nil {
		return err
	}

	var newStop float64
	if pos.Side == model.SideBuy {
		newStop = tick.Bid - distance
		if newStop <= pos.Entry {
			return nil
		}
	} else {
		newStop = tick.Ask + distance
		if newStop >= pos.Entry {
			return nil
		}
	}

	if err := tm.market.ModifyStopTarget(ctx, pos.Ticket, newStop, pos.Target); err != nil {
		return fmt.Errorf("trail stop: %w", err)
	}
	exec.TrailingActive = true
	tm.recordAction(ctx, pos.Symbol, exec.ID, model.ActionTrailingStop, pos.Stop, newStop, fmt.Sprintf("+%.1fR reached", trailR))
	return nil
}

// partialTakeProfit banks half the position when price reaches the first
// target.
func (tm *tradeManager) partialTakeProfit(ctx context.Context, sig *model.Signal, exec *model.Execution, pos model.Position, price float64) error {
	if exec.Target1Hit {
		return nil
	}
	hit := (pos.Side == model.SideBuy && price >= sig.Target1) ||
		(pos.Side == model.SideSell && price <= sig.Target1)
	if !hit {
		return nil
	}
	done, err := tm.store.HasManagementAction(ctx, exec.ID, model.ActionPartialTakeProfit)
	if err != nil {
		return err
	}
	if done {
		exec.Target1Hit = true
		return nil
	}

	half := pos.Volume * partialFraction
	if err := tm.market.ClosePosition(ctx, pos.Ticket, half); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("partial close: %w", err)
	}
	exec.Target1Hit = true
	tm.recordAction(ctx, pos.Symbol, exec.ID, model.ActionPartialTakeProfit, pos.Volume, pos.Volume-half, "first target reached")
	return nil
}

func (tm *tradeManager) recordAction(ctx context.Context, symbol string, executionID int64, t model.ActionType, oldValue, newValue float64, reason string) {
	a := &model.ManagementAction{
		ExecutionID: executionID,
		Type:        t,
		OldValue:    oldValue,
		NewValue:    newValue,
		Reason:      reason,
		Time:        time.Now().UTC(),
	}
	if err := tm.store.CreateManagementAction(ctx, a); err != nil {
		logger.Warn(ctx, "Failed to record management action", "error", err, "type", t)
	}
	logger.Risk(ctx, symbol, string(t), "execution_id", executionID, "old", oldValue, "new", newValue, "reason", reason)
}
