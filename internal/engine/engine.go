// Package engine runs one strategy pass per call, dispatched on the
// session state. The engine owns persistence and transitions; the
// strategy components stay result-returning.
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
	"als-trading-bot/internal/session"
	"als-trading-bot/internal/strategy"
)

type Engine struct {
	cfg     *config.Config
	market  interfaces.MarketData
	store   interfaces.Store
	advisor interfaces.Advisor
	machine *session.Machine

	ranges    *strategy.RangeCalculator
	sweeps    *strategy.SweepDetector
	reversals *strategy.ReversalConfirmer
	gate      *strategy.ConfluenceGate
	signals   *strategy.SignalGenerator

	executor *orderExecutor
	manager  *tradeManager

	now func() time.Time
}

func newEngine(cfg *config.Config, market interfaces.MarketData, store interfaces.Store, advisor interfaces.Advisor, news strategy.BlackoutChecker) *Engine {
	return &Engine{
		cfg:       cfg,
		market:    market,
		store:     store,
		advisor:   advisor,
		machine:   session.NewMachine(cfg, store),
		ranges:    strategy.NewRangeCalculator(cfg, market),
		sweeps:    strategy.NewSweepDetector(cfg),
		reversals: strategy.NewReversalConfirmer(cfg, market),
		gate:      strategy.NewConfluenceGate(cfg, market, store, news),
		signals:   strategy.NewSignalGenerator(cfg, market),
		executor:  newOrderExecutor(cfg, market, store),
		manager:   newTradeManager(cfg, market, store, news),
		now:       time.Now,
	}
}

func (e *Engine) Step(ctx context.Context, symbol string) (*model.StepResult, error) {
	now := e.now().UTC()

	sess, err := e.machine.Ensure(ctx, symbol, now)
	if err != nil {
		return nil, err
	}

	res := &model.StepResult{Symbol: symbol, StateFrom: sess.State, StateTo: sess.State}

	// bootstrap: compute the reference range once per day, as soon as the
	// overnight window has bars
	if sess.Range.IsZero() {
		r, err := e.ranges.Calculate(ctx, symbol, now)
		if err != nil {
			if errors.Is(err, model.ErrDataUnavailable) {
				res.Stage = "bootstrap"
				res.Detail = "reference range not available yet"
				return res, nil
			}
			return nil, err
		}
		sess.Range = r
		sess.SweepThreshold = e.sweeps.ThresholdPips(r.SizePips)
		sess.UpdatedAt = now
		if err := e.store.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("persist range: %w", err)
		}
	}

	switch sess.State {
	case model.StateIdle:
		err = e.handleIdle(ctx, sess, now, res)
	case model.StateSwept:
		err = e.handleSwept(ctx, sess, now, res)
	case model.StateConfirmed:
		err = e.handleConfirmed(ctx, sess, now, res)
	case model.StateArmed:
		err = e.handleArmed(ctx, sess, now, res)
	case model.StateInTrade:
		err = e.handleInTrade(ctx, sess, now, res)
	case model.StateCooldown:
		err = e.handleCooldown(ctx, sess, now, res)
	default:
		err = fmt.Errorf("unknown session state %q", sess.State)
	}
	if err != nil {
		return nil, err
	}

	res.StateTo = sess.State
	return res, nil
}

// quote fetches the current tick. A data gap is not an error: the pass
// is skipped and the state left alone until quotes come back.
func (e *Engine) quote(ctx context.Context, symbol string, res *model.StepResult) (model.Tick, bool, error) {
	tick, err := e.market.GetTick(ctx, symbol)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			logger.Debug(ctx, "Quote unavailable, skipping pass", "symbol", symbol)
			res.Detail = "quote unavailable"
			return model.Tick{}, false, nil
		}
		return model.Tick{}, false, err
	}
	return tick, true, nil
}

// handleIdle watches quotes for a range breach.
func (e *Engine) handleIdle(ctx context.Context, sess *model.Session, now time.Time, res *model.StepResult) error {
	res.Stage = "sweep-watch"

	if sess.TradeCount >= sess.MaxTrades || sess.LossCount >= sess.MaxLosses {
		res.Detail = "daily limit reached"
		return nil
	}

	tick, ok, err := e.quote(ctx, sess.Symbol, res)
	if err != nil || !ok {
		return err
	}
	res.Price = tick.Bid

	dir, ok := e.sweeps.Detect(tick, sess.Range, sess.SweepThreshold)
	if !ok {
		res.Detail = "no breach"
		return nil
	}

	// a sweep opposite to one recorded earlier today means both sides
	// are gone: the range is no longer a fadeable level
	if sess.SweepDirection != "" && dir != sess.SweepDirection {
		res.Detail = "both sides swept"
		return e.machine.Transition(ctx, sess, model.StateCooldown, "Both sides swept")
	}

	sweep := &model.Sweep{
		SessionID:     sess.ID,
		Symbol:        sess.Symbol,
		Direction:     dir,
		Price:         tick.Bid,
		ThresholdPips: sess.SweepThreshold,
		Time:          now,
	}
	if err := e.store.CreateSweep(ctx, sweep); err != nil {
		return fmt.Errorf("persist sweep: %w", err)
	}

	sess.SweepDirection = dir
	sess.SweepPrice = tick.Bid
	sess.SweepTime = &now

	e.consultAdvisor(ctx, sess, model.StateSwept, map[string]any{
		"direction": dir,
		"price":     tick.Bid,
		"threshold": sess.SweepThreshold,
	})

	if err := e.machine.Transition(ctx, sess, model.StateSwept, fmt.Sprintf("%s sweep at %.2f", dir, tick.Bid)); err != nil {
		return err
	}
	res.Detail = fmt.Sprintf("sweep detected %s at %.2f", dir, tick.Bid)
	return nil
}

// handleSwept waits for the reversal back into the range, or for the
// opposite side to break as well.
func (e *Engine) handleSwept(ctx context.Context, sess *model.Session, now time.Time, res *model.StepResult) error {
	res.Stage = "reversal-watch"

	tick, ok, err := e.quote(ctx, sess.Symbol, res)
	if err != nil || !ok {
		return err
	}
	res.Price = tick.Bid

	// a breach of the other side invalidates the setup for the day
	if dir, ok := e.sweeps.Detect(tick, sess.Range, sess.SweepThreshold); ok && dir != sess.SweepDirection {
		res.Detail = "both sides swept"
		return e.machine.Transition(ctx, sess, model.StateCooldown, "Both sides swept")
	}

	conf, err := e.reversals.Confirm(ctx, sess.Symbol, sess.SweepDirection, sess.Range, now)
	if err != nil {
		return err
	}
	if !conf.Confirmed() {
		res.Detail = fmt.Sprintf("unconfirmed (re-entry=%t displacement=%t choch=%t)", conf.ReEntry, conf.Displacement, conf.Choch)
		return nil
	}

	e.consultAdvisor(ctx, sess, model.StateConfirmed, map[string]any{
		"bar_close": conf.BarClose,
		"body":      conf.BodySize,
		"atr":       conf.ATR,
	})

	if err := e.machine.Transition(ctx, sess, model.StateConfirmed, "reversal confirmed"); err != nil {
		return err
	}
	res.Detail = "reversal confirmed"
	return nil
}

// handleConfirmed gates the entry, waits for the midpoint retest and arms
// a signal.
func (e *Engine) handleConfirmed(ctx context.Context, sess *model.Session, now time.Time, res *model.StepResult) error {
	res.Stage = "retest-watch"

	tick, ok, err := e.quote(ctx, sess.Symbol, res)
	if err != nil || !ok {
		return err
	}
	res.Price = tick.Bid

	gate, err := e.gate.Evaluate(ctx, sess.ID, sess.Symbol, tick, now)
	if err != nil {
		return err
	}
	if !gate.Passed {
		res.Detail = fmt.Sprintf("confluence blocked (spread=%.1f news=%t)", gate.SpreadPips, gate.NewsRisk)
		return nil
	}

	if sess.ConfirmationTime != nil && e.signals.RetestExpired(*sess.ConfirmationTime, now) {
		res.Detail = "retest window expired"
		return e.machine.Transition(ctx, sess, model.StateCooldown, "retest window expired")
	}

	touched, err := e.signals.TouchedEntryZone(ctx, sess.Symbol, sess.Range.Midpoint, tick, now)
	if err != nil {
		return err
	}
	if !touched {
		res.Detail = "waiting for midpoint retest"
		return nil
	}

	sweep, err := e.store.LatestSweep(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load sweep: %w", err)
	}

	sig, err := e.signals.Generate(ctx, sess, sweep, tick)
	if err != nil {
		if errors.Is(err, model.ErrSizingUnavailable) {
			logger.Warn(ctx, "Sizing unavailable, staying confirmed", "symbol", sess.Symbol)
			res.Detail = "sizing unavailable"
			return nil
		}
		return err
	}
	if err := e.store.CreateSignal(ctx, sig); err != nil {
		return fmt.Errorf("persist signal: %w", err)
	}

	e.consultAdvisor(ctx, sess, model.StateArmed, map[string]any{
		"signal_id": sig.ID,
		"side":      sig.Side,
		"entry":     sig.Entry,
		"stop":      sig.Stop,
		"volume":    sig.Volume,
	})

	if err := e.machine.Transition(ctx, sess, model.StateArmed, "entry zone retested"); err != nil {
		return err
	}
	res.Detail = fmt.Sprintf("signal armed %s %.2f", sig.Side, sig.Entry)
	return nil
}

// handleArmed re-checks confluence and places the order.
func (e *Engine) handleArmed(ctx context.Context, sess *model.Session, now time.Time, res *model.StepResult) error {
	res.Stage = "execution"

	tick, ok, err := e.quote(ctx, sess.Symbol, res)
	if err != nil || !ok {
		return err
	}

	// last look before placing: a fresh audit row either way, but a
	// failed re-check only delays the order, it does not disarm
	gate, err := e.gate.Evaluate(ctx, sess.ID, sess.Symbol, tick, now)
	if err != nil {
		return err
	}
	if !gate.Passed {
		res.Price = tick.Bid
		res.Detail = fmt.Sprintf("execution held by confluence (spread=%.1f news=%t)", gate.SpreadPips, gate.NewsRisk)
		return nil
	}

	sig, err := e.store.LatestSignal(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load signal: %w", err)
	}

	outcome, err := e.executor.Execute(ctx, sess, sig, now)
	if err != nil {
		return err
	}
	res.Price = outcome.FillPrice
	res.Detail = outcome.Detail

	switch outcome.Status {
	case executed:
		sess.TradeCount++
		e.consultAdvisor(ctx, sess, model.StateInTrade, map[string]any{
			"order_id": outcome.OrderID,
			"fill":     outcome.FillPrice,
		})
		if err := e.machine.Transition(ctx, sess, model.StateInTrade, "order filled"); err != nil {
			return err
		}
		res.TradeExecuted = true
	case rejected:
		// stay armed and retry on the next pass
	case windowClosed:
		if err := e.machine.Transition(ctx, sess, model.StateCooldown, "execution window closed"); err != nil {
			return err
		}
	}
	return nil
}

// handleInTrade runs trade management until the position is flat.
func (e *Engine) handleInTrade(ctx context.Context, sess *model.Session, now time.Time, res *model.StepResult) error {
	res.Stage = "trade-management"

	sig, err := e.store.LatestSignal(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load signal: %w", err)
	}

	outcome, err := e.manager.Manage(ctx, sess, sig, now)
	if err != nil {
		return err
	}
	res.Detail = outcome.Detail
	res.Price = outcome.Price

	if outcome.Closed {
		res.TradeClosed = true
		res.ClosedPnL = outcome.PnL
		if outcome.PnL < 0 {
			sess.LossCount++
		}
		e.consultAdvisor(ctx, sess, model.StateCooldown, map[string]any{
			"pnl":    outcome.PnL,
			"reason": outcome.Detail,
		})
		return e.machine.Transition(ctx, sess, model.StateCooldown, outcome.Detail)
	}
	return nil
}

// handleCooldown resets to IDLE after the dwell.
func (e *Engine) handleCooldown(ctx context.Context, sess *model.Session, now time.Time, res *model.StepResult) error {
	res.Stage = "cooldown"

	if !e.machine.CooldownElapsed(sess, now) {
		res.Detail = "cooling down"
		return nil
	}
	res.Detail = "cooldown elapsed"
	return e.machine.Transition(ctx, sess, model.StateIdle, "cooldown elapsed")
}

// consultAdvisor asks for a second opinion before a transition. The
// opinion is logged and recorded; it never vetoes the deterministic path.
func (e *Engine) consultAdvisor(ctx context.Context, sess *model.Session, stage model.State, event map[string]any) {
	if e.advisor == nil {
		return
	}
	opinion, err := e.advisor.Advise(ctx, stage, sess, event)
	if err != nil {
		logger.Warn(ctx, "Advisory call failed", "stage", stage, "error", err)
		return
	}
	logger.Info(ctx, "Advisory opinion",
		"symbol", sess.Symbol,
		"stage", stage,
		"proceed", opinion.Proceed,
		"confidence", opinion.Confidence,
		"provider", opinion.Provider,
		"reasoning", opinion.Reasoning,
	)
}
