// Package scheduler drives the engine in a single polling loop whose
// cadence follows the session state: tight while a setup is in flight,
// relaxed while idle or parked for the weekend.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

// Compile-time interface check
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	activeInterval    = 1 * time.Second
	inTradeInterval   = 2 * time.Second
	cooldownInterval  = 10 * time.Second
	idleBusyInterval  = 2 * time.Second
	idleQuietInterval = 5 * time.Second
	parkedInterval    = 60 * time.Second
	errorBackoff      = 5 * time.Second

	statusEvery = 60 * time.Second

	busyStartHour = 7
	busyEndHour   = 16
)

// NextInterval returns the polling cadence for a session state at the
// given UTC hour. States waiting on a quote poll every second, open
// trades every other second, and idle polling tightens during the busy
// hours of the day.
func NextInterval(state model.State, hourUTC int) time.Duration {
	switch state {
	case model.StateSwept, model.StateConfirmed, model.StateArmed:
		return activeInterval
	case model.StateInTrade:
		return inTradeInterval
	case model.StateCooldown:
		return cooldownInterval
	case model.StateIdle:
		if hourUTC >= busyStartHour && hourUTC <= busyEndHour {
			return idleBusyInterval
		}
		return idleQuietInterval
	default:
		return idleQuietInterval
	}
}

// Scheduler runs the engine for one symbol in a background goroutine.
type Scheduler struct {
	cfg    *config.Config
	engine interfaces.Engine
	store  interfaces.Store

	now func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	day     time.Time
	status  model.SchedulerStatus
}

// New creates a scheduler around an engine.
func New(cfg *config.Config, engine interfaces.Engine, store interfaces.Store) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		store:  store,
		now:    time.Now,
	}
}

// Start launches the polling loop. Returns an error when already running.
func (s *Scheduler) Start(ctx context.Context, symbol string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running for %s", s.status.Symbol)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.day = s.now().UTC().Truncate(24 * time.Hour)
	s.status = model.SchedulerStatus{
		Running:   true,
		Symbol:    symbol,
		MaxTrades: s.cfg.Limits.MaxDailyTrades,
		MaxLosses: s.cfg.Limits.MaxDailyLosses,
	}
	// recover the last fill time across restarts
	if s.store != nil {
		if last, err := s.store.LastExecutionTime(ctx); err == nil {
			s.status.LastTradeAt = &last
		}
	}
	s.mu.Unlock()

	logger.Info(ctx, "Scheduler started", "symbol", symbol)
	go func() {
		defer close(done)
		s.run(runCtx, symbol)
	}()
	return nil
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.status.Running = false
	s.mu.Unlock()

	logger.Info(ctx, "Scheduler stopped")
	return nil
}

// Status returns a snapshot of the loop state.
func (s *Scheduler) Status() model.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) run(ctx context.Context, symbol string) {
	lastStatus := s.now()
	for {
		interval := s.pass(ctx, symbol)

		if now := s.now(); now.Sub(lastStatus) >= statusEvery {
			s.logStatus(ctx)
			lastStatus = now
		}
		if !sleep(ctx, interval) {
			return
		}
	}
}

// pass runs one engine step and returns the wait before the next one. A
// panicking step never kills the loop, it just backs off.
func (s *Scheduler) pass(ctx context.Context, symbol string) (interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Recovered from panic in scheduler pass", "symbol", symbol, "panic", r)
			s.recordError(fmt.Errorf("panic: %v", r))
			interval = errorBackoff
		}
	}()

	now := s.now().UTC()
	s.rollDay(now)

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		s.touch(now, parkedInterval)
		return parkedInterval
	}

	res, err := s.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Engine step failed", err, "symbol", symbol)
		s.recordError(err)
		return errorBackoff
	}
	s.observe(res, now)

	st := s.Status()
	if st.DailyTrades >= st.MaxTrades || st.DailyLosses >= st.MaxLosses {
		s.touch(now, parkedInterval)
		return parkedInterval
	}

	interval = NextInterval(res.StateTo, now.Hour())
	s.touch(now, interval)
	return interval
}

// rollDay zeroes the daily counters when the UTC date changes.
func (s *Scheduler) rollDay(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	s.mu.Lock()
	defer s.mu.Unlock()
	if day.Equal(s.day) {
		return
	}
	s.day = day
	s.status.DailyTrades = 0
	s.status.DailyLosses = 0
}

func (s *Scheduler) observe(res *model.StepResult, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.SessionState = res.StateTo
	s.status.LastUpdate = now
	s.status.LastError = ""
	if res.TradeExecuted {
		s.status.DailyTrades++
		at := now
		s.status.LastTradeAt = &at
	}
	if res.TradeClosed && res.ClosedPnL < 0 {
		s.status.DailyLosses++
	}
}

func (s *Scheduler) touch(now time.Time, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastUpdate = now
	s.status.Interval = interval
}

func (s *Scheduler) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastError = err.Error()
	s.status.LastUpdate = s.now()
}

func (s *Scheduler) logStatus(ctx context.Context) {
	st := s.Status()
	logger.Info(ctx, "Scheduler status",
		"symbol", st.Symbol,
		"state", st.SessionState,
		"daily_trades", st.DailyTrades,
		"daily_losses", st.DailyLosses,
		"interval", st.Interval.String(),
	)
	if s.store == nil {
		return
	}
	ev := &model.SystemEvent{
		Level:     "INFO",
		Component: "SCHEDULER",
		Message:   fmt.Sprintf("%s state=%s trades=%d losses=%d", st.Symbol, st.SessionState, st.DailyTrades, st.DailyLosses),
		Time:      s.now().UTC(),
	}
	if err := s.store.CreateSystemEvent(ctx, ev); err != nil {
		logger.Warn(ctx, "Failed to write scheduler status event", "error", err)
	}
}

// sleep waits for d, returning false when the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
