package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/store/memory"
)

type stubEngine struct {
	res   *model.StepResult
	err   error
	panic bool
	calls int
}

func (s *stubEngine) Step(ctx context.Context, symbol string) (*model.StepResult, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

// A Monday and a Saturday at the same wall clock.
var (
	monday   = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
)

func newTestScheduler(eng *stubEngine, at time.Time) *Scheduler {
	s := New(config.Default(), eng, memory.New())
	s.now = func() time.Time { return at }
	s.day = at.Truncate(24 * time.Hour)
	s.status = model.SchedulerStatus{
		Running:   true,
		Symbol:    "XAUUSD",
		MaxTrades: 3,
		MaxLosses: 2,
	}
	return s
}

func TestNextInterval(t *testing.T) {
	cases := []struct {
		state model.State
		hour  int
		want  time.Duration
	}{
		{model.StateSwept, 3, time.Second},
		{model.StateConfirmed, 3, time.Second},
		{model.StateArmed, 3, time.Second},
		{model.StateInTrade, 3, 2 * time.Second},
		{model.StateCooldown, 3, 10 * time.Second},
		{model.StateIdle, 7, 2 * time.Second},
		{model.StateIdle, 16, 2 * time.Second},
		{model.StateIdle, 17, 5 * time.Second},
		{model.StateIdle, 3, 5 * time.Second},
		{model.State("???"), 3, 5 * time.Second},
	}
	for _, c := range cases {
		if got := NextInterval(c.state, c.hour); got != c.want {
			t.Errorf("NextInterval(%s, %d) = %v, want %v", c.state, c.hour, got, c.want)
		}
	}
}

func TestPassFollowsSessionState(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{Symbol: "XAUUSD", StateTo: model.StateInTrade}}
	s := newTestScheduler(eng, monday)

	if got := s.pass(context.Background(), "XAUUSD"); got != 2*time.Second {
		t.Errorf("interval = %v, want 2s", got)
	}
	if st := s.Status(); st.SessionState != model.StateInTrade {
		t.Errorf("status state = %s", st.SessionState)
	}
}

func TestPassCountsTradesAndLosses(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{StateTo: model.StateInTrade, TradeExecuted: true}}
	s := newTestScheduler(eng, monday)

	s.pass(context.Background(), "XAUUSD")
	if st := s.Status(); st.DailyTrades != 1 || st.DailyLosses != 0 {
		t.Fatalf("after execution: trades=%d losses=%d", st.DailyTrades, st.DailyLosses)
	}

	eng.res = &model.StepResult{StateTo: model.StateCooldown, TradeClosed: true, ClosedPnL: -12.5}
	s.pass(context.Background(), "XAUUSD")
	if st := s.Status(); st.DailyTrades != 1 || st.DailyLosses != 1 {
		t.Fatalf("after losing close: trades=%d losses=%d", st.DailyTrades, st.DailyLosses)
	}
}

func TestPassParksAtDailyLimit(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{StateTo: model.StateIdle}}
	s := newTestScheduler(eng, monday)
	s.status.DailyTrades = 3

	if got := s.pass(context.Background(), "XAUUSD"); got != parkedInterval {
		t.Errorf("interval = %v, want %v", got, parkedInterval)
	}
}

func TestPassParksOnWeekend(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{StateTo: model.StateIdle}}
	s := newTestScheduler(eng, saturday)

	if got := s.pass(context.Background(), "XAUUSD"); got != parkedInterval {
		t.Errorf("interval = %v, want %v", got, parkedInterval)
	}
	if eng.calls != 0 {
		t.Errorf("engine stepped %d times on a weekend", eng.calls)
	}
}

func TestPassBacksOffOnError(t *testing.T) {
	eng := &stubEngine{err: errors.New("bridge down")}
	s := newTestScheduler(eng, monday)

	if got := s.pass(context.Background(), "XAUUSD"); got != errorBackoff {
		t.Errorf("interval = %v, want %v", got, errorBackoff)
	}
	if st := s.Status(); st.LastError == "" {
		t.Error("last error not recorded")
	}

	// a good pass clears the error
	eng.err = nil
	eng.res = &model.StepResult{StateTo: model.StateIdle}
	s.pass(context.Background(), "XAUUSD")
	if st := s.Status(); st.LastError != "" {
		t.Errorf("last error = %q after recovery", st.LastError)
	}
}

func TestPassRecoversFromPanic(t *testing.T) {
	eng := &stubEngine{panic: true}
	s := newTestScheduler(eng, monday)

	if got := s.pass(context.Background(), "XAUUSD"); got != errorBackoff {
		t.Errorf("interval = %v, want %v", got, errorBackoff)
	}
	if st := s.Status(); st.LastError == "" {
		t.Error("panic not recorded as error")
	}
}

func TestRollDayResetsCounters(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{StateTo: model.StateIdle}}
	s := newTestScheduler(eng, monday)
	s.status.DailyTrades = 2
	s.status.DailyLosses = 1

	s.rollDay(monday.Add(2 * time.Hour)) // same day
	if st := s.Status(); st.DailyTrades != 2 {
		t.Fatalf("counters reset within the day: %+v", st)
	}

	s.rollDay(monday.Add(24 * time.Hour))
	if st := s.Status(); st.DailyTrades != 0 || st.DailyLosses != 0 {
		t.Fatalf("counters survive the day roll: %+v", st)
	}
}

func TestStartRecoversLastTradeTime(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{StateTo: model.StateIdle}}
	st := memory.New()
	fill := time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC)

	ctx := context.Background()
	if err := st.CreateExecution(ctx, &model.Execution{SignalID: "sig-1", OrderID: 1001, FillPrice: 2002.6, FillTime: fill, Status: "CLOSED"}); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	s := New(config.Default(), eng, st)
	if err := s.Start(ctx, "XAUUSD"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	got := s.Status().LastTradeAt
	if got == nil || !got.Equal(fill) {
		t.Errorf("LastTradeAt = %v, want %v", got, fill)
	}
}

func TestStartStop(t *testing.T) {
	eng := &stubEngine{res: &model.StepResult{StateTo: model.StateIdle}}
	s := New(config.Default(), eng, memory.New())

	ctx := context.Background()
	if err := s.Start(ctx, "XAUUSD"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx, "XAUUSD"); err == nil {
		t.Error("second Start() did not fail")
	}
	if st := s.Status(); !st.Running || st.Symbol != "XAUUSD" {
		t.Errorf("status = %+v", st)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if st := s.Status(); st.Running {
		t.Error("still running after Stop()")
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Errorf("repeat Stop() error = %v", err)
	}
}
