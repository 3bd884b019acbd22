package memory

import (
	"context"
	"testing"
	"time"

	"als-trading-bot/internal/model"
)

func TestSessionRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	sess := &model.Session{Date: day, Symbol: "XAUUSD", State: model.StateIdle, MaxTrades: 3}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == 0 {
		t.Fatal("Expected session ID to be assigned")
	}

	got, err := s.SessionForDay(ctx, day, "XAUUSD")
	if err != nil {
		t.Fatalf("SessionForDay: %v", err)
	}
	if got.ID != sess.ID || got.State != model.StateIdle {
		t.Errorf("Unexpected session: %+v", got)
	}

	got.State = model.StateSwept
	if err := s.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	again, _ := s.SessionForDay(ctx, day, "XAUUSD")
	if again.State != model.StateSwept {
		t.Errorf("Expected SWEPT after update, got %v", again.State)
	}

	if _, err := s.SessionForDay(ctx, day.AddDate(0, 0, 1), "XAUUSD"); err != model.ErrNotFound {
		t.Errorf("Expected ErrNotFound for other day, got %v", err)
	}
	if _, err := s.SessionForDay(ctx, day, "EURUSD"); err != model.ErrNotFound {
		t.Errorf("Expected ErrNotFound for other symbol, got %v", err)
	}
}

func TestLatestSweepAndSignal(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	first := &model.Sweep{SessionID: 1, Direction: model.DirectionUp, Price: 2011, Time: now.Add(-time.Minute)}
	second := &model.Sweep{SessionID: 1, Direction: model.DirectionUp, Price: 2012, Time: now}
	other := &model.Sweep{SessionID: 2, Direction: model.DirectionDown, Price: 1990, Time: now.Add(time.Minute)}
	for _, sw := range []*model.Sweep{first, second, other} {
		if err := s.CreateSweep(ctx, sw); err != nil {
			t.Fatalf("CreateSweep: %v", err)
		}
	}

	latest, err := s.LatestSweep(ctx, 1)
	if err != nil {
		t.Fatalf("LatestSweep: %v", err)
	}
	if latest.Price != 2012 {
		t.Errorf("Expected latest sweep at 2012, got %v", latest.Price)
	}

	sigOld := &model.Signal{ID: "a", SessionID: 1, Status: model.SignalActive, CreatedAt: now.Add(-time.Minute)}
	sigNew := &model.Signal{ID: "b", SessionID: 1, Status: model.SignalActive, CreatedAt: now}
	for _, sig := range []*model.Signal{sigOld, sigNew} {
		if err := s.CreateSignal(ctx, sig); err != nil {
			t.Fatalf("CreateSignal: %v", err)
		}
	}
	sig, err := s.LatestSignal(ctx, 1)
	if err != nil {
		t.Fatalf("LatestSignal: %v", err)
	}
	if sig.ID != "b" {
		t.Errorf("Expected latest signal b, got %s", sig.ID)
	}

	if err := s.UpdateSignalStatus(ctx, "b", model.SignalExecuted); err != nil {
		t.Fatalf("UpdateSignalStatus: %v", err)
	}
	sig, _ = s.LatestSignal(ctx, 1)
	if sig.Status != model.SignalExecuted {
		t.Errorf("Expected EXECUTED, got %v", sig.Status)
	}
}

func TestManagementActionIdempotenceGuard(t *testing.T) {
	s := New()
	ctx := context.Background()

	has, err := s.HasManagementAction(ctx, 5, model.ActionMoveToBreakeven)
	if err != nil {
		t.Fatalf("HasManagementAction: %v", err)
	}
	if has {
		t.Error("Expected no action before creation")
	}

	a := &model.ManagementAction{ExecutionID: 5, Type: model.ActionMoveToBreakeven, Time: time.Now().UTC()}
	if err := s.CreateManagementAction(ctx, a); err != nil {
		t.Fatalf("CreateManagementAction: %v", err)
	}

	has, _ = s.HasManagementAction(ctx, 5, model.ActionMoveToBreakeven)
	if !has {
		t.Error("Expected action after creation")
	}
	has, _ = s.HasManagementAction(ctx, 5, model.ActionPartialTakeProfit)
	if has {
		t.Error("Different action type must not match")
	}
}

func TestNewsEventsBetween(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	events := []*model.NewsEvent{
		{Name: "NFP", Currency: "USD", ReleaseTime: base, Severity: model.SeverityHigh, BufferMinutes: 45},
		{Name: "CPI", Currency: "USD", ReleaseTime: base.Add(2 * time.Hour), Severity: model.SeverityCritical, BufferMinutes: 60},
		{Name: "Speech", Currency: "USD", ReleaseTime: base.Add(time.Hour), Severity: model.SeverityLow, BufferMinutes: 15},
		{Name: "Far", Currency: "USD", ReleaseTime: base.Add(10 * time.Hour), Severity: model.SeverityHigh},
	}
	for _, n := range events {
		if err := s.CreateNewsEvent(ctx, n); err != nil {
			t.Fatalf("CreateNewsEvent: %v", err)
		}
	}

	got, err := s.NewsEventsBetween(ctx, base.Add(-time.Hour), base.Add(3*time.Hour),
		[]model.Severity{model.SeverityHigh, model.SeverityCritical})
	if err != nil {
		t.Fatalf("NewsEventsBetween: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events (NFP, CPI), got %d", len(got))
	}
	for _, n := range got {
		if n.Severity != model.SeverityHigh && n.Severity != model.SeverityCritical {
			t.Errorf("Unexpected severity %v in filtered result", n.Severity)
		}
	}
}

func TestExecutionLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.LastExecutionTime(ctx); err != model.ErrNotFound {
		t.Errorf("Expected ErrNotFound with no executions, got %v", err)
	}

	e := &model.Execution{SignalID: "sig-1", OrderID: 234001, FillPrice: 2002.5, FillTime: now, Status: "OPEN"}
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	e.BreakevenMoved = true
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}

	got, err := s.LatestExecution(ctx, "sig-1")
	if err != nil {
		t.Fatalf("LatestExecution: %v", err)
	}
	if !got.BreakevenMoved {
		t.Error("Expected breakeven flag to persist")
	}

	last, err := s.LastExecutionTime(ctx)
	if err != nil {
		t.Fatalf("LastExecutionTime: %v", err)
	}
	if !last.Equal(now) {
		t.Errorf("Expected last execution time %v, got %v", now, last)
	}
}
