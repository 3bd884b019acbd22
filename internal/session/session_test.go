package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/store/memory"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to model.State }{
		{model.StateIdle, model.StateSwept},
		{model.StateSwept, model.StateConfirmed},
		{model.StateConfirmed, model.StateArmed},
		{model.StateArmed, model.StateInTrade},
		{model.StateInTrade, model.StateCooldown},
		{model.StateCooldown, model.StateIdle},
		{model.StateIdle, model.StateCooldown},
		{model.StateSwept, model.StateCooldown},
		{model.StateConfirmed, model.StateCooldown},
		{model.StateArmed, model.StateCooldown},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Errorf("Expected %s -> %s to be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to model.State }{
		{model.StateIdle, model.StateConfirmed},
		{model.StateIdle, model.StateInTrade},
		{model.StateSwept, model.StateArmed},
		{model.StateCooldown, model.StateSwept},
		{model.StateInTrade, model.StateIdle},
		{model.StateArmed, model.StateSwept},
		{model.StateInTrade, model.StateArmed},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Errorf("Expected %s -> %s to be denied", c.from, c.to)
		}
	}
}

func TestEnsureCreatesThenLoads(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	m := NewMachine(cfg, store)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	sess, err := m.Ensure(ctx, "XAUUSD", day)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if sess.State != model.StateIdle {
		t.Errorf("New session must start IDLE, got %v", sess.State)
	}
	if sess.MaxTrades != 3 || sess.MaxLosses != 2 {
		t.Errorf("Expected limits 3/2, got %d/%d", sess.MaxTrades, sess.MaxLosses)
	}

	again, err := m.Ensure(ctx, "XAUUSD", day.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("Ensure second call: %v", err)
	}
	if again.ID != sess.ID {
		t.Errorf("Same day must return the same session: %d vs %d", again.ID, sess.ID)
	}
}

func TestTransitionPersistsAndStamps(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	m := NewMachine(cfg, store)
	ctx := context.Background()

	sess, err := m.Ensure(ctx, "XAUUSD", time.Now().UTC())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if err := m.Transition(ctx, sess, model.StateSwept, "sweep detected"); err != nil {
		t.Fatalf("Transition to SWEPT: %v", err)
	}
	if err := m.Transition(ctx, sess, model.StateConfirmed, "reversal confirmed"); err != nil {
		t.Fatalf("Transition to CONFIRMED: %v", err)
	}
	if sess.ConfirmationTime == nil {
		t.Error("Expected confirmation timestamp")
	}

	if err := m.Transition(ctx, sess, model.StateArmed, "signal armed"); err != nil {
		t.Fatalf("Transition to ARMED: %v", err)
	}
	if sess.ArmedTime == nil {
		t.Error("Expected armed timestamp")
	}

	if err := m.Transition(ctx, sess, model.StateInTrade, "order filled"); err != nil {
		t.Fatalf("Transition to IN_TRADE: %v", err)
	}
	if err := m.Transition(ctx, sess, model.StateCooldown, "position closed"); err != nil {
		t.Fatalf("Transition to COOLDOWN: %v", err)
	}
	if sess.CooldownUntil == nil {
		t.Fatal("Expected cooldown deadline")
	}
	if sess.CooldownReason != "position closed" {
		t.Errorf("Expected cooldown reason to be recorded, got %q", sess.CooldownReason)
	}

	// persisted state matches
	stored, err := store.SessionForDay(ctx, sess.Date, "XAUUSD")
	if err != nil {
		t.Fatalf("SessionForDay: %v", err)
	}
	if stored.State != model.StateCooldown {
		t.Errorf("Persisted state %v, want COOLDOWN", stored.State)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	m := NewMachine(cfg, store)
	ctx := context.Background()

	sess, err := m.Ensure(ctx, "XAUUSD", time.Now().UTC())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	err = m.Transition(ctx, sess, model.StateInTrade, "skip ahead")
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	if sess.State != model.StateIdle {
		t.Errorf("State must be unchanged after rejected transition, got %v", sess.State)
	}
}

func TestCooldownResetClearsAttemptFields(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	m := NewMachine(cfg, store)
	ctx := context.Background()

	sess, _ := m.Ensure(ctx, "XAUUSD", time.Now().UTC())
	sess.SweepDirection = model.DirectionUp
	sess.SweepPrice = 2011.6
	sess.TradeCount = 1

	if err := m.Transition(ctx, sess, model.StateCooldown, "both sides swept"); err != nil {
		t.Fatalf("Transition to COOLDOWN: %v", err)
	}
	if err := m.Transition(ctx, sess, model.StateIdle, "cooldown elapsed"); err != nil {
		t.Fatalf("Transition to IDLE: %v", err)
	}

	if sess.SweepDirection != "" || sess.SweepPrice != 0 {
		t.Error("Attempt fields must be cleared on reset to IDLE")
	}
	if sess.TradeCount != 1 {
		t.Error("Daily counters must survive the reset")
	}
}

func TestCooldownElapsed(t *testing.T) {
	cfg := config.Default()
	m := NewMachine(cfg, memory.New())
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	until := now.Add(30 * time.Minute)
	sess := &model.Session{CooldownUntil: &until}
	if m.CooldownElapsed(sess, now.Add(29*time.Minute)) {
		t.Error("Cooldown should still be active at 29 minutes")
	}
	if !m.CooldownElapsed(sess, until) {
		t.Error("Cooldown elapses at the deadline")
	}

	// fall back to UpdatedAt when no explicit deadline was stored
	sess = &model.Session{UpdatedAt: now}
	if m.CooldownElapsed(sess, now.Add(29*time.Minute)) {
		t.Error("Fallback dwell should still be active at 29 minutes")
	}
	if !m.CooldownElapsed(sess, now.Add(30*time.Minute)) {
		t.Error("Fallback dwell elapses after 30 minutes")
	}
}
