// Package session owns the per-day state machine: the transition table,
// session bootstrap and the persisted transition path.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

// transitions is the allowed-edge table. Every state can reach COOLDOWN;
// COOLDOWN only resets to IDLE.
var transitions = map[model.State][]model.State{
	model.StateIdle:      {model.StateSwept, model.StateCooldown},
	model.StateSwept:     {model.StateConfirmed, model.StateCooldown},
	model.StateConfirmed: {model.StateArmed, model.StateCooldown},
	model.StateArmed:     {model.StateInTrade, model.StateCooldown},
	model.StateInTrade:   {model.StateCooldown},
	model.StateCooldown:  {model.StateIdle},
}

// CanTransition reports whether the edge from -> to is in the table.
func CanTransition(from, to model.State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine validates and persists session state transitions.
type Machine struct {
	cfg   *config.Config
	store interfaces.Store
}

// NewMachine creates a session machine.
func NewMachine(cfg *config.Config, store interfaces.Store) *Machine {
	return &Machine{cfg: cfg, store: store}
}

// Ensure returns the session for (day, symbol), creating an IDLE one with
// the configured daily limits if none exists yet.
func (m *Machine) Ensure(ctx context.Context, symbol string, day time.Time) (*model.Session, error) {
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	sess, err := m.store.SessionForDay(ctx, date, symbol)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := time.Now().UTC()
	sess = &model.Session{
		Date:            date,
		Symbol:          symbol,
		State:           model.StateIdle,
		MaxTrades:       m.cfg.Limits.MaxDailyTrades,
		MaxLosses:       m.cfg.Limits.MaxDailyLosses,
		LossAmountLimit: m.cfg.Limits.DailyLossAmount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Info(ctx, "Session created", "symbol", symbol, "date", date.Format("2006-01-02"), "session_id", sess.ID)
	m.systemEvent(ctx, "SESSION_CREATED", fmt.Sprintf("session %d created for %s", sess.ID, symbol))
	return sess, nil
}

// Transition validates the edge, stamps the stage timestamps and persists
// the session. Invalid edges return model.ErrInvalidTransition and leave
// the session untouched.
func (m *Machine) Transition(ctx context.Context, sess *model.Session, to model.State, reason string) error {
	from := sess.State
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	sess.State = to
	sess.UpdatedAt = now

	switch to {
	case model.StateConfirmed:
		sess.ConfirmationTime = &now
	case model.StateArmed:
		sess.ArmedTime = &now
	case model.StateCooldown:
		until := now.Add(time.Duration(m.cfg.Session.CooldownMinutes) * time.Minute)
		sess.CooldownReason = reason
		sess.CooldownUntil = &until
	case model.StateIdle:
		// cooldown expired: clear the per-attempt fields, keep counters.
		// The sweep direction and threshold survive the reset so a breach
		// of the opposite side later the same day parks the session
		// instead of re-arming.
		sess.SweepPrice = 0
		sess.SweepTime = nil
		sess.ConfirmationTime = nil
		sess.ArmedTime = nil
		sess.CooldownReason = ""
		sess.CooldownUntil = nil
	}

	if err := m.store.UpdateSession(ctx, sess); err != nil {
		// roll the in-memory state back so a retry sees the old state
		sess.State = from
		return fmt.Errorf("persist transition: %w", err)
	}

	logger.Transition(ctx, sess.Symbol, string(from), string(to), reason, "session_id", sess.ID)
	m.systemEvent(ctx, "STATE_TRANSITION", fmt.Sprintf("%s: %s -> %s (%s)", sess.Symbol, from, to, reason))
	return nil
}

// CooldownElapsed reports whether the cooldown dwell has passed.
func (m *Machine) CooldownElapsed(sess *model.Session, now time.Time) bool {
	if sess.CooldownUntil != nil {
		return !now.Before(*sess.CooldownUntil)
	}
	return !now.Before(sess.UpdatedAt.Add(time.Duration(m.cfg.Session.CooldownMinutes) * time.Minute))
}

func (m *Machine) systemEvent(ctx context.Context, component, message string) {
	ev := &model.SystemEvent{
		Level:     "INFO",
		Component: component,
		Message:   message,
		Time:      time.Now().UTC(),
	}
	if err := m.store.CreateSystemEvent(ctx, ev); err != nil {
		logger.Warn(ctx, "Failed to write system event", "error", err, "component", component)
	}
}
