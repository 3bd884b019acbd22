// Package memory is the in-process Store used in dry runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/model"
)

// Compile-time interface check
var _ interfaces.Store = (*Store)(nil)

// Store keeps all rows in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	nextID int64

	sessions   map[int64]*model.Session
	sweeps     map[int64]*model.Sweep
	signals    map[string]*model.Signal
	executions map[int64]*model.Execution
	actions    []*model.ManagementAction
	checks     []*model.ConfluenceCheck
	news       map[int64]*model.NewsEvent
	events     []*model.SystemEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:   make(map[int64]*model.Session),
		sweeps:     make(map[int64]*model.Sweep),
		signals:    make(map[string]*model.Signal),
		executions: make(map[int64]*model.Execution),
		news:       make(map[int64]*model.NewsEvent),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ID = s.id()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) SessionForDay(ctx context.Context, date time.Time, symbol string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Symbol == symbol && sameDay(sess.Date, date) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *Store) CreateSweep(ctx context.Context, sw *model.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw.ID = s.id()
	cp := *sw
	s.sweeps[sw.ID] = &cp
	return nil
}

func (s *Store) LatestSweep(ctx context.Context, sessionID int64) (*model.Sweep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Sweep
	for _, sw := range s.sweeps {
		if sw.SessionID != sessionID {
			continue
		}
		if latest == nil || sw.Time.After(latest.Time) || (sw.Time.Equal(latest.Time) && sw.ID > latest.ID) {
			latest = sw
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) CreateSignal(ctx context.Context, sig *model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sig
	s.signals[sig.ID] = &cp
	return nil
}

func (s *Store) UpdateSignalStatus(ctx context.Context, id string, status model.SignalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return model.ErrNotFound
	}
	sig.Status = status
	return nil
}

func (s *Store) LatestSignal(ctx context.Context, sessionID int64) (*model.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Signal
	for _, sig := range s.signals {
		if sig.SessionID != sessionID {
			continue
		}
		if latest == nil || sig.CreatedAt.After(latest.CreatedAt) {
			latest = sig
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) CreateExecution(ctx context.Context, e *model.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	cp := *e
	s.executions[e.ID] = &cp
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, e *model.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *e
	s.executions[e.ID] = &cp
	return nil
}

func (s *Store) LatestExecution(ctx context.Context, signalID string) (*model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Execution
	for _, e := range s.executions {
		if e.SignalID != signalID {
			continue
		}
		if latest == nil || e.ID > latest.ID {
			latest = e
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) LastExecutionTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, e := range s.executions {
		if e.FillTime.After(last) {
			last = e.FillTime
		}
	}
	if last.IsZero() {
		return time.Time{}, model.ErrNotFound
	}
	return last, nil
}

func (s *Store) CreateManagementAction(ctx context.Context, a *model.ManagementAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	cp := *a
	s.actions = append(s.actions, &cp)
	return nil
}

func (s *Store) HasManagementAction(ctx context.Context, executionID int64, t model.ActionType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a.ExecutionID == executionID && a.Type == t {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateConfluenceCheck(ctx context.Context, c *model.ConfluenceCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	cp := *c
	s.checks = append(s.checks, &cp)
	return nil
}

func (s *Store) CreateNewsEvent(ctx context.Context, n *model.NewsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	cp := *n
	s.news[n.ID] = &cp
	return nil
}

func (s *Store) NewsEventsBetween(ctx context.Context, from, to time.Time, severities []model.Severity) ([]model.NewsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.NewsEvent
	for _, n := range s.news {
		if n.ReleaseTime.Before(from) || n.ReleaseTime.After(to) {
			continue
		}
		if len(severities) > 0 && !containsSeverity(severities, n.Severity) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (s *Store) CreateSystemEvent(ctx context.Context, ev *model.SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = s.id()
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

// SystemEvents returns a copy of all recorded system events, oldest first.
func (s *Store) SystemEvents() []model.SystemEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SystemEvent, len(s.events))
	for i, ev := range s.events {
		out[i] = *ev
	}
	return out
}

// ConfluenceChecks returns a copy of all recorded audit rows.
func (s *Store) ConfluenceChecks() []model.ConfluenceCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConfluenceCheck, len(s.checks))
	for i, c := range s.checks {
		out[i] = *c
	}
	return out
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func containsSeverity(list []model.Severity, s model.Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
