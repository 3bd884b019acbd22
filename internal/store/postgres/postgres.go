// Package postgres implements the persistence port on PostgreSQL via a
// pgx connection pool. The schema is created on startup; all history
// tables are append-only.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/model"
)

// Compile-time interface check
var _ interfaces.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                BIGSERIAL PRIMARY KEY,
	date              DATE NOT NULL,
	symbol            TEXT NOT NULL,
	state             TEXT NOT NULL,
	range_high        DOUBLE PRECISION NOT NULL DEFAULT 0,
	range_low         DOUBLE PRECISION NOT NULL DEFAULT 0,
	range_midpoint    DOUBLE PRECISION NOT NULL DEFAULT 0,
	range_size_pips   DOUBLE PRECISION NOT NULL DEFAULT 0,
	range_grade       TEXT NOT NULL DEFAULT '',
	sweep_direction   TEXT NOT NULL DEFAULT '',
	sweep_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	sweep_threshold   DOUBLE PRECISION NOT NULL DEFAULT 0,
	sweep_time        TIMESTAMPTZ,
	confirmation_time TIMESTAMPTZ,
	armed_time        TIMESTAMPTZ,
	trade_count       INT NOT NULL DEFAULT 0,
	loss_count        INT NOT NULL DEFAULT 0,
	max_trades        INT NOT NULL DEFAULT 0,
	max_losses        INT NOT NULL DEFAULT 0,
	loss_amount_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
	cooldown_reason   TEXT NOT NULL DEFAULT '',
	cooldown_until    TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (date, symbol)
);

CREATE TABLE IF NOT EXISTS sweeps (
	id             BIGSERIAL PRIMARY KEY,
	session_id     BIGINT NOT NULL REFERENCES sessions(id),
	symbol         TEXT NOT NULL,
	direction      TEXT NOT NULL,
	price          DOUBLE PRECISION NOT NULL,
	threshold_pips DOUBLE PRECISION NOT NULL,
	swept_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	id          TEXT PRIMARY KEY,
	session_id  BIGINT NOT NULL REFERENCES sessions(id),
	sweep_id    BIGINT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	entry       DOUBLE PRECISION NOT NULL,
	stop        DOUBLE PRECISION NOT NULL,
	target1     DOUBLE PRECISION NOT NULL,
	target2     DOUBLE PRECISION NOT NULL,
	volume      DOUBLE PRECISION NOT NULL,
	risk_pct    DOUBLE PRECISION NOT NULL,
	risk_reward DOUBLE PRECISION NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id              BIGSERIAL PRIMARY KEY,
	signal_id       TEXT NOT NULL REFERENCES signals(id),
	order_id        BIGINT NOT NULL,
	fill_price      DOUBLE PRECISION NOT NULL,
	fill_time       TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	stop_hit        BOOLEAN NOT NULL DEFAULT FALSE,
	target1_hit     BOOLEAN NOT NULL DEFAULT FALSE,
	target2_hit     BOOLEAN NOT NULL DEFAULT FALSE,
	breakeven_moved BOOLEAN NOT NULL DEFAULT FALSE,
	trailing_active BOOLEAN NOT NULL DEFAULT FALSE,
	pnl             DOUBLE PRECISION NOT NULL DEFAULT 0,
	closed_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS management_actions (
	id           BIGSERIAL PRIMARY KEY,
	execution_id BIGINT NOT NULL REFERENCES executions(id),
	action_type  TEXT NOT NULL,
	old_value    DOUBLE PRECISION NOT NULL,
	new_value    DOUBLE PRECISION NOT NULL,
	reason       TEXT NOT NULL,
	acted_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS confluence_checks (
	id              BIGSERIAL PRIMARY KEY,
	session_id      BIGINT NOT NULL REFERENCES sessions(id),
	timeframe       TEXT NOT NULL,
	bias            TEXT NOT NULL,
	spread_pips     DOUBLE PRECISION NOT NULL,
	news_risk       BOOLEAN NOT NULL,
	news_buffer_min INT NOT NULL,
	passed          BOOLEAN NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS news_events (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL,
	currency       TEXT NOT NULL,
	release_time   TIMESTAMPTZ NOT NULL,
	severity       TEXT NOT NULL,
	buffer_minutes INT NOT NULL,
	description    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS system_events (
	id         BIGSERIAL PRIMARY KEY,
	level      TEXT NOT NULL,
	component  TEXT NOT NULL,
	message    TEXT NOT NULL,
	emitted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sweeps_session ON sweeps (session_id, id);
CREATE INDEX IF NOT EXISTS idx_signals_session ON signals (session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_executions_signal ON executions (signal_id, id);
CREATE INDEX IF NOT EXISTS idx_actions_execution ON management_actions (execution_id, action_type);
CREATE INDEX IF NOT EXISTS idx_news_release ON news_events (release_time);
`

// Store is the PostgreSQL persistence layer.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against the DSN, pings it and ensures the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	const query = `
		INSERT INTO sessions (
			date, symbol, state,
			range_high, range_low, range_midpoint, range_size_pips, range_grade,
			sweep_direction, sweep_price, sweep_threshold, sweep_time,
			confirmation_time, armed_time,
			trade_count, loss_count, max_trades, max_losses, loss_amount_limit,
			cooldown_reason, cooldown_until, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14,
			$15, $16, $17, $18, $19,
			$20, $21, $22, $23
		) RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		sess.Date, sess.Symbol, string(sess.State),
		sess.Range.High, sess.Range.Low, sess.Range.Midpoint, sess.Range.SizePips, string(sess.Range.Grade),
		string(sess.SweepDirection), sess.SweepPrice, sess.SweepThreshold, sess.SweepTime,
		sess.ConfirmationTime, sess.ArmedTime,
		sess.TradeCount, sess.LossCount, sess.MaxTrades, sess.MaxLosses, sess.LossAmountLimit,
		sess.CooldownReason, sess.CooldownUntil, sess.CreatedAt, sess.UpdatedAt,
	).Scan(&sess.ID)
	if err != nil {
		return fmt.Errorf("postgres: create session %s: %w", sess.Symbol, err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *model.Session) error {
	const query = `
		UPDATE sessions SET
			state = $1,
			range_high = $2, range_low = $3, range_midpoint = $4,
			range_size_pips = $5, range_grade = $6,
			sweep_direction = $7, sweep_price = $8, sweep_threshold = $9, sweep_time = $10,
			confirmation_time = $11, armed_time = $12,
			trade_count = $13, loss_count = $14,
			cooldown_reason = $15, cooldown_until = $16, updated_at = $17
		WHERE id = $18`

	tag, err := s.pool.Exec(ctx, query,
		string(sess.State),
		sess.Range.High, sess.Range.Low, sess.Range.Midpoint,
		sess.Range.SizePips, string(sess.Range.Grade),
		string(sess.SweepDirection), sess.SweepPrice, sess.SweepThreshold, sess.SweepTime,
		sess.ConfirmationTime, sess.ArmedTime,
		sess.TradeCount, sess.LossCount,
		sess.CooldownReason, sess.CooldownUntil, sess.UpdatedAt,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update session %d: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

const sessionCols = `id, date, symbol, state,
	range_high, range_low, range_midpoint, range_size_pips, range_grade,
	sweep_direction, sweep_price, sweep_threshold, sweep_time,
	confirmation_time, armed_time,
	trade_count, loss_count, max_trades, max_losses, loss_amount_limit,
	cooldown_reason, cooldown_until, created_at, updated_at`

func (s *Store) SessionForDay(ctx context.Context, date time.Time, symbol string) (*model.Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions WHERE date = $1 AND symbol = $2`

	var sess model.Session
	var state, grade, direction string
	err := s.pool.QueryRow(ctx, query, date, symbol).Scan(
		&sess.ID, &sess.Date, &sess.Symbol, &state,
		&sess.Range.High, &sess.Range.Low, &sess.Range.Midpoint, &sess.Range.SizePips, &grade,
		&direction, &sess.SweepPrice, &sess.SweepThreshold, &sess.SweepTime,
		&sess.ConfirmationTime, &sess.ArmedTime,
		&sess.TradeCount, &sess.LossCount, &sess.MaxTrades, &sess.MaxLosses, &sess.LossAmountLimit,
		&sess.CooldownReason, &sess.CooldownUntil, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: load session %s: %w", symbol, err)
	}
	sess.State = model.State(state)
	sess.Range.Grade = model.Grade(grade)
	sess.SweepDirection = model.Direction(direction)
	return &sess, nil
}

func (s *Store) CreateSweep(ctx context.Context, sw *model.Sweep) error {
	const query = `
		INSERT INTO sweeps (session_id, symbol, direction, price, threshold_pips, swept_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		sw.SessionID, sw.Symbol, string(sw.Direction), sw.Price, sw.ThresholdPips, sw.Time,
	).Scan(&sw.ID)
	if err != nil {
		return fmt.Errorf("postgres: create sweep: %w", err)
	}
	return nil
}

func (s *Store) LatestSweep(ctx context.Context, sessionID int64) (*model.Sweep, error) {
	const query = `
		SELECT id, session_id, symbol, direction, price, threshold_pips, swept_at
		FROM sweeps WHERE session_id = $1 ORDER BY id DESC LIMIT 1`

	var sw model.Sweep
	var direction string
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&sw.ID, &sw.SessionID, &sw.Symbol, &direction, &sw.Price, &sw.ThresholdPips, &sw.Time,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: load sweep: %w", err)
	}
	sw.Direction = model.Direction(direction)
	return &sw, nil
}

func (s *Store) CreateSignal(ctx context.Context, sig *model.Signal) error {
	const query = `
		INSERT INTO signals (
			id, session_id, sweep_id, symbol, side,
			entry, stop, target1, target2, volume,
			risk_pct, risk_reward, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.SessionID, sig.SweepID, sig.Symbol, string(sig.Side),
		sig.Entry, sig.Stop, sig.Target1, sig.Target2, sig.Volume,
		sig.RiskPct, sig.RiskReward, string(sig.Status), sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create signal %s: %w", sig.ID, err)
	}
	return nil
}

func (s *Store) UpdateSignalStatus(ctx context.Context, id string, status model.SignalStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE signals SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update signal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) LatestSignal(ctx context.Context, sessionID int64) (*model.Signal, error) {
	const query = `
		SELECT id, session_id, sweep_id, symbol, side,
			entry, stop, target1, target2, volume,
			risk_pct, risk_reward, status, created_at
		FROM signals WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`

	var sig model.Signal
	var side, status string
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&sig.ID, &sig.SessionID, &sig.SweepID, &sig.Symbol, &side,
		&sig.Entry, &sig.Stop, &sig.Target1, &sig.Target2, &sig.Volume,
		&sig.RiskPct, &sig.RiskReward, &status, &sig.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: load signal: %w", err)
	}
	sig.Side = model.Side(side)
	sig.Status = model.SignalStatus(status)
	return &sig, nil
}

func (s *Store) CreateExecution(ctx context.Context, e *model.Execution) error {
	const query = `
		INSERT INTO executions (
			signal_id, order_id, fill_price, fill_time, status,
			stop_hit, target1_hit, target2_hit, breakeven_moved, trailing_active,
			pnl, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		e.SignalID, e.OrderID, e.FillPrice, e.FillTime, e.Status,
		e.StopHit, e.Target1Hit, e.Target2Hit, e.BreakevenMoved, e.TrailingActive,
		e.PnL, e.ClosedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("postgres: create execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, e *model.Execution) error {
	const query = `
		UPDATE executions SET
			status = $1, stop_hit = $2, target1_hit = $3, target2_hit = $4,
			breakeven_moved = $5, trailing_active = $6, pnl = $7, closed_at = $8
		WHERE id = $9`

	tag, err := s.pool.Exec(ctx, query,
		e.Status, e.StopHit, e.Target1Hit, e.Target2Hit,
		e.BreakevenMoved, e.TrailingActive, e.PnL, e.ClosedAt,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update execution %d: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) LatestExecution(ctx context.Context, signalID string) (*model.Execution, error) {
	const query = `
		SELECT id, signal_id, order_id, fill_price, fill_time, status,
			stop_hit, target1_hit, target2_hit, breakeven_moved, trailing_active,
			pnl, closed_at
		FROM executions WHERE signal_id = $1 ORDER BY id DESC LIMIT 1`

	var e model.Execution
	err := s.pool.QueryRow(ctx, query, signalID).Scan(
		&e.ID, &e.SignalID, &e.OrderID, &e.FillPrice, &e.FillTime, &e.Status,
		&e.StopHit, &e.Target1Hit, &e.Target2Hit, &e.BreakevenMoved, &e.TrailingActive,
		&e.PnL, &e.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: load execution: %w", err)
	}
	return &e, nil
}

func (s *Store) LastExecutionTime(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx, `SELECT fill_time FROM executions ORDER BY fill_time DESC LIMIT 1`).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, model.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("postgres: last execution time: %w", err)
	}
	return at, nil
}

func (s *Store) CreateManagementAction(ctx context.Context, a *model.ManagementAction) error {
	const query = `
		INSERT INTO management_actions (execution_id, action_type, old_value, new_value, reason, acted_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		a.ExecutionID, string(a.Type), a.OldValue, a.NewValue, a.Reason, a.Time,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("postgres: create management action: %w", err)
	}
	return nil
}

func (s *Store) HasManagementAction(ctx context.Context, executionID int64, t model.ActionType) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM management_actions WHERE execution_id = $1 AND action_type = $2)`,
		executionID, string(t),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check management action: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateConfluenceCheck(ctx context.Context, c *model.ConfluenceCheck) error {
	const query = `
		INSERT INTO confluence_checks (
			session_id, timeframe, bias, spread_pips,
			news_risk, news_buffer_min, passed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		c.SessionID, string(c.Timeframe), string(c.Bias), c.SpreadPips,
		c.NewsRisk, c.NewsBufferMin, c.Passed, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("postgres: create confluence check: %w", err)
	}
	return nil
}

func (s *Store) CreateNewsEvent(ctx context.Context, n *model.NewsEvent) error {
	const query = `
		INSERT INTO news_events (name, currency, release_time, severity, buffer_minutes, description)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		n.Name, n.Currency, n.ReleaseTime, string(n.Severity), n.BufferMinutes, n.Description,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("postgres: create news event: %w", err)
	}
	return nil
}

func (s *Store) NewsEventsBetween(ctx context.Context, from, to time.Time, severities []model.Severity) ([]model.NewsEvent, error) {
	names := make([]string, len(severities))
	for i, sev := range severities {
		names[i] = string(sev)
	}

	const query = `
		SELECT id, name, currency, release_time, severity, buffer_minutes, description
		FROM news_events
		WHERE release_time BETWEEN $1 AND $2 AND severity = ANY($3)
		ORDER BY release_time`

	rows, err := s.pool.Query(ctx, query, from, to, names)
	if err != nil {
		return nil, fmt.Errorf("postgres: query news events: %w", err)
	}
	defer rows.Close()

	var out []model.NewsEvent
	for rows.Next() {
		var n model.NewsEvent
		var severity string
		if err := rows.Scan(&n.ID, &n.Name, &n.Currency, &n.ReleaseTime, &severity, &n.BufferMinutes, &n.Description); err != nil {
			return nil, fmt.Errorf("postgres: scan news event: %w", err)
		}
		n.Severity = model.Severity(severity)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate news events: %w", err)
	}
	return out, nil
}

func (s *Store) CreateSystemEvent(ctx context.Context, ev *model.SystemEvent) error {
	const query = `
		INSERT INTO system_events (level, component, message, emitted_at)
		VALUES ($1, $2, $3, $4) RETURNING id`

	err := s.pool.QueryRow(ctx, query, ev.Level, ev.Component, ev.Message, ev.Time).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("postgres: create system event: %w", err)
	}
	return nil
}
