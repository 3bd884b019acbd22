// Package model holds the domain entities shared by the strategy engine,
// the stores and the operational surface. Entities mirror the persistence
// contract: a Session owns its Sweeps and Signals, a Signal owns its
// Executions, an Execution owns its ManagementActions.
package model

import "time"

// State is the per-session state machine position.
type State string

const (
	StateIdle      State = "IDLE"
	StateSwept     State = "SWEPT"
	StateConfirmed State = "CONFIRMED"
	StateArmed     State = "ARMED"
	StateInTrade   State = "IN_TRADE"
	StateCooldown  State = "COOLDOWN"
)

// Direction of a liquidity sweep relative to the reference range.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Side of a trade. The strategy fades the sweep: UP sweep -> SELL,
// DOWN sweep -> BUY.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// FadeSide returns the trade side that fades a sweep direction.
func FadeSide(d Direction) Side {
	if d == DirectionUp {
		return SideSell
	}
	return SideBuy
}

// Grade classifies the reference range size.
type Grade string

const (
	GradeTight  Grade = "TIGHT"
	GradeNormal Grade = "NORMAL"
	GradeWide   Grade = "WIDE"
)

// Bias is the higher-timeframe directional read. It is recorded for audit
// and never blocks entry.
type Bias string

const (
	BiasBull    Bias = "BULL"
	BiasBear    Bias = "BEAR"
	BiasRange   Bias = "RANGE"
	BiasUnknown Bias = "UNKNOWN"
)

// Timeframe names the bar intervals the market-data port understands.
type Timeframe string

const (
	TimeframeM1 Timeframe = "M1"
	TimeframeM5 Timeframe = "M5"
	TimeframeH4 Timeframe = "H4"
	TimeframeD1 Timeframe = "D1"
)

// Duration returns the bar interval as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TimeframeM1:
		return time.Minute
	case TimeframeM5:
		return 5 * time.Minute
	case TimeframeH4:
		return 4 * time.Hour
	case TimeframeD1:
		return 24 * time.Hour
	}
	return 5 * time.Minute
}

// ActionType names a trade-management adjustment. Every type is applied at
// most once per execution except TRAILING_STOP, which may repeat with
// monotonically improving stop levels.
type ActionType string

const (
	ActionMoveToBreakeven   ActionType = "MOVE_TO_BREAKEVEN"
	ActionTrailingStop      ActionType = "TRAILING_STOP"
	ActionPartialTakeProfit ActionType = "PARTIAL_TAKE_PROFIT"
	ActionCloseSessionEnd   ActionType = "CLOSE_SESSION_END"
	ActionCloseNewsBlackout ActionType = "CLOSE_NEWS_BLACKOUT"
	ActionCloseTimeout      ActionType = "CLOSE_TIMEOUT"
)

// SignalStatus is the lifecycle status of a Signal.
type SignalStatus string

const (
	SignalActive    SignalStatus = "ACTIVE"
	SignalExecuted  SignalStatus = "EXECUTED"
	SignalCancelled SignalStatus = "CANCELLED"
)

// Severity grades a scheduled news event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ReferenceRange is the computed Asian-session range for a trading day.
type ReferenceRange struct {
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Midpoint float64 `json:"midpoint"`
	SizePips float64 `json:"size_pips"`
	Grade    Grade   `json:"grade"`
}

// IsZero reports whether the range has not been populated yet (market was
// closed when the session was created).
func (r ReferenceRange) IsZero() bool {
	return r.High == 0 && r.Low == 0
}

// Session is the per-day, per-symbol state-machine row. One non-terminal
// session exists per (date, symbol); history is append-only.
type Session struct {
	ID               int64
	Date             time.Time
	Symbol           string
	State            State
	Range            ReferenceRange
	SweepDirection   Direction
	SweepPrice       float64
	SweepThreshold   float64
	SweepTime        *time.Time
	ConfirmationTime *time.Time
	ArmedTime        *time.Time
	TradeCount       int
	LossCount        int
	MaxTrades        int
	MaxLosses        int
	LossAmountLimit  float64
	CooldownReason   string
	CooldownUntil    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Sweep is the immutable record of a detected range breach.
type Sweep struct {
	ID            int64
	SessionID     int64
	Symbol        string
	Direction     Direction
	Price         float64
	ThresholdPips float64
	Time          time.Time
}

// Signal is a candidate trade produced at the CONFIRMED->ARMED transition.
// Immutable after creation except Status.
type Signal struct {
	ID         string
	SessionID  int64
	SweepID    int64
	Symbol     string
	Side       Side
	Entry      float64
	Stop       float64
	Target1    float64
	Target2    float64
	Volume     float64
	RiskPct    float64
	RiskReward float64
	Status     SignalStatus
	CreatedAt  time.Time
}

// Execution is one placed order for a Signal, updated by the trade manager
// as management actions occur and closed when the position is flat.
type Execution struct {
	ID             int64
	SignalID       string
	OrderID        int64
	FillPrice      float64
	FillTime       time.Time
	Status         string
	StopHit        bool
	Target1Hit     bool
	Target2Hit     bool
	BreakevenMoved bool
	TrailingActive bool
	PnL            float64
	ClosedAt       *time.Time
}

// ManagementAction is one append-only adjustment applied to an Execution.
type ManagementAction struct {
	ID          int64
	ExecutionID int64
	Type        ActionType
	OldValue    float64
	NewValue    float64
	Reason      string
	Time        time.Time
}

// ConfluenceCheck is an audit row for one timeframe of a gate evaluation.
type ConfluenceCheck struct {
	ID            int64
	SessionID     int64
	Timeframe     Timeframe
	Bias          Bias
	SpreadPips    float64
	NewsRisk      bool
	NewsBufferMin int
	Passed        bool
	CreatedAt     time.Time
}

// NewsEvent is a scheduled economic release that can black out entries.
type NewsEvent struct {
	ID            int64
	Name          string
	Currency      string
	ReleaseTime   time.Time
	Severity      Severity
	BufferMinutes int
	Description   string
}

// SystemEvent is an operational audit record emitted by the scheduler.
type SystemEvent struct {
	ID        int64
	Level     string
	Component string
	Message   string
	Time      time.Time
}

// Bar is one OHLC bar from the market-data port.
type Bar struct {
	Time                   time.Time
	Open, High, Low, Close float64
	Volume                 float64
}

// Tick is the current top-of-book quote.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// AccountInfo is the account snapshot used for position sizing.
type AccountInfo struct {
	Balance float64
	Equity  float64
}

// SymbolMeta carries the symbol-specific sizing parameters.
type SymbolMeta struct {
	Symbol       string
	PointSize    float64
	TickValue    float64
	ContractSize float64
}

// OrderRequest is a market order with protective levels attached.
type OrderRequest struct {
	Symbol    string
	Side      Side
	Volume    float64
	Stop      float64
	Target    float64
	Deviation int
	Magic     int
	Comment   string
}

// OrderResult is the broker acknowledgement for a placed order.
type OrderResult struct {
	OrderID   int64
	FillPrice float64
	Volume    float64
	Comment   string
}

// Position is a live position reported by the market-data port.
type Position struct {
	Ticket   int64
	Symbol   string
	Side     Side
	Volume   float64
	Entry    float64
	Stop     float64
	Target   float64
	Profit   float64
	OpenTime time.Time
}

// Opinion is the advisory client's best-effort second read. The
// deterministic pipeline never waits on it and never lets it veto an
// entry: a failed or slow call degrades to a fail-open Opinion.
type Opinion struct {
	Stage      State
	Proceed    bool
	Confidence float64
	Reasoning  string
	Provider   string
}

// StepResult summarizes one engine pass for the scheduler and the logs.
type StepResult struct {
	Symbol        string  `json:"symbol"`
	Stage         string  `json:"stage"`
	StateFrom     State   `json:"state_from"`
	StateTo       State   `json:"state_to"`
	Detail        string  `json:"detail,omitempty"`
	Price         float64 `json:"price,omitempty"`
	TradeExecuted bool    `json:"trade_executed,omitempty"`
	TradeClosed   bool    `json:"trade_closed,omitempty"`
	ClosedPnL     float64 `json:"closed_pnl,omitempty"`
}

// SchedulerStatus is the operational snapshot served by /status.
type SchedulerStatus struct {
	Running      bool          `json:"running"`
	Symbol       string        `json:"symbol"`
	SessionState State         `json:"session_state"`
	DailyTrades  int           `json:"daily_trades"`
	DailyLosses  int           `json:"daily_losses"`
	MaxTrades    int           `json:"max_daily_trades"`
	MaxLosses    int           `json:"max_daily_losses"`
	Interval     time.Duration `json:"monitor_interval_ns"`
	LastUpdate   time.Time     `json:"last_update"`
	LastTradeAt  *time.Time    `json:"last_trade_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}
