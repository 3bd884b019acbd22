// Package sim is an in-memory trading terminal used for dry runs and
// tests. Quotes, bars and account state are settable; orders fill
// immediately at the current quote and land in a position book.
package sim

import (
	"context"
	"sync"
	"time"

	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/model"
)

// Compile-time interface check
var _ interfaces.MarketData = (*Terminal)(nil)

// Terminal simulates the market-data port.
type Terminal struct {
	mu sync.Mutex

	symbol string
	tick   model.Tick
	bars   map[model.Timeframe][]model.Bar

	account model.AccountInfo
	meta    model.SymbolMeta

	positions  map[int64]*model.Position
	nextTicket int64

	rejectOrders bool
}

// Option configures the simulated terminal.
type Option func(*Terminal)

// WithQuote sets the current bid and ask.
func WithQuote(bid, ask float64) Option {
	return func(t *Terminal) {
		t.tick.Bid = bid
		t.tick.Ask = ask
	}
}

// WithEquity sets balance and equity.
func WithEquity(equity float64) Option {
	return func(t *Terminal) {
		t.account.Balance = equity
		t.account.Equity = equity
	}
}

// WithBars replaces the bar series for a timeframe.
func WithBars(tf model.Timeframe, bars []model.Bar) Option {
	return func(t *Terminal) {
		t.bars[tf] = bars
	}
}

// WithMeta overrides the symbol metadata.
func WithMeta(meta model.SymbolMeta) Option {
	return func(t *Terminal) {
		t.meta = meta
	}
}

// WithRejectedOrders makes PlaceOrder fail with model.ErrOrderRejected.
func WithRejectedOrders() Option {
	return func(t *Terminal) {
		t.rejectOrders = true
	}
}

// New creates a simulated terminal for one symbol with mock defaults:
// a 1995-2005 overnight range, quote 2000.0/2000.5 and 10000 equity.
func New(symbol string, opts ...Option) *Terminal {
	t := &Terminal{
		symbol: symbol,
		tick: model.Tick{
			Symbol: symbol,
			Bid:    2000.0,
			Ask:    2000.5,
		},
		bars: make(map[model.Timeframe][]model.Bar),
		account: model.AccountInfo{
			Balance: 10000.0,
			Equity:  10000.0,
		},
		meta: model.SymbolMeta{
			Symbol:       symbol,
			PointSize:    0.01,
			TickValue:    1.0,
			ContractSize: 100.0,
		},
		positions:  make(map[int64]*model.Position),
		nextTicket: 1000,
	}
	for _, opt := range opts {
		opt(t)
	}
	if len(t.bars) == 0 {
		t.seedDefaultBars()
	}
	return t
}

// seedDefaultBars fills each timeframe with flat synthetic bars spanning
// today's overnight window between 1995 and 2005.
func (t *Terminal) seedDefaultBars() {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	for _, tf := range []model.Timeframe{model.TimeframeM1, model.TimeframeM5, model.TimeframeH4, model.TimeframeD1} {
		step := tf.Duration()
		span := 6 * time.Hour
		if tf == model.TimeframeH4 {
			span = 30 * 24 * time.Hour
		}
		if tf == model.TimeframeD1 {
			span = 60 * 24 * time.Hour
		}
		start := day.Add(-span + 6*time.Hour)
		if tf == model.TimeframeM1 || tf == model.TimeframeM5 {
			start = day
		}
		var bars []model.Bar
		for at := start; at.Before(day.Add(6 * time.Hour)); at = at.Add(step) {
			bars = append(bars, model.Bar{
				Time:   at,
				Open:   2000.0,
				High:   2005.0,
				Low:    1995.0,
				Close:  2000.0,
				Volume: 100,
			})
		}
		t.bars[tf] = bars
	}
}

// SetTick updates the current quote.
func (t *Terminal) SetTick(bid, ask float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick.Bid = bid
	t.tick.Ask = ask
	t.tick.Time = time.Now().UTC()
}

// AppendBars appends bars to a timeframe series.
func (t *Terminal) AppendBars(tf model.Timeframe, bars ...model.Bar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bars[tf] = append(t.bars[tf], bars...)
}

// SetRejectOrders toggles order rejection at runtime.
func (t *Terminal) SetRejectOrders(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejectOrders = enabled
}

// SetBars replaces a timeframe series.
func (t *Terminal) SetBars(tf model.Timeframe, bars []model.Bar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bars[tf] = bars
}

func (t *Terminal) GetBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.Bar
	for _, b := range t.bars[tf] {
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, model.ErrDataUnavailable
	}
	return out, nil
}

func (t *Terminal) GetTick(ctx context.Context, symbol string) (model.Tick, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tick := t.tick
	if tick.Time.IsZero() {
		tick.Time = time.Now().UTC()
	}
	return tick, nil
}

func (t *Terminal) GetAccountInfo(ctx context.Context) (model.AccountInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.account, nil
}

func (t *Terminal) GetSymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meta, nil
}

func (t *Terminal) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rejectOrders {
		return model.OrderResult{}, model.ErrOrderRejected
	}

	fill := t.tick.Ask
	if req.Side == model.SideSell {
		fill = t.tick.Bid
	}

	t.nextTicket++
	ticket := t.nextTicket
	t.positions[ticket] = &model.Position{
		Ticket:   ticket,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Volume:   req.Volume,
		Entry:    fill,
		Stop:     req.Stop,
		Target:   req.Target,
		OpenTime: time.Now().UTC(),
	}

	return model.OrderResult{
		OrderID:   ticket,
		FillPrice: fill,
		Volume:    req.Volume,
		Comment:   req.Comment,
	}, nil
}

func (t *Terminal) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[ticket]
	if !ok {
		return model.ErrNotFound
	}
	if volume <= 0 || volume >= pos.Volume {
		delete(t.positions, ticket)
		return nil
	}
	pos.Volume -= volume
	return nil
}

func (t *Terminal) ModifyStopTarget(ctx context.Context, ticket int64, stop, target float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[ticket]
	if !ok {
		return model.ErrNotFound
	}
	if stop != 0 {
		pos.Stop = stop
	}
	if target != 0 {
		pos.Target = target
	}
	return nil
}

func (t *Terminal) OpenPositions(ctx context.Context, symbol string) ([]model.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []model.Position
	for _, pos := range t.positions {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		p := *pos
		// mark to the current quote
		if p.Side == model.SideBuy {
			p.Profit = (t.tick.Bid - p.Entry) / t.meta.PointSize * t.meta.TickValue * p.Volume
		} else {
			p.Profit = (p.Entry - t.tick.Ask) / t.meta.PointSize * t.meta.TickValue * p.Volume
		}
		out = append(out, p)
	}
	return out, nil
}
