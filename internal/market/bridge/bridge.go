// Package bridge talks to the terminal gateway over HTTP. The gateway is
// a thin REST shim colocated with the trading terminal; this client maps
// its JSON surface onto the market-data port.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"als-trading-bot/internal/api"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/model"
)

// Compile-time interface check
var _ interfaces.MarketData = (*Client)(nil)

// Client is the HTTP implementation of the market-data port.
type Client struct {
	api   *api.Client
	retry *api.RetryConfig
}

// New creates a bridge client against the given gateway base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		api: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(timeout),
			api.WithLogging(true),
		),
		retry: api.DefaultRetryConfig(),
	}
}

// get reads from the gateway with retries. Order placement and position
// changes never retry, a duplicate there is worse than a failed pass.
func (c *Client) get(ctx context.Context, path string) (*api.Response, error) {
	return c.api.DoWithRetry(api.NewRequest(http.MethodGet, path).WithContext(ctx), c.retry)
}

type barDTO struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type tickDTO struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"`
}

type accountDTO struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

type symbolDTO struct {
	Symbol       string  `json:"symbol"`
	Point        float64 `json:"point"`
	TickValue    float64 `json:"trade_tick_value"`
	ContractSize float64 `json:"trade_contract_size"`
}

type orderResultDTO struct {
	Order   int64   `json:"order"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Retcode int     `json:"retcode"`
	Comment string  `json:"comment"`
}

type positionDTO struct {
	Ticket   int64   `json:"ticket"`
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Volume   float64 `json:"volume"`
	PriceIn  float64 `json:"price_open"`
	Stop     float64 `json:"sl"`
	Target   float64 `json:"tp"`
	Profit   float64 `json:"profit"`
	OpenTime int64   `json:"time"`
}

// notFound reports whether the gateway answered 404.
func notFound(err error) bool {
	var se *api.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func (c *Client) GetBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error) {
	path := fmt.Sprintf("/bars?symbol=%s&timeframe=%s&from=%d&to=%d",
		url.QueryEscape(symbol), tf, start.Unix(), end.Unix())

	resp, err := c.get(ctx, path)
	if err != nil {
		if notFound(err) {
			return nil, model.ErrDataUnavailable
		}
		return nil, fmt.Errorf("bridge bars: %w", err)
	}

	var dtos []barDTO
	if err := resp.ParseJSON(&dtos); err != nil {
		return nil, fmt.Errorf("bridge bars: %w", err)
	}
	if len(dtos) == 0 {
		return nil, model.ErrDataUnavailable
	}

	bars := make([]model.Bar, len(dtos))
	for i, d := range dtos {
		bars[i] = model.Bar{
			Time:   time.Unix(d.Time, 0).UTC(),
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.Volume,
		}
	}
	return bars, nil
}

func (c *Client) GetTick(ctx context.Context, symbol string) (model.Tick, error) {
	resp, err := c.get(ctx, "/tick?symbol="+url.QueryEscape(symbol))
	if err != nil {
		if notFound(err) {
			return model.Tick{}, model.ErrDataUnavailable
		}
		return model.Tick{}, fmt.Errorf("bridge tick: %w", err)
	}

	var d tickDTO
	if err := resp.ParseJSON(&d); err != nil {
		return model.Tick{}, fmt.Errorf("bridge tick: %w", err)
	}
	if d.Bid == 0 && d.Ask == 0 {
		return model.Tick{}, model.ErrDataUnavailable
	}
	return model.Tick{
		Symbol: symbol,
		Bid:    d.Bid,
		Ask:    d.Ask,
		Time:   time.Unix(d.Time, 0).UTC(),
	}, nil
}

func (c *Client) GetAccountInfo(ctx context.Context) (model.AccountInfo, error) {
	resp, err := c.get(ctx, "/account")
	if err != nil {
		return model.AccountInfo{}, fmt.Errorf("bridge account: %w", err)
	}

	var d accountDTO
	if err := resp.ParseJSON(&d); err != nil {
		return model.AccountInfo{}, fmt.Errorf("bridge account: %w", err)
	}
	return model.AccountInfo{Balance: d.Balance, Equity: d.Equity}, nil
}

func (c *Client) GetSymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error) {
	resp, err := c.get(ctx, "/symbol?symbol="+url.QueryEscape(symbol))
	if err != nil {
		if notFound(err) {
			return model.SymbolMeta{}, model.ErrDataUnavailable
		}
		return model.SymbolMeta{}, fmt.Errorf("bridge symbol: %w", err)
	}

	var d symbolDTO
	if err := resp.ParseJSON(&d); err != nil {
		return model.SymbolMeta{}, fmt.Errorf("bridge symbol: %w", err)
	}
	return model.SymbolMeta{
		Symbol:       symbol,
		PointSize:    d.Point,
		TickValue:    d.TickValue,
		ContractSize: d.ContractSize,
	}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	body := map[string]any{
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"volume":    req.Volume,
		"sl":        req.Stop,
		"tp":        req.Target,
		"deviation": req.Deviation,
		"magic":     req.Magic,
		"comment":   req.Comment,
	}

	resp, err := c.api.POST(ctx, "/order", body)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("bridge order: %w", err)
	}

	var d orderResultDTO
	if err := resp.ParseJSON(&d); err != nil {
		return model.OrderResult{}, fmt.Errorf("bridge order: %w", err)
	}
	// terminal retcode 10009 is TRADE_RETCODE_DONE
	if d.Retcode != 0 && d.Retcode != 10009 {
		return model.OrderResult{}, fmt.Errorf("%w: retcode %d %s", model.ErrOrderRejected, d.Retcode, d.Comment)
	}
	return model.OrderResult{
		OrderID:   d.Order,
		FillPrice: d.Price,
		Volume:    d.Volume,
		Comment:   d.Comment,
	}, nil
}

func (c *Client) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	body := map[string]any{
		"ticket": ticket,
		"volume": volume,
	}
	resp, err := c.api.POST(ctx, "/position/close", body)
	if err != nil {
		if notFound(err) {
			return model.ErrNotFound
		}
		return fmt.Errorf("bridge close: %w", err)
	}

	var d orderResultDTO
	if err := resp.ParseJSON(&d); err != nil {
		return fmt.Errorf("bridge close: %w", err)
	}
	if d.Retcode != 0 && d.Retcode != 10009 {
		return fmt.Errorf("%w: retcode %d %s", model.ErrOrderRejected, d.Retcode, d.Comment)
	}
	return nil
}

func (c *Client) ModifyStopTarget(ctx context.Context, ticket int64, stop, target float64) error {
	body := map[string]any{
		"ticket": ticket,
		"sl":     stop,
		"tp":     target,
	}
	resp, err := c.api.POST(ctx, "/position/modify", body)
	if err != nil {
		if notFound(err) {
			return model.ErrNotFound
		}
		return fmt.Errorf("bridge modify: %w", err)
	}

	var d orderResultDTO
	if err := resp.ParseJSON(&d); err != nil {
		return fmt.Errorf("bridge modify: %w", err)
	}
	if d.Retcode != 0 && d.Retcode != 10009 {
		return fmt.Errorf("%w: retcode %d %s", model.ErrOrderRejected, d.Retcode, d.Comment)
	}
	return nil
}

func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]model.Position, error) {
	path := "/positions"
	if symbol != "" {
		path += "?symbol=" + url.QueryEscape(symbol)
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bridge positions: %w", err)
	}

	var dtos []positionDTO
	if err := resp.ParseJSON(&dtos); err != nil {
		return nil, fmt.Errorf("bridge positions: %w", err)
	}

	out := make([]model.Position, len(dtos))
	for i, d := range dtos {
		side := model.SideBuy
		if d.Type == "SELL" {
			side = model.SideSell
		}
		out[i] = model.Position{
			Ticket:   d.Ticket,
			Symbol:   d.Symbol,
			Side:     side,
			Volume:   d.Volume,
			Entry:    d.PriceIn,
			Stop:     d.Stop,
			Target:   d.Target,
			Profit:   d.Profit,
			OpenTime: time.Unix(d.OpenTime, 0).UTC(),
		}
	}
	return out, nil
}
