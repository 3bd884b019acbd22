package strategy

import (
	"context"
	"errors"
	"math"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/ta"
)

const (
	biasSMAPeriod = 20
	biasBandPct   = 0.001 // 0.1% neutral band around the SMA

	d1LookbackDays = 60
	h4LookbackDays = 30
)

// BlackoutChecker reports whether entries are currently blacked out by a
// scheduled news release, and the effective buffer in minutes.
type BlackoutChecker interface {
	Blackout(ctx context.Context, now time.Time) (bool, int, error)
}

// ConfluenceGate runs the entry filters: spread, higher-timeframe bias
// and the news blackout. Bias is recorded for audit but never blocks; a
// directional filter consistently degraded results in replay, so the
// gate keeps it permissive.
type ConfluenceGate struct {
	cfg    *config.Config
	market interfaces.MarketData
	store  interfaces.Store
	news   BlackoutChecker
}

// NewConfluenceGate creates a confluence gate. news may be nil when the
// calendar feed is disabled.
func NewConfluenceGate(cfg *config.Config, market interfaces.MarketData, store interfaces.Store, news BlackoutChecker) *ConfluenceGate {
	return &ConfluenceGate{cfg: cfg, market: market, store: store, news: news}
}

// ConfluenceResult is the gate outcome plus the individual readings.
type ConfluenceResult struct {
	Passed     bool
	SpreadPips float64
	SpreadOK   bool
	BiasD1     model.Bias
	BiasH4     model.Bias
	NewsRisk   bool
	NewsBuffer int
}

// Evaluate runs all filters and writes one audit row per timeframe.
// Audit write failures are logged and swallowed; the gate result stands.
func (cg *ConfluenceGate) Evaluate(ctx context.Context, sessionID int64, symbol string, tick model.Tick, now time.Time) (ConfluenceResult, error) {
	var res ConfluenceResult

	res.SpreadPips = (tick.Ask - tick.Bid) / cg.cfg.Instrument.PipSize
	res.SpreadOK = res.SpreadPips <= cg.cfg.Confluence.MaxSpreadPips

	res.BiasD1 = cg.biasFor(ctx, symbol, model.TimeframeD1, now)
	res.BiasH4 = cg.biasFor(ctx, symbol, model.TimeframeH4, now)

	if cg.news != nil {
		risk, buffer, err := cg.news.Blackout(ctx, now)
		if err != nil {
			logger.Warn(ctx, "News blackout check failed, assuming clear", "error", err)
		} else {
			res.NewsRisk = risk
			res.NewsBuffer = buffer
		}
	}

	res.Passed = res.SpreadOK && !res.NewsRisk

	cg.audit(ctx, sessionID, model.TimeframeD1, res.BiasD1, res)
	cg.audit(ctx, sessionID, model.TimeframeH4, res.BiasH4, res)

	logger.Info(ctx, "Confluence evaluated",
		"symbol", symbol,
		"passed", res.Passed,
		"spread_pips", res.SpreadPips,
		"bias_d1", res.BiasD1,
		"bias_h4", res.BiasH4,
		"news_risk", res.NewsRisk,
	)
	return res, nil
}

// biasFor reads the close against an SMA with a neutral band. Any data
// problem degrades to UNKNOWN rather than failing the gate.
func (cg *ConfluenceGate) biasFor(ctx context.Context, symbol string, tf model.Timeframe, now time.Time) model.Bias {
	lookback := d1LookbackDays
	if tf == model.TimeframeH4 {
		lookback = h4LookbackDays
	}

	bars, err := cg.market.GetBars(ctx, symbol, tf, now.AddDate(0, 0, -lookback), now)
	if err != nil {
		if !errors.Is(err, model.ErrDataUnavailable) {
			logger.Warn(ctx, "Bias bars unavailable", "symbol", symbol, "timeframe", tf, "error", err)
		}
		return model.BiasUnknown
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	sma := ta.SMA(closes, biasSMAPeriod)
	if math.IsNaN(sma) {
		return model.BiasUnknown
	}

	last := closes[len(closes)-1]
	switch {
	case last > sma*(1+biasBandPct):
		return model.BiasBull
	case last < sma*(1-biasBandPct):
		return model.BiasBear
	default:
		return model.BiasRange
	}
}

func (cg *ConfluenceGate) audit(ctx context.Context, sessionID int64, tf model.Timeframe, bias model.Bias, res ConfluenceResult) {
	if cg.store == nil {
		return
	}
	row := &model.ConfluenceCheck{
		SessionID:     sessionID,
		Timeframe:     tf,
		Bias:          bias,
		SpreadPips:    res.SpreadPips,
		NewsRisk:      res.NewsRisk,
		NewsBufferMin: res.NewsBuffer,
		Passed:        res.Passed,
		CreatedAt:     time.Now().UTC(),
	}
	if err := cg.store.CreateConfluenceCheck(ctx, row); err != nil {
		logger.Warn(ctx, "Failed to write confluence audit row", "error", err, "timeframe", tf)
	}
}
