package strategy

import (
	"context"
	"errors"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/ta"
)

const (
	atrPeriod  = 14
	atrDefault = 0.001

	displacementFactor = 1.3
	chochBars          = 5
)

// confirmLookbacks are the widening M5 fetch windows tried in order when
// the narrower window returns no bars.
var confirmLookbacks = []time.Duration{30 * time.Minute, 45 * time.Minute, 60 * time.Minute}

// ReversalConfirmer validates that a sweep reversed back into the range
// with displacement and a change of character on the minute chart.
type ReversalConfirmer struct {
	cfg    *config.Config
	market interfaces.MarketData
}

// NewReversalConfirmer creates a reversal confirmer.
func NewReversalConfirmer(cfg *config.Config, market interfaces.MarketData) *ReversalConfirmer {
	return &ReversalConfirmer{cfg: cfg, market: market}
}

// Confirmation carries the individual checks for logging and audit.
type Confirmation struct {
	ReEntry      bool
	Displacement bool
	Choch        bool
	BarClose     float64
	BodySize     float64
	ATR          float64
}

// Confirmed reports whether all three checks passed.
func (c Confirmation) Confirmed() bool {
	return c.ReEntry && c.Displacement && c.Choch
}

// Confirm evaluates the last closed M5 bar against the reference range.
// Missing data is not an error: the sweep simply stays unconfirmed until
// bars arrive.
func (rc *ReversalConfirmer) Confirm(ctx context.Context, symbol string, dir model.Direction, r model.ReferenceRange, now time.Time) (Confirmation, error) {
	bars, err := rc.fetchWithFallback(ctx, symbol, model.TimeframeM5, now, confirmLookbacks)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			return Confirmation{}, nil
		}
		return Confirmation{}, err
	}

	last := bars[len(bars)-1]
	c := Confirmation{BarClose: last.Close}

	// close back inside the range, edges inclusive
	c.ReEntry = last.Close <= r.High && last.Close >= r.Low

	// displacement: candle body against the recent average true range
	c.ATR = ta.ATRFromBars(bars, atrPeriod, atrDefault)
	c.BodySize = last.Close - last.Open
	if c.BodySize < 0 {
		c.BodySize = -c.BodySize
	}
	c.Displacement = c.BodySize >= displacementFactor*c.ATR

	c.Choch, err = rc.changeOfCharacter(ctx, symbol, dir, now)
	if err != nil {
		return Confirmation{}, err
	}

	logger.Debug(ctx, "Reversal checks evaluated",
		"symbol", symbol,
		"direction", dir,
		"re_entry", c.ReEntry,
		"displacement", c.Displacement,
		"choch", c.Choch,
		"body", c.BodySize,
		"atr", c.ATR,
	)
	return c, nil
}

// changeOfCharacter looks at the last few M1 bars for a structural shift
// against the sweep direction: after an up sweep the latest high must sit
// below the prior high, after a down sweep the latest low above the prior
// low. Fewer than three bars is treated as no shift.
func (rc *ReversalConfirmer) changeOfCharacter(ctx context.Context, symbol string, dir model.Direction, now time.Time) (bool, error) {
	bars, err := rc.market.GetBars(ctx, symbol, model.TimeframeM1, now.Add(-time.Duration(chochBars)*time.Minute), now)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			return false, nil
		}
		return false, err
	}
	if len(bars) > chochBars {
		bars = bars[len(bars)-chochBars:]
	}
	if len(bars) < 3 {
		return false, nil
	}

	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	if dir == model.DirectionUp {
		return last.High < prev.High, nil
	}
	return last.Low > prev.Low, nil
}

// fetchWithFallback tries successively wider lookback windows until bars
// come back. Returns model.ErrDataUnavailable when every window is empty.
func (rc *ReversalConfirmer) fetchWithFallback(ctx context.Context, symbol string, tf model.Timeframe, now time.Time, lookbacks []time.Duration) ([]model.Bar, error) {
	var lastErr error
	for _, lb := range lookbacks {
		bars, err := rc.market.GetBars(ctx, symbol, tf, now.Add(-lb), now)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = model.ErrDataUnavailable
	}
	return nil, lastErr
}
