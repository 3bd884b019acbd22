// Package strategy holds the deterministic detection pipeline: reference
// range calculation, sweep detection, reversal confirmation, the
// confluence gate and signal generation. Components read market data
// through the MarketData port and return results; persistence and state
// transitions stay with the engine.
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

// RangeCalculator computes the overnight reference range for a trading day.
type RangeCalculator struct {
	cfg    *config.Config
	market interfaces.MarketData
}

// NewRangeCalculator creates a range calculator.
func NewRangeCalculator(cfg *config.Config, market interfaces.MarketData) *RangeCalculator {
	return &RangeCalculator{cfg: cfg, market: market}
}

// Calculate fetches the M5 bars inside the overnight window of the given
// day and returns the reference range. Returns model.ErrDataUnavailable
// when no bars exist for the window (weekend, market closed).
func (rc *RangeCalculator) Calculate(ctx context.Context, symbol string, day time.Time) (model.ReferenceRange, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), rc.cfg.Session.RangeStartHour, 0, 0, 0, time.UTC)
	end := time.Date(day.Year(), day.Month(), day.Day(), rc.cfg.Session.RangeEndHour, 0, 0, 0, time.UTC)

	bars, err := rc.market.GetBars(ctx, symbol, model.TimeframeM5, start, end)
	if err != nil {
		return model.ReferenceRange{}, fmt.Errorf("range bars %s: %w", symbol, err)
	}

	high := bars[0].High
	low := bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}

	sizePips := math.Round((high-low)/rc.cfg.Instrument.PipSize*10) / 10
	r := model.ReferenceRange{
		High:     high,
		Low:      low,
		Midpoint: (high + low) / 2,
		SizePips: sizePips,
		Grade:    GradeRange(sizePips),
	}

	logger.Info(ctx, "Reference range calculated",
		"symbol", symbol,
		"high", r.High,
		"low", r.Low,
		"midpoint", r.Midpoint,
		"size_pips", r.SizePips,
		"grade", r.Grade,
	)
	return r, nil
}

// GradeRange classifies a range size in pips.
func GradeRange(sizePips float64) model.Grade {
	switch {
	case sizePips < 30:
		return model.GradeTight
	case sizePips <= 150:
		return model.GradeNormal
	default:
		return model.GradeWide
	}
}

// RiskPctForGrade returns the equity risk percentage for a range grade.
// Tight ranges trade half size.
func RiskPctForGrade(cfg *config.Config, g model.Grade) float64 {
	if g == model.GradeTight {
		return cfg.Risk.TightPct
	}
	return cfg.Risk.NormalPct
}
