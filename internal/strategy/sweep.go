package strategy

import (
	"math"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/model"
)

// SweepDetector checks quotes against the reference range plus a
// size-proportional threshold.
type SweepDetector struct {
	cfg *config.Config
}

// NewSweepDetector creates a sweep detector.
func NewSweepDetector(cfg *config.Config) *SweepDetector {
	return &SweepDetector{cfg: cfg}
}

// ThresholdPips returns the breach threshold for a range size: a fixed
// share of the range with a floor, rounded to one decimal.
func (sd *SweepDetector) ThresholdPips(sizePips float64) float64 {
	thr := math.Max(sd.cfg.Sweep.MinFloorPips, sizePips*sd.cfg.Sweep.ThresholdRatio)
	return math.Round(thr*10) / 10
}

// Detect reports whether the bid has breached the range beyond the
// threshold. At most one direction is returned per call; the up side is
// checked first. ok is false when no breach occurred.
func (sd *SweepDetector) Detect(tick model.Tick, r model.ReferenceRange, thresholdPips float64) (dir model.Direction, ok bool) {
	dist := thresholdPips * sd.cfg.Instrument.PipSize
	if tick.Bid > r.High+dist {
		return model.DirectionUp, true
	}
	if tick.Bid < r.Low-dist {
		return model.DirectionDown, true
	}
	return "", false
}
