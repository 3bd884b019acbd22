package strategy

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

const (
	retestBandPips = 5.0

	stopBufferPrice    = 0.0005
	target2BufferPrice = 0.0002
)

// retestLookbacks are the widening M5 fetch windows for the entry-zone
// touch check.
var retestLookbacks = []time.Duration{20 * time.Minute, 30 * time.Minute, 40 * time.Minute}

// SignalGenerator owns the retest check and signal construction with
// position sizing.
type SignalGenerator struct {
	cfg    *config.Config
	market interfaces.MarketData
}

// NewSignalGenerator creates a signal generator.
func NewSignalGenerator(cfg *config.Config, market interfaces.MarketData) *SignalGenerator {
	return &SignalGenerator{cfg: cfg, market: market}
}

// RetestExpired reports whether the retest window has elapsed since
// confirmation without an entry-zone touch.
func (sg *SignalGenerator) RetestExpired(confirmedAt, now time.Time) bool {
	return now.After(confirmedAt.Add(time.Duration(sg.cfg.Session.RetestMinutes) * time.Minute))
}

// TouchedEntryZone reports whether price has come back to the midpoint
// band. The current quote is checked first, then recent M5 bars.
func (sg *SignalGenerator) TouchedEntryZone(ctx context.Context, symbol string, midpoint float64, tick model.Tick, now time.Time) (bool, error) {
	band := retestBandPips * sg.cfg.Instrument.PipSize
	lo, hi := midpoint-band, midpoint+band

	if tick.Bid >= lo && tick.Bid <= hi {
		return true, nil
	}

	bars, err := sg.fetchWithFallback(ctx, symbol, now)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			return false, nil
		}
		return false, err
	}
	for _, b := range bars {
		if b.Low <= hi && b.High >= lo {
			return true, nil
		}
	}
	return false, nil
}

// Generate builds a sized signal that fades the sweep. The stop sits a
// fixed buffer beyond the sweep extreme, the first target is the range
// midpoint and the second sits just beyond the opposite edge.
func (sg *SignalGenerator) Generate(ctx context.Context, sess *model.Session, sweep *model.Sweep, tick model.Tick) (*model.Signal, error) {
	side := model.FadeSide(sweep.Direction)

	// The entry quote follows the sweep direction, not the order side.
	entry := tick.Bid
	if sweep.Direction == model.DirectionUp {
		entry = tick.Ask
	}

	var stop, target2 float64
	if side == model.SideSell {
		stop = sweep.Price + stopBufferPrice
		target2 = sess.Range.Low - target2BufferPrice
	} else {
		stop = sweep.Price - stopBufferPrice
		target2 = sess.Range.High + target2BufferPrice
	}
	target1 := sess.Range.Midpoint

	stopDist := math.Abs(entry - stop)
	if stopDist <= 0 {
		return nil, model.ErrSizingUnavailable
	}

	riskPct := RiskPctForGrade(sg.cfg, sess.Range.Grade)
	volume, err := sg.size(ctx, sess.Symbol, stopDist, riskPct)
	if err != nil {
		return nil, err
	}

	sig := &model.Signal{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		SweepID:    sweep.ID,
		Symbol:     sess.Symbol,
		Side:       side,
		Entry:      entry,
		Stop:       stop,
		Target1:    target1,
		Target2:    target2,
		Volume:     volume,
		RiskPct:    riskPct,
		RiskReward: math.Abs(target2-entry) / stopDist,
		Status:     model.SignalActive,
		CreatedAt:  time.Now().UTC(),
	}

	logger.Info(ctx, "Signal generated",
		"symbol", sig.Symbol,
		"signal_id", sig.ID,
		"side", sig.Side,
		"entry", sig.Entry,
		"stop", sig.Stop,
		"target1", sig.Target1,
		"target2", sig.Target2,
		"volume", sig.Volume,
		"risk_pct", sig.RiskPct,
	)
	return sig, nil
}

// size converts the equity risk budget into a volume, rounded to two
// decimals and clamped to the broker limits.
func (sg *SignalGenerator) size(ctx context.Context, symbol string, stopDist, riskPct float64) (float64, error) {
	account, err := sg.market.GetAccountInfo(ctx)
	if err != nil {
		return 0, model.ErrSizingUnavailable
	}
	meta, err := sg.market.GetSymbolMeta(ctx, symbol)
	if err != nil {
		return 0, model.ErrSizingUnavailable
	}
	if meta.PointSize <= 0 || meta.TickValue <= 0 || account.Equity <= 0 {
		return 0, model.ErrSizingUnavailable
	}

	riskAmount := account.Equity * riskPct / 100
	valuePerLot := stopDist / meta.PointSize * meta.TickValue
	if valuePerLot <= 0 {
		return 0, model.ErrSizingUnavailable
	}

	volume := math.Round(riskAmount/valuePerLot*100) / 100
	if volume < sg.cfg.Risk.MinVolume {
		volume = sg.cfg.Risk.MinVolume
	}
	if volume > sg.cfg.Risk.MaxVolume {
		volume = sg.cfg.Risk.MaxVolume
	}
	return volume, nil
}

func (sg *SignalGenerator) fetchWithFallback(ctx context.Context, symbol string, now time.Time) ([]model.Bar, error) {
	var lastErr error
	for _, lb := range retestLookbacks {
		bars, err := sg.market.GetBars(ctx, symbol, model.TimeframeM5, now.Add(-lb), now)
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
