package engineobs

import (
	"context"
	"time"

	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/metrics"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/trace"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*model.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Starting strategy pass",
		"symbol", symbol,
	)

	result, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Strategy pass failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		metrics.StepError(symbol)
		return nil, err
	}

	metrics.Step(symbol, string(result.StateTo), time.Since(start).Seconds())
	if result.StateFrom != result.StateTo {
		metrics.Transition(symbol, string(result.StateFrom), string(result.StateTo))
	}
	if result.TradeExecuted {
		metrics.TradeOpened(symbol)
	}
	if result.TradeClosed {
		metrics.TradeClosed(symbol, result.ClosedPnL)
	}

	if result.StateFrom != result.StateTo {
		logger.InfoSkip(ctx, 1, "Strategy pass completed",
			"symbol", symbol,
			"stage", result.Stage,
			"from", result.StateFrom,
			"to", result.StateTo,
			"detail", result.Detail,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		logger.DebugSkip(ctx, 1, "Strategy pass completed",
			"symbol", symbol,
			"stage", result.Stage,
			"state", result.StateTo,
			"detail", result.Detail,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return result, nil
}
