package engine

import (
	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/strategy"
)

func New(cfg *config.Config, market interfaces.MarketData, store interfaces.Store, advisor interfaces.Advisor, news strategy.BlackoutChecker) interfaces.Engine {
	return newEngine(cfg, market, store, advisor, news)
}
