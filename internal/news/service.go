package news

import (
	"context"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

// blackoutSeverities are the grades that can black out entries.
var blackoutSeverities = []model.Severity{model.SeverityHigh, model.SeverityCritical}

// allSeverities widens store lookups used for dedupe.
var allSeverities = []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical}

// queryWindow bounds the store lookup around now; individual buffers
// never exceed it.
const queryWindow = 3 * time.Hour

// Service persists scraped calendar events and answers blackout queries
// from the store.
type Service struct {
	cfg     *config.Config
	store   interfaces.Store
	scraper *Scraper
}

// NewService creates the calendar service. scraper may be nil when the
// feed is disabled; Blackout then only consults previously stored events.
func NewService(cfg *config.Config, store interfaces.Store, scraper *Scraper) *Service {
	return &Service{cfg: cfg, store: store, scraper: scraper}
}

// Refresh scrapes the calendar once and stores the events.
func (s *Service) Refresh(ctx context.Context) error {
	if s.scraper == nil {
		return nil
	}
	events, err := s.scraper.Fetch(ctx)
	if err != nil {
		return err
	}
	s.storeEvents(ctx, events)
	return nil
}

// storeEvents persists scraped events, skipping any already stored with
// the same name and release time. The calendar republishes the full
// schedule on every fetch, so a plain insert would duplicate events once
// per refresh.
func (s *Service) storeEvents(ctx context.Context, events []model.NewsEvent) {
	if len(events) == 0 {
		return
	}

	from, to := events[0].ReleaseTime, events[0].ReleaseTime
	for _, ev := range events[1:] {
		if ev.ReleaseTime.Before(from) {
			from = ev.ReleaseTime
		}
		if ev.ReleaseTime.After(to) {
			to = ev.ReleaseTime
		}
	}

	seen := make(map[string]bool)
	existing, err := s.store.NewsEventsBetween(ctx, from, to, allSeverities)
	if err != nil {
		logger.Warn(ctx, "Failed to load stored calendar events", "error", err)
	} else {
		for _, ev := range existing {
			seen[eventKey(ev.Name, ev.ReleaseTime)] = true
		}
	}

	for i := range events {
		key := eventKey(events[i].Name, events[i].ReleaseTime)
		if seen[key] {
			continue
		}
		if err := s.store.CreateNewsEvent(ctx, &events[i]); err != nil {
			logger.Warn(ctx, "Failed to store calendar event", "error", err, "event", events[i].Name)
			continue
		}
		seen[key] = true
	}
}

func eventKey(name string, release time.Time) string {
	return name + "|" + release.UTC().Format(time.RFC3339)
}

// Run refreshes the calendar on the configured interval until the context
// is cancelled. Scrape failures are logged and retried next round.
func (s *Service) Run(ctx context.Context) {
	if s.scraper == nil {
		return
	}
	interval := time.Duration(s.cfg.News.RefreshMinutes) * time.Minute

	if err := s.Refresh(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Initial calendar refresh failed", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Calendar refresh failed", err)
			}
		}
	}
}

// Blackout reports whether now falls inside the buffer window of any
// high-impact event, and the widest buffer among the matches. Events
// carry their own buffer; the configured default is the floor.
func (s *Service) Blackout(ctx context.Context, now time.Time) (bool, int, error) {
	events, err := s.store.NewsEventsBetween(ctx, now.Add(-queryWindow), now.Add(queryWindow), blackoutSeverities)
	if err != nil {
		return false, 0, err
	}

	blackout := false
	widest := 0
	for _, ev := range events {
		buffer := ev.BufferMinutes
		if buffer < s.cfg.News.BufferMinutes {
			buffer = s.cfg.News.BufferMinutes
		}
		half := time.Duration(buffer) * time.Minute
		if now.Before(ev.ReleaseTime.Add(-half)) || now.After(ev.ReleaseTime.Add(half)) {
			continue
		}
		blackout = true
		if buffer > widest {
			widest = buffer
		}
		logger.Debug(ctx, "Inside news blackout",
			"event", ev.Name,
			"currency", ev.Currency,
			"severity", ev.Severity,
			"release", ev.ReleaseTime,
			"buffer_min", buffer,
		)
	}

	if !blackout {
		widest = s.cfg.News.BufferMinutes
	}
	return blackout, widest, nil
}
