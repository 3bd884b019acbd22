// Package news tracks the economic calendar and answers the one question
// the gate and the trade manager ask: is there a blackout right now.
package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/model"
)

// Scraper fetches scheduled releases from an economic calendar page.
type Scraper struct {
	url     string
	timeout time.Duration
}

// NewScraper creates a calendar scraper.
func NewScraper(url string, timeout time.Duration) *Scraper {
	return &Scraper{url: url, timeout: timeout}
}

// Fetch scrapes the calendar page and returns the events found for the
// current day.
func (s *Scraper) Fetch(ctx context.Context) ([]model.NewsEvent, error) {
	var events []model.NewsEvent

	c := colly.NewCollector(colly.MaxDepth(1))
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	day := time.Now().UTC().Truncate(24 * time.Hour)
	c.OnHTML("tr.calendar__row", func(e *colly.HTMLElement) {
		if ev, ok := parseCalendarRow(e.DOM, day); ok {
			events = append(events, ev)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Calendar scraping error", err, "url", r.Request.URL.String())
	})

	if err := c.Visit(s.url); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", s.url, err)
	}
	c.Wait()

	logger.Info(ctx, "Calendar scraped", "url", s.url, "events", len(events))
	return events, nil
}

// parseCalendarRow extracts one event from a calendar table row. Rows
// without a parseable time or event name are skipped.
func parseCalendarRow(row *goquery.Selection, day time.Time) (model.NewsEvent, bool) {
	name := strings.TrimSpace(row.Find("td.calendar__event, .calendar__event-title").First().Text())
	if name == "" {
		return model.NewsEvent{}, false
	}

	currency := strings.TrimSpace(row.Find("td.calendar__currency").First().Text())

	severity := severityFromImpact(row.Find("td.calendar__impact span").First())

	clock := strings.TrimSpace(row.Find("td.calendar__time").First().Text())
	release, ok := parseClock(clock, day)
	if !ok {
		return model.NewsEvent{}, false
	}

	return model.NewsEvent{
		Name:          name,
		Currency:      currency,
		ReleaseTime:   release,
		Severity:      severity,
		BufferMinutes: defaultBufferFor(severity),
	}, true
}

// severityFromImpact maps the impact icon class onto a severity.
func severityFromImpact(icon *goquery.Selection) model.Severity {
	class, _ := icon.Attr("class")
	class = strings.ToLower(class)
	switch {
	case strings.Contains(class, "red"), strings.Contains(class, "high"):
		return model.SeverityHigh
	case strings.Contains(class, "ora"), strings.Contains(class, "medium"):
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// defaultBufferFor returns the entry blackout half-width for a severity.
func defaultBufferFor(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 60
	case model.SeverityHigh:
		return 45
	default:
		return 30
	}
}

// parseClock parses calendar clock strings like "8:30am" or "14:30"
// against the given day. "All Day" and empty cells are skipped.
func parseClock(clock string, day time.Time) (time.Time, bool) {
	clock = strings.TrimSpace(strings.ToLower(clock))
	if clock == "" || clock == "all day" || clock == "tentative" {
		return time.Time{}, false
	}

	for _, layout := range []string{"3:04pm", "15:04"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
