package eod

import (
	"time"

	"als-trading-bot/internal/interfaces"
)

// The package-level entry points delegate to a swappable summarizer so
// cmd can install the observability wrapper once at startup while the
// standalone eod subcommand still works without any wiring.
var active interfaces.EodSummarizer = &eodSummarizer{}

// NewSummarizer returns the plain journal summarizer.
func NewSummarizer() interfaces.EodSummarizer {
	return &eodSummarizer{}
}

// SetDefaultSummarizer replaces the summarizer behind the package-level
// functions.
func SetDefaultSummarizer(s interfaces.EodSummarizer) {
	active = s
}

// SummarizeDay writes the CSV summary for the given UTC day.
func SummarizeDay(day time.Time) (string, error) {
	return active.SummarizeDay(day)
}

// SummarizeToday writes the CSV summary for the current UTC day.
func SummarizeToday() (string, error) {
	return active.SummarizeToday()
}

// ShouldRunNow reports whether the daily summary is due.
func ShouldRunNow() (bool, string) {
	return active.ShouldRunNow()
}
