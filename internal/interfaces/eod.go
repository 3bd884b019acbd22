package interfaces

import "time"

// EodSummarizer writes the end-of-day CSV digest of the trade journal.
type EodSummarizer interface {
	// SummarizeDay aggregates the journal for a UTC date into a CSV
	// report. Returns the written path, or "" when there were no trades.
	SummarizeDay(t time.Time) (csvPath string, err error)

	// SummarizeToday summarizes the current UTC date.
	SummarizeToday() (csvPath string, err error)

	// ShouldRunNow reports whether the daily summary is due: the
	// execution window has closed and no CSV exists for today yet.
	ShouldRunNow() (shouldRun bool, csvPath string)
}
