package eod

import (
	"os"
	"path/filepath"
	"time"
)

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func todaysTradeFile(t time.Time) string {
	dateStr := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), dateStr+".txt")
}

func eodCSVPath(t time.Time) string {
	dateStr := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "eod", dateStr+".csv")
}

// windowCloseTime is shortly after the order window shuts, when no new
// entries can appear for the day.
func windowCloseTime(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 8, 5, 0, 0, time.UTC)
}
