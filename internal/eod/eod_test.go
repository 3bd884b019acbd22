package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeJournal(t *testing.T, day time.Time, lines []string) {
	t.Helper()
	path := todaysTradeFile(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}
}

func TestSummarizeDay(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	writeJournal(t, day, []string{
		`{"Time":"2026-03-02 02:30:00","Symbol":"XAUUSD","Side":"SELL","SignalID":"a","Reason":"entry","OrderID":1001,"Volume":0.11,"Price":2002.6}`,
		`{"Time":"2026-03-02 03:10:00","Symbol":"XAUUSD","SignalID":"a","Reason":"position closed by terminal","OrderID":1001,"PnL":-12.5}`,
		`{"Time":"2026-03-02 04:00:00","Symbol":"XAUUSD","Side":"SELL","SignalID":"b","Reason":"entry","OrderID":1002,"Volume":0.2,"Price":2001.0}`,
		`{"Time":"2026-03-02 05:30:00","Symbol":"XAUUSD","SignalID":"b","Reason":"session end","OrderID":1002,"PnL":30.0}`,
		`not json at all`,
	})

	s := &eodSummarizer{}
	path, err := s.SummarizeDay(day)
	if err != nil {
		t.Fatalf("SummarizeDay() error = %v", err)
	}
	if path == "" {
		t.Fatal("no CSV written")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("csv rows = %d, want header + symbol + total", len(records))
	}
	row := records[1]
	if row[0] != "XAUUSD" || row[1] != "2" {
		t.Errorf("symbol row = %v", row)
	}
	if row[4] != "1" || row[5] != "1" {
		t.Errorf("wins/losses = %s/%s, want 1/1", row[4], row[5])
	}
	if row[6] != "17.50" {
		t.Errorf("realized pnl = %s, want 17.50", row[6])
	}
	total := records[2]
	if total[0] != "TOTAL" || total[6] != "17.50" {
		t.Errorf("total row = %v", total)
	}
}

func TestSummarizeDayNoJournal(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	s := &eodSummarizer{}
	path, err := s.SummarizeDay(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SummarizeDay() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty for missing journal", path)
	}
}
