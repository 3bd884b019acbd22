// Package eod aggregates the day's trade journal into a CSV report:
// per-symbol trade counts, volume and realized PnL, plus a TOTAL row.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type eodSummarizer struct{}

func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := todaysTradeFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tl tradeLine
		if err := json.Unmarshal(sc.Bytes(), &tl); err != nil {
			continue
		}
		row := aggs[tl.Symbol]
		if row == nil {
			row = &aggRow{Symbol: tl.Symbol}
			aggs[tl.Symbol] = row
		}
		if tl.Reason == "entry" {
			row.Trades++
			row.Volume += tl.Volume
			row.EntryValue += tl.Volume * tl.Price
			continue
		}
		// close record
		row.RealizedPnL += tl.PnL
		if tl.PnL >= 0 {
			row.Wins++
		} else {
			row.Losses++
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "trades", "volume", "avg_entry", "wins", "losses", "realized_pnl"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var totalTrades int
	var totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		var avgEntry float64
		if r.Volume > 0 {
			avgEntry = r.EntryValue / r.Volume
		}
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Trades),
			fmt.Sprintf("%.2f", r.Volume),
			fmt.Sprintf("%.4f", avgEntry),
			strconv.Itoa(r.Wins),
			strconv.Itoa(r.Losses),
			fmt.Sprintf("%.2f", r.RealizedPnL),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalTrades += r.Trades
		totalPnL += r.RealizedPnL
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(totalTrades), "", "", "", "", fmt.Sprintf("%.2f", totalPnL)})
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(time.Now().UTC())
}

func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := time.Now().UTC()
	outPath := eodCSVPath(now)
	if now.After(windowCloseTime(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
