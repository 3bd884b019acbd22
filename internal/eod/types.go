package eod

// tradeLine is one journal record as written by the tradelog package.
// Entries carry the fill details; close records carry the realized PnL
// and the close reason.
type tradeLine struct {
	Time     string
	Symbol   string
	Side     string
	SignalID string
	Reason   string
	OrderID  int64
	Volume   float64
	Price    float64
	PnL      float64
}

// aggRow accumulates per-symbol statistics for the daily CSV.
type aggRow struct {
	Symbol      string
	Trades      int
	Volume      float64
	EntryValue  float64
	Wins        int
	Losses      int
	RealizedPnL float64
}
