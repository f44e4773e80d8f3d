package source

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// chartResponse is the v8 chart API payload (only the fields we read)
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Currency  string `json:"currency"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
	Events struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
	} `json:"events"`
}

func decodeChart(body []byte) (*chartResponse, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// closes returns adjusted closes when present, raw closes otherwise
func (r *chartResult) closes() []*float64 {
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) > 0 {
		return r.Indicators.AdjClose[0].AdjClose
	}
	if len(r.Indicators.Quote) > 0 {
		return r.Indicators.Quote[0].Close
	}
	return nil
}

// day converts an exchange timestamp to its local trading date at UTC midnight
func (r *chartResult) day(ts int64) time.Time {
	t := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// points extracts the price points within [start, end]; null rows are skipped
func (r *chartResult) points(start, end time.Time) []contracts.PricePoint {
	closes := r.closes()
	out := make([]contracts.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		p := *closes[i]
		if math.IsNaN(p) {
			continue
		}
		d := r.day(ts)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, contracts.PricePoint{Date: d, Price: p})
	}
	return contracts.NormalizePoints(out)
}

// dividends extracts dividend events sorted by ex-date
func (r *chartResult) dividends() []contracts.DividendEvent {
	out := make([]contracts.DividendEvent, 0, len(r.Events.Dividends))
	for _, d := range r.Events.Dividends {
		out = append(out, contracts.DividendEvent{Date: r.day(d.Date), Amount: d.Amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
