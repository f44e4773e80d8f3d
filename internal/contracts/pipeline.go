package contracts

import (
	"sort"
	"time"
)

// FailureSample is one failing symbol kept in the run summary for triage
type FailureSample struct {
	Symbol  string `json:"symbol"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunSummary is the result of one orchestrator run
// ⭐ SSOT: 배치 실행 결과
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Total       int             `json:"total"`     // symbols requested after normalisation
	Processed   int             `json:"processed"` // symbols attempted in this run
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"` // already done or retry budget exhausted
	Elapsed     time.Duration   `json:"elapsed"`
	Stopped     bool            `json:"stopped"` // stop signal observed before completion
	ErrorCounts map[string]int  `json:"error_counts"`
	Failures    []FailureSample `json:"failures"`
}

// ErrorCategory is one row of the error breakdown
type ErrorCategory struct {
	Code  string
	Count int
}

// Categories returns error counts sorted by count desc, then code
func (s *RunSummary) Categories() []ErrorCategory {
	out := make([]ErrorCategory, 0, len(s.ErrorCounts))
	for code, n := range s.ErrorCounts {
		out = append(out, ErrorCategory{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}
