package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/progress"
	"github.com/wonny/aegis-metrics/pkg/database"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// RunHeader describes a run about to start
type RunHeader struct {
	Source  string
	Symbols int
	Backend string
	Workers int
	Force   bool
}

// PrintRunHeader prints a formatted run header
func PrintRunHeader(h RunHeader) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Println("  Metrics Run")
	PrintSeparator()
	fmt.Printf("  Universe  : %s\n", h.Source)
	fmt.Printf("  Symbols   : %s\n", humanize.Comma(int64(h.Symbols)))
	fmt.Printf("  Store     : %s\n", h.Backend)
	fmt.Printf("  Workers   : %d\n", h.Workers)
	if h.Force {
		fmt.Println("  Mode      : force (checkpoints reset)")
	}
	PrintSeparator()
}

// PrintRunSummary prints the end-of-run summary
func PrintRunSummary(s *contracts.RunSummary) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Run %s\n", s.RunID)
	PrintSeparator()
	fmt.Printf("  Processed : %s\n", humanize.Comma(int64(s.Processed)))
	fmt.Printf("  Succeeded : %s\n", humanize.Comma(int64(s.Succeeded)))
	fmt.Printf("  Failed    : %s\n", humanize.Comma(int64(s.Failed)))
	fmt.Printf("  Skipped   : %s\n", humanize.Comma(int64(s.Skipped)))
	fmt.Printf("  Elapsed   : %s\n", s.Elapsed.Round(time.Second))

	if cats := s.Categories(); len(cats) > 0 {
		PrintSeparator()
		fmt.Println("  Errors by category:")
		for _, c := range cats {
			fmt.Printf("    %-20s %s\n", c.Code, humanize.Comma(int64(c.Count)))
		}
	}

	if len(s.Failures) > 0 {
		PrintSeparator()
		fmt.Printf("  Sample failures (%d):\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Printf("    %-10s %-18s %s\n", f.Symbol, f.Code, truncate(f.Message, 80))
		}
	}
	PrintDoubleSeparator()

	if s.Stopped {
		PrintWarning("Run stopped early; remaining symbols stay pending and resume on the next run")
	} else {
		PrintSuccess(fmt.Sprintf("Run completed in %s", s.Elapsed.Round(time.Second)))
	}
}

// PrintStatus prints checkpoint counts and the progress sample
func PrintStatus(counts contracts.StatusCounts, sample progress.Sample, health *database.HealthStatus) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Println("  Checkpoint Status")
	PrintSeparator()

	statuses := []contracts.Status{contracts.StatusSuccess, contracts.StatusFailed, contracts.StatusPending}
	for _, st := range statuses {
		fmt.Printf("  %-10s: %s\n", st, humanize.Comma(int64(counts[st])))
	}
	fmt.Printf("  %-10s: %s\n", "total", humanize.Comma(int64(counts.Total())))
	PrintSeparator()
	fmt.Printf("  Progress  : %s\n", sample.String())

	if health != nil {
		PrintSeparator()
		fmt.Printf("  Store     : %s (healthy=%v, %s)\n", health.Backend, health.Healthy, health.ResponseTime)
	}
	PrintDoubleSeparator()
}

// PrintRecords prints per-symbol checkpoint records, sorted by symbol
func PrintRecords(records map[string]contracts.ProcessingRecord, missing []string) {
	symbols := make([]string, 0, len(records))
	for s := range records {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		r := records[s]
		when := "-"
		if r.ProcessedAt != nil {
			when = humanize.Time(*r.ProcessedAt)
		}
		fmt.Printf("  %-10s %-8s retries=%d %-18s %s\n", s, r.Status, r.RetryCount, r.ErrorCode, when)
	}
	for _, s := range missing {
		fmt.Printf("  %-10s %-8s (no record)\n", s, contracts.StatusPending)
	}
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Println()
	fmt.Printf("✅ %s\n", message)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
