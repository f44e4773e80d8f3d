package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Clamp bands
// =============================================================================

// Values outside a band are reported absent, never truncated to the boundary.
const (
	MinReturn     = -0.95
	MaxReturn     = 5.0
	MinVolatility = 0.0
	MaxVolatility = 2.0
	MinSharpe     = -10.0
	MaxSharpe     = 10.0
	MinDrawdown   = -1.0
	MaxDrawdown   = 0.0
)

// CoverageGrace tolerates weekends/holidays at the start of a window
const CoverageGrace = 7 * 24 * time.Hour

// =============================================================================
// Rolling windows
// =============================================================================

// Window is a named trailing period
// ⭐ SSOT: 윈도우 정의 (12m, 24m, 36m, 5y, 10y)는 여기서만
type Window struct {
	Name        string `json:"name"`
	Months      int    `json:"months"`       // calendar span
	TradingDays int    `json:"trading_days"` // nominal observation count
}

// Start returns the calendar cutoff of the window ending at end
func (w Window) Start(end time.Time) time.Time {
	return end.AddDate(0, -w.Months, 0)
}

// ParseWindow parses names like "12m" or "5y".
// Months map to 21 trading days each, years to 252.
func ParseWindow(name string) (Window, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 2 {
		return Window{}, fmt.Errorf("invalid window %q", name)
	}

	n, err := strconv.Atoi(name[:len(name)-1])
	if err != nil || n <= 0 {
		return Window{}, fmt.Errorf("invalid window %q", name)
	}

	switch name[len(name)-1] {
	case 'm':
		return Window{Name: name, Months: n, TradingDays: n * 21}, nil
	case 'y':
		return Window{Name: name, Months: n * 12, TradingDays: n * 252}, nil
	default:
		return Window{}, fmt.Errorf("invalid window %q: unit must be m or y", name)
	}
}

// ParseWindows parses and de-duplicates a window list, preserving order
func ParseWindows(names []string) ([]Window, error) {
	seen := make(map[string]bool, len(names))
	windows := make([]Window, 0, len(names))
	for _, n := range names {
		w, err := ParseWindow(n)
		if err != nil {
			return nil, err
		}
		if seen[w.Name] {
			continue
		}
		seen[w.Name] = true
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("no windows configured")
	}
	return windows, nil
}

// =============================================================================
// Engine configuration
// =============================================================================

// Config holds engine parameters
type Config struct {
	RiskFreeRate    float64  // 연율 (e.g. 0.04)
	PeriodsPerYear  int      // trading days per year (252)
	Windows         []Window // evaluated independently
	DividendCeiling float64  // per share per window sanity ceiling

	// Mandatory field policy
	RequireCurrentPrice bool
	RequireBasicReturn  bool
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	windows, _ := ParseWindows([]string{"12m", "24m", "36m", "5y", "10y"})
	return Config{
		RiskFreeRate:        0.04,
		PeriodsPerYear:      252,
		Windows:             windows,
		DividendCeiling:     1000,
		RequireCurrentPrice: true,
		RequireBasicReturn:  true,
	}
}
