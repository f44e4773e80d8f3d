// Package sink persists metric snapshots idempotently on (symbol, computation_date).
package sink

import (
	"sort"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

const dateLayout = "2006-01-02"

func windowNames(windows map[string]contracts.WindowMetrics) []string {
	names := make([]string, 0, len(windows))
	for name := range windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sinkError(symbol string, err error) error {
	return &contracts.SinkError{Symbol: symbol, Err: err}
}

var (
	_ contracts.SinkAdapter = (*PostgresSink)(nil)
	_ contracts.SinkAdapter = (*SQLiteSink)(nil)
)
