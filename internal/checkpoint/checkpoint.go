// Package checkpoint persists per-symbol processing state so that an
// interrupted run resumes where it stopped.
package checkpoint

import (
	"strings"
	"unicode/utf8"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// maxErrorLen bounds last_error so a huge upstream body cannot bloat the table
const maxErrorLen = 1000

// lookupChunk bounds the number of bind parameters per IN (...) query
const lookupChunk = 500

func truncateMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= maxErrorLen {
		return msg
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func pendingRecord(symbol string) *contracts.ProcessingRecord {
	return &contracts.ProcessingRecord{Symbol: symbol, Status: contracts.StatusPending}
}

func chunks(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}

var (
	_ contracts.CheckpointStore = (*PostgresStore)(nil)
	_ contracts.CheckpointStore = (*SQLiteStore)(nil)
)
