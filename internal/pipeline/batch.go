package pipeline

// batch is an in-memory slice of work; never persisted
type batch struct {
	RunID   string
	Index   int
	Symbols []string
}

// partition splits symbols into consecutive batches of size n, order preserved
func partition(runID string, symbols []string, n int) []batch {
	var out []batch
	for i := 0; i < len(symbols); i += n {
		end := i + n
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, batch{RunID: runID, Index: len(out), Symbols: symbols[i:end]})
	}
	return out
}

// deal assigns batches round-robin so that worker w owns batches w, w+k, w+2k...
// Symbols never overlap between workers.
func deal(batches []batch, workers int) [][]batch {
	if workers > len(batches) {
		workers = len(batches)
	}
	if workers < 1 {
		return nil
	}
	out := make([][]batch, workers)
	for i, b := range batches {
		out[i%workers] = append(out[i%workers], b)
	}
	return out
}
