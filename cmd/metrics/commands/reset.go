package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/universe"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "체크포인트 초기화",
	Long: `지정한 종목의 체크포인트를 pending 으로 되돌립니다.
다음 run 에서 다시 계산됩니다 (재시도 횟수도 0 으로 초기화).

--failed 는 실패한 모든 종목을 초기화합니다 (no_data 포함).

Example:
  go run ./cmd/metrics reset --symbols AAPL,MSFT
  go run ./cmd/metrics reset --universe universe.txt
  go run ./cmd/metrics reset --failed`,
	RunE: runReset,
}

var (
	resetSymbols  []string
	resetUniverse string
	resetFailed   bool
)

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringSliceVar(&resetSymbols, "symbols", nil, "symbols to reset")
	resetCmd.Flags().StringVar(&resetUniverse, "universe", "", "reset every symbol of this universe")
	resetCmd.Flags().BoolVar(&resetFailed, "failed", false, "reset all failed symbols")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetFailed && len(resetSymbols) == 0 && resetUniverse == "" {
		return errors.New("one of --symbols, --universe or --failed is required")
	}
	if resetFailed && (len(resetSymbols) > 0 || resetUniverse != "") {
		return errors.New("--failed cannot be combined with --symbols or --universe")
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var loaded []string
	if resetUniverse != "" {
		loaded, err = a.universeLoader(ctx, universe.Options{DotToDash: true}).Load(ctx, resetUniverse)
		if err != nil {
			return err
		}
	}

	symbols, err := resetTargets(resetFailed, resetSymbols, loaded)
	if err != nil {
		return err
	}

	// 빈 목록 → 실패 종목 전체 (--failed 일 때만)
	n, err := a.store.Reset(ctx, symbols)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	a.log.WithField("reset", n).Info("Checkpoints reset")
	PrintSuccess(fmt.Sprintf("%d checkpoint(s) reset to pending", n))
	return nil
}

// resetTargets resolves the symbols to reset.
// An empty result is only allowed for --failed, where it means every failed record.
func resetTargets(failed bool, named, loaded []string) ([]string, error) {
	if failed {
		return nil, nil
	}
	symbols := contracts.NormalizeSymbols(append(append([]string(nil), named...), loaded...))
	if len(symbols) == 0 {
		return nil, errors.New("no symbols to reset: --symbols and --universe resolved to an empty list")
	}
	return symbols, nil
}
