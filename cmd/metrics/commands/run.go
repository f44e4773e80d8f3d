package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/pipeline"
	"github.com/wonny/aegis-metrics/internal/universe"
	"github.com/wonny/aegis-metrics/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "지표 배치 실행",
	Long: `유니버스의 처리 대상 종목에 대해 지표를 계산하고 저장합니다.

이미 성공한 종목은 건너뛰고, 재시도 한도를 넘긴 실패 종목도 건너뜁니다.
Ctrl+C 시 진행 중인 종목까지만 처리하고 종료하며, 다음 실행이 이어서 처리합니다.

Universe sources:
  - 텍스트/CSV 파일 (한 줄에 한 종목, 첫 번째 컬럼, # 주석)
  - HTML 파일 또는 URL (테이블의 --column 헤더 컬럼)

Example:
  go run ./cmd/metrics run --universe universe.txt
  go run ./cmd/metrics run --universe https://example.com/sp500.html --column Symbol
  go run ./cmd/metrics run --symbols AAPL,MSFT --force
  go run ./cmd/metrics run --universe universe.txt --workers 4 --date 2024-06-14`,
	RunE: runMetrics,
}

var (
	runUniverse  string
	runSymbols   []string
	runForce     bool
	runWorkers   int
	runBatchSize int
	runDate      string
	runColumn    string
	runDotToDash bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runUniverse, "universe", "", "universe file or URL")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "explicit symbols (comma separated)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reset checkpoints and reprocess everything")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, fmt.Sprintf("worker count 1..%d (default from config)", config.MaxWorkers))
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "symbols per batch (default from config)")
	runCmd.Flags().StringVar(&runDate, "date", "", "computation date YYYY-MM-DD (default today)")
	runCmd.Flags().StringVar(&runColumn, "column", "Symbol", "HTML table header holding symbols")
	runCmd.Flags().BoolVar(&runDotToDash, "dot-to-dash", true, "rewrite BRK.B as BRK-B")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	if runUniverse == "" && len(runSymbols) == 0 {
		return errors.New("one of --universe or --symbols is required")
	}

	ro := pipeline.RunOptions{Force: runForce}
	if runDate != "" {
		d, err := time.Parse("2006-01-02", runDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		ro.ComputationDate = d
	}

	// Ctrl+C → 진행 중 종목까지만 처리
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := pipeline.OptionsFromConfig(a.cfg.Pipeline)
	if runWorkers > 0 {
		opts.Workers = runWorkers
	}
	if runBatchSize > 0 {
		opts.BatchSize = runBatchSize
	}

	symbols := runSymbols
	if runUniverse != "" {
		loader := a.universeLoader(ctx, universe.Options{Column: runColumn, DotToDash: runDotToDash})
		loaded, err := loader.Load(ctx, runUniverse)
		if err != nil {
			return err
		}
		symbols = append(loaded, symbols...)
	}

	orch, err := a.orchestrator(ctx, opts)
	if err != nil {
		return err
	}

	PrintRunHeader(RunHeader{
		Source:  describeSource(runUniverse, runSymbols),
		Symbols: len(symbols),
		Backend: a.cfg.Store.Backend,
		Workers: opts.Workers,
		Force:   runForce,
	})

	summary, err := orch.Run(ctx, symbols, ro)
	if err != nil {
		if errors.Is(err, contracts.ErrStoreUnavailable) {
			return fmt.Errorf("❌ checkpoint store unreachable: %w", err)
		}
		return err
	}

	PrintRunSummary(summary)
	return nil
}

func describeSource(src string, symbols []string) string {
	switch {
	case src != "" && len(symbols) > 0:
		return fmt.Sprintf("%s + %d symbols", src, len(symbols))
	case src != "":
		return src
	default:
		return strings.Join(symbols, ",")
	}
}
