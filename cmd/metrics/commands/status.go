package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/progress"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "체크포인트 상태 조회",
	Long: `체크포인트 저장소의 상태별 종목 수와 진행률을 표시합니다.

표시 정보:
- Success / Failed / Pending 건수
- 진행률
- 저장소 Health

--symbols 를 주면 해당 종목의 레코드를 개별 표시합니다.
--watch 를 주면 주기적으로 갱신합니다 (다른 프로세스의 run 모니터링).

Example:
  go run ./cmd/metrics status
  go run ./cmd/metrics status --symbols AAPL,MSFT
  go run ./cmd/metrics status --watch 5s`,
	RunE: runStatus,
}

var (
	statusSymbols []string
	statusWatch   time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringSliceVar(&statusSymbols, "symbols", nil, "show records for these symbols")
	statusCmd.Flags().DurationVar(&statusWatch, "watch", 0, "refresh interval (0 = print once)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(statusSymbols) > 0 {
		symbols := contracts.NormalizeSymbols(statusSymbols)
		records, err := a.store.Lookup(ctx, symbols)
		if err != nil {
			return fmt.Errorf("lookup: %w", err)
		}
		var missing []string
		for _, s := range symbols {
			if _, ok := records[s]; !ok {
				missing = append(missing, s)
			}
		}
		PrintRecords(records, missing)
		return nil
	}

	reporter, err := progress.NewReporter(ctx, a.store, nil, a.clock)
	if err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrStoreUnavailable, err)
	}

	show := func() error {
		counts, err := a.store.BatchSummary(ctx)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		sample, err := reporter.Sample(ctx)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		health, _ := a.health(ctx)
		PrintStatus(counts, sample, health)
		return nil
	}

	if err := show(); err != nil || statusWatch <= 0 {
		return err
	}

	ticker := time.NewTicker(statusWatch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := show(); err != nil {
				return err
			}
		}
	}
}
