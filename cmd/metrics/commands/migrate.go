package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 생성",
	Long: `체크포인트와 지표 스냅샷 테이블을 생성합니다.
이미 존재하면 아무것도 하지 않습니다 (STORE_BACKEND 기준).

Example:
  go run ./cmd/metrics migrate
  STORE_BACKEND=sqlite SQLITE_PATH=metrics.db go run ./cmd/metrics migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	// newApp migrates the selected backend on open
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	PrintSuccess(fmt.Sprintf("Schema ready (%s)", a.cfg.Store.Backend))
	return nil
}
