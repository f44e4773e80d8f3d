package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Aegis Metrics - 종목별 수익/위험 지표 배치 파이프라인",
	Long: `Aegis Metrics CLI

유니버스 전 종목의 가격/배당 이력을 받아
수익률, 변동성, 샤프, 최대낙폭, 배당 지표를 계산하고 저장합니다.
체크포인트 기반으로 중단 후 이어서 실행할 수 있습니다.

Usage:
  go run ./cmd/metrics [command]

Examples:
  go run ./cmd/metrics run --universe universe.txt
  go run ./cmd/metrics run --symbols AAPL,MSFT --force
  go run ./cmd/metrics status
  go run ./cmd/metrics reset --failed
  go run ./cmd/metrics scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
