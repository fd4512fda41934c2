package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	virtual bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kisrt",
	Short: "KIS 실시간 시세/체결통보 클라이언트",
	Long: `KIS realtime client

한국투자증권 WebSocket 실시간 시세, 호가, 체결통보 구독.

Usage:
  go run ./cmd/kisrt [command]

Examples:
  go run ./cmd/kisrt watch --symbol 005930
  go run ./cmd/kisrt watch --symbol 005930 --symbol NASD:AAPL --execution --status
  go run ./cmd/kisrt version`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&virtual, "virtual", false, "모의투자 도메인 사용 (KIS_IS_VIRTUAL 대신)")
}
