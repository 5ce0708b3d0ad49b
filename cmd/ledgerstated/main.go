// Command ledgerstated is a smoke-test harness for the ledger-state engine,
// grounded on the teacher's cmd/xrpld/main.go and internal/cli package: a
// cobra root command with one subcommand rather than a full node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ledgerstated",
	Short: "coreledger smoke-test harness",
	Long: `ledgerstated opens a ledger-state store, seeds a small fixture
ledger, and drives a handful of ManageOffer calls end to end, printing the
outcome. It is a harness for exercising the engine, not a production node.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.AddCommand(runFixtureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
