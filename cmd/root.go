package cmd

import (
	"fmt"
	"os"

	"github.com/sockbench/sockbench/cmd/bench"
	"github.com/sockbench/sockbench/cmd/serve"
	"github.com/sockbench/sockbench/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.2"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sockbench",
		Short: "TCP data-transfer strategy benchmark",
		Long: fmt.Sprintf(`sockbench (v%s)

A benchmark harness measuring the throughput and latency cost of three
TCP data-transfer strategies: buffer-copy, scatter-gather and kernel
zero-copy transmission with asynchronous completion tracking.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sockbench",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sockbench v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "strategy"
	RootCmd.PersistentFlags().String(key, "copy", util.WrapString("transfer strategy to use (copy, vector, zerocopy)"))
	key = "size"
	RootCmd.PersistentFlags().Int(key, 1024, util.WrapString("message payload size in bytes"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
