package bench

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sockbench/sockbench/bench/common"
	"github.com/sockbench/sockbench/bench/harness"
	cmdUtil "github.com/sockbench/sockbench/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmdConfig = &common.ClientConfig{}
	BenchCmd       = &cobra.Command{
		Use:     "bench",
		Short:   "Run the benchmark client against a server",
		Long:    `Run the benchmark client: one connection per simulated client, each repeating a request/response round trip with the selected transfer strategy for the configured duration. Client and server must be started with matching payload sizes.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	BenchCmd.PersistentFlags().String(key, "127.0.0.1:8080", cmdUtil.WrapString("The address of the benchmark server"))

	key = "clients"
	BenchCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Number of concurrently simulated clients"))

	key = "duration"
	BenchCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Run duration in seconds"))

	cmdUtil.SetupTCPFlags(BenchCmd)
}

// processConfig reads the configuration from the command line flags and
// environment variables and converts them to the client configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchCmdConfig.Endpoint = viper.GetString("endpoint")
	benchCmdConfig.PayloadSize = viper.GetInt("size")
	benchCmdConfig.Clients = viper.GetInt("clients")
	benchCmdConfig.DurationSec = viper.GetInt("duration")
	benchCmdConfig.Strategy = viper.GetString("strategy")
	benchCmdConfig.LogLevel = viper.GetString("log-level")
	benchCmdConfig.TCPConf = cmdUtil.GetTCPConf()

	return nil
}

// run drives the benchmark and prints the summary
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(benchCmdConfig.LogLevel)

	fmt.Println(benchCmdConfig.String())

	client, err := harness.NewClient(*benchCmdConfig)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM stop the workers early, the summary still covers
	// whatever traffic ran
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		client.Stop()
	}()

	summary, err := client.Run()
	if err != nil {
		return err
	}

	fmt.Println(summary.String())
	return nil
}
