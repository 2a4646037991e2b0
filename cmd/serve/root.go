package serve

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
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the benchmark echo server",
		Long:    `Start the benchmark echo server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SOCKBENCH_<flag> (e.g. SOCKBENCH_MAX_CONNECTIONS=8)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address the server listens on"))

	key = "max-connections"
	ServeCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Maximum number of concurrently served connections. Connections beyond the cap are rejected immediately"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional address to expose Prometheus metrics on (empty disables)"))

	cmdUtil.SetupTCPFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and
// environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.PayloadSize = viper.GetInt("size")
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.Strategy = viper.GetString("strategy")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.TCPConf = cmdUtil.GetTCPConf()

	return nil
}

// run starts the benchmark server and blocks until shutdown
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(serveCmdConfig.LogLevel)

	fmt.Println(serveCmdConfig.String())

	srv, err := harness.NewServer(*serveCmdConfig)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM flip the running flag for a graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil {
		return err
	}

	fmt.Println(srv.Summary().String())
	return nil
}
