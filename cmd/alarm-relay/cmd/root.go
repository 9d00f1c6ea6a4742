package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-relay/internal/config"
	"github.com/oshokin/alarm-relay/internal/service/sender"
	"github.com/oshokin/alarm-relay/internal/service/server"
	"github.com/oshokin/alarm-relay/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// serveOptions collects the serve command flags.
	serveOptions = new(server.Options)
	// sendOptions collects the send and stats command flags.
	sendOptions = new(sender.Options)

	// rootCmd is the base command; it only groups the subcommands.
	rootCmd = &cobra.Command{
		Use:   "alarm-relay",
		Short: "Queue alarms and deliver them to an HTTP endpoint.",
		Long: `alarm-relay accepts alarms over gRPC and HTTP, queues them in memory and
posts each one to a single configured endpoint, retrying failed attempts with
exponential backoff.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until interrupted.",
		Long: `Loads the settings file, starts the delivery worker and serves the gRPC and
HTTP APIs. SIGINT or SIGTERM stops the listeners and then the worker; alarms
still queued at that point are dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			serveOptions.ConfigPath = configPath

			return server.Run(ctx, serveOptions)
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send [server-address]",
		Short: "Submit one alarm to a running relay.",
		Long: `Submits one alarm over gRPC. The server address defaults to the gRPC listen
address from the settings file. Metadata is given as repeated --meta key=value
flags; values that are valid JSON keep their type.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			sendOptions.ConfigPath = configPath
			if len(args) > 0 {
				sendOptions.ServerAddress = args[0]
			}

			return sender.Run(ctx, sendOptions)
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats [server-address]",
		Short: "Print the stats of a running relay.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sendOptions.ConfigPath = configPath
			if len(args) > 0 {
				sendOptions.ServerAddress = args[0]
			}

			return sender.Stats(cmd.Context(), sendOptions, cmd.OutOrStdout())
		},
	}
)

// Execute runs the alarm-relay CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	serveCmd.Flags().StringVar(&serveOptions.GRPCAddress, "grpc-addr", "", "override listen.grpc_addr")
	serveCmd.Flags().StringVar(&serveOptions.HTTPAddress, "http-addr", "", "override listen.http_addr")
	serveCmd.Flags().StringVar(&serveOptions.LogLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	sendCmd.Flags().StringVarP(&sendOptions.Type, "type", "t", "", "alarm type (required)")
	sendCmd.Flags().StringVarP(&sendOptions.Message, "message", "m", "", "alarm message")
	sendCmd.Flags().StringVarP(&sendOptions.Severity, "severity", "s", "", "info, warning, error or critical")
	sendCmd.Flags().StringArrayVar(&sendOptions.Metadata, "meta", nil, "metadata key=value, repeatable")
	sendCmd.Flags().BoolVar(&sendOptions.Anonymous, "anonymous", false, "do not add hostname and username metadata")
	_ = sendCmd.MarkFlagRequired("type")

	for _, c := range []*cobra.Command{sendCmd, statsCmd} {
		c.Flags().DurationVar(&sendOptions.Timeout, "timeout", config.DefaultTimeout, "overall timeout")
	}

	rootCmd.AddCommand(serveCmd, sendCmd, statsCmd)
}
