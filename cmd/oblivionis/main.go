package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "oblivionis",
		Short:        "Search and download music from the aggregation API",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := Initialize(ctx, Options{
				ConfigPath:  configPath,
				LogLevel:    logLevel,
				MetricsAddr: metricsAddr,
				In:          os.Stdin,
				Out:         cmd.OutOrStdout(),
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "[ERROR] %v\n", err)
				return err
			}
			defer app.Shutdown()

			app.Run(ctx)
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to settings.json (defaults to the data directory)")
	cmd.Flags().String("log-level", "", "Override the configured log level")
	cmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address")
	return cmd
}
