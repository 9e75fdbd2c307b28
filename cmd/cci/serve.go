package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cci/internal/logging"
	"cci/internal/rpc"
)

var serveTCP string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over newline-delimited JSON-RPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.FromEnv()
		server := rpc.NewServer(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serveTCP != "" {
			return server.ServeTCP(ctx, serveTCP)
		}
		return server.ServeStdio(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveTCP, "tcp", "", "listen on a TCP address instead of stdio")
	rootCmd.AddCommand(serveCmd)
}
