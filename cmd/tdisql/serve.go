package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tdi-genomics/tdisql/internal/api"
	"github.com/tdi-genomics/tdisql/internal/repository"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only query API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			repo := repository.NewTDIRepository(a.db, a.log)
			server := api.NewServer(*a.config.GetServerConfig(), a.db, repo, a.log)
			return server.Start(ctx)
		},
	}
}
