// Command tdisql loads TDI cancer-genomics result files into a relational
// store and answers driver/target questions over it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tdi-genomics/tdisql/internal/config"
	"github.com/tdi-genomics/tdisql/internal/database"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tdisql",
		Short:        "TDI bulk loader and query tool",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: search ./config.yaml, ./config, /etc/tdisql)")

	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(experimentCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// app bundles what every subcommand needs once configuration is read.
type app struct {
	config *config.Manager
	log    *logrus.Logger
	db     *database.DB
}

// setup reads configuration, builds the logger and, when connect is set,
// connects to the configured database.
func setup(ctx context.Context, cmd *cobra.Command, connect bool) (*app, error) {
	configFile, _ := cmd.Flags().GetString("config")

	manager, err := config.NewManager(configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := config.NewLogger(manager.GetConfig().Logging)
	if err != nil {
		return nil, err
	}
	if used := manager.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Debug("Configuration loaded")
	}

	a := &app{config: manager, log: logger}
	if !connect {
		return a, nil
	}

	a.db, err = database.NewConnection(ctx, *manager.GetDatabaseConfig(), logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the database connection, if one was opened.
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close database connection")
	}
}
