// Package cli provides the command-line interface for the option
// sentinel.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/config"
	"option-sentinel/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-07-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Client *broker.KiteClient
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Credentials.Kite.APIKey != "" {
		app.Client = broker.NewKiteClient(broker.KiteConfig{
			APIKey:    cfg.Credentials.Kite.APIKey,
			APISecret: cfg.Credentials.Kite.APISecret,
			UserID:    cfg.Credentials.Kite.UserID,
		})
		logger.Debug().Msg("Kite client initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Option Sentinel - protective order supervisor for Indian option positions",
		Long: `Option Sentinel watches net-long CE/PE option positions on Zerodha
Kite Connect and keeps exactly one protective SELL LIMIT order alive per
position, priced from the reconciled cost basis of your fills.

Cost basis is reconstructed from executions by two FIFO engines (a
session window and a lookback ledger); the broker-reported average is
only the last resort.

Use 'sentinel help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/option-sentinel)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addRunCommand(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addStatusCommand(rootCmd, app)
	addVersionCommand(rootCmd)

	return rootCmd
}

func addVersionCommand(rootCmd *cobra.Command) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("sentinel %s (built %s)\n", Version, BuildDate)
			return nil
		},
	})
}
