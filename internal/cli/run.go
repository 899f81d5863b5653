package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/engine"
	"option-sentinel/internal/metrics"
	"option-sentinel/pkg/utils"
)

// addRunCommand adds the supervisor daemon command.
func addRunCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the protective order supervisor",
		Long: `Run the supervisor loop: snapshot option positions and open orders,
reconcile cost basis from executions, and keep one protective SELL LIMIT
order alive per net-long CE/PE position.

Stops on SIGINT/SIGTERM. Live protective orders are left standing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Client == nil {
				output.Error("Kite client not configured. Please check your credentials.toml")
				return fmt.Errorf("kite client not configured")
			}
			if !app.Client.IsAuthenticated() {
				output.Error("Not authenticated. Run 'sentinel auth login' first.")
				return fmt.Errorf("not authenticated")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !utils.IsMarketOpen() {
				app.Logger.Warn().
					Str("status", string(utils.GetMarketStatus())).
					Msg("market is not open")
			}

			if app.Config.Metrics.Enabled {
				go func() {
					if err := metrics.Serve(ctx, app.Config.Metrics.Listen); err != nil {
						app.Logger.Warn().Err(err).Msg("metrics listener failed")
					}
				}()
				app.Logger.Info().Str("listen", app.Config.Metrics.Listen).Msg("metrics exposed")
			}

			eng := engine.New(app.Config, app.Client, app.Logger)
			ticker := broker.NewKiteTicker(app.Client.APIKey(), app.Client.AccessToken(), app.Client.InstrumentToken)
			relay := engine.NewRelay(ticker, eng.Tracker(), app.Config.Engine.SubscribeInterval, app.Logger)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
					app.Logger.Error().Err(err).Msg("subscription relay failed")
				}
			}()

			if err := eng.Run(ctx); err != nil && err != context.Canceled {
				wg.Wait()
				return err
			}
			wg.Wait()
			output.Println("Exited cleanly.")
			return nil
		},
	})
}
