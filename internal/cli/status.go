package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"option-sentinel/internal/feed"
	"option-sentinel/internal/models"
	"option-sentinel/pkg/utils"
)

// addStatusCommand adds the one-shot position snapshot command.
func addStatusCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show net-long option positions and their open SELL orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Client == nil || !app.Client.IsAuthenticated() {
				output.Error("Not authenticated. Run 'sentinel auth login' first.")
				return fmt.Errorf("not authenticated")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			scope := feed.NewScope(app.Config.Engine.Exchanges, app.Config.Engine.Products)
			reader := feed.NewReader(app.Client, scope, app.Logger)
			positions := reader.Positions(ctx)
			openOrders := reader.OpenOrders(ctx)

			if output.IsJSON() {
				return output.JSON(map[string]any{
					"positions":   positions,
					"open_orders": openOrders,
				})
			}

			color.Cyan("🛡  Option Sentinel - %s", utils.GetMarketStatus())
			if len(positions) == 0 {
				output.Println("No net-long option positions.")
				return nil
			}
			for key, snap := range positions {
				output.Bold("%s", key.String())
				output.Printf("  Qty: %s  Avg: %s\n",
					utils.FormatQty(snap.NetQty),
					utils.FormatIndianCurrency(snap.AvgPrice))
				sells := 0
				for _, o := range openOrders[key] {
					if o.Side != models.OrderSideSell {
						continue
					}
					sells++
					output.Printf("  SELL %s @ %s (id=%s, %s)\n",
						utils.FormatQty(o.Quantity),
						utils.FormatIndianCurrency(o.Price),
						o.OrderID, o.Status)
				}
				if sells == 0 {
					color.Yellow("  ⚠ no protective SELL order live")
				} else if sells > 1 {
					color.Yellow("  ⚠ %d open SELL orders (expected one)", sells)
				}
			}
			return nil
		},
	})
}
