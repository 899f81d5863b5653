package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Zerodha Kite Connect",
	}
	authCmd.AddCommand(newLoginCmd(app))
	authCmd.AddCommand(newAuthStatusCmd(app))
	rootCmd.AddCommand(authCmd)
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login via the Kite Connect OAuth flow",
		Long: `Login to Zerodha Kite Connect.

Prints the login URL; after completing it in a browser, paste the
request_token from the redirect URL back here (or pass it with --token).`,
		Example: `  sentinel auth login
  sentinel auth login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if app.Client == nil {
				output.Error("Kite client not configured. Please check your credentials.toml")
				return fmt.Errorf("kite client not configured")
			}

			if app.Client.IsAuthenticated() {
				output.Success("Already authenticated.")
				return nil
			}

			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				output.Info("Open this URL in a browser to login:")
				output.Println(app.Client.LoginURL())
				output.Printf("Paste the request_token from the redirect URL: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading request token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("no request token provided")
			}

			if err := app.Client.CompleteLogin(ctx, token); err != nil {
				output.Error("Login failed: %v", err)
				return err
			}
			output.Success("✓ Login successful!")
			return nil
		},
	}
	cmd.Flags().String("token", "", "request token from the redirect URL")
	return cmd
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			authenticated := app.Client != nil && app.Client.IsAuthenticated()
			if output.IsJSON() {
				return output.JSON(map[string]bool{"authenticated": authenticated})
			}
			if authenticated {
				output.Success("✓ Authenticated")
			} else {
				output.Warning("Not authenticated. Run 'sentinel auth login'.")
			}
			return nil
		},
	}
}
