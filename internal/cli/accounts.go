package cli

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wheel-ledger/internal/models"
	"wheel-ledger/internal/security"
)

// addAccountCommands adds account management commands.
func addAccountCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account management",
		Long:  "Create, inspect, configure and delete brokerage accounts.",
	}

	cmd.AddCommand(newAccountCreateCmd(app))
	cmd.AddCommand(newAccountListCmd(app))
	cmd.AddCommand(newAccountShowCmd(app))
	cmd.AddCommand(newAccountConfigCmd(app))
	cmd.AddCommand(newAccountTokenCmd(app))
	cmd.AddCommand(newAccountDeleteCmd(app))

	rootCmd.AddCommand(cmd)
}

func newAccountCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an account",
		Long: `Create an account for the current user.

Capital defaults to 100,000 with a 20% annual target and at most 10% of
capital per ticker.`,
		Example: `  wheel account create Main
  wheel account create IRA --cap 50000 --target 15 --max-per-ticker 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := app.commandContext(cmd, "account_create")
			defer cancel()

			svc, err := app.service(ctx)
			if err != nil {
				return err
			}

			cfg := models.DefaultAccountConfig()
			if err := applyAccountFlags(cmd, &cfg); err != nil {
				return err
			}

			id, err := svc.CreateAccount(ctx, app.userID(cmd), args[0], &cfg)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"account_id": id})
			}
			output.Success("✓ Account %q created (id %d)", args[0], id)
			return nil
		},
	}
	addAccountConfigFlags(cmd)
	return cmd
}

func addAccountConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("cap", "", "total capital")
	cmd.Flags().String("target", "", "annual return target in percent")
	cmd.Flags().String("max-per-ticker", "", "max percent of capital per ticker")
}

// applyAccountFlags overwrites the fields of cfg whose flags were given.
func applyAccountFlags(cmd *cobra.Command, cfg *models.AccountConfig) error {
	targets := map[string]*decimal.Decimal{
		"cap":            &cfg.CapTotal,
		"target":         &cfg.TargetAnn,
		"max-per-ticker": &cfg.MaxPerTicker,
	}
	for flag, dst := range targets {
		v, err := optionalDecimalFlag(cmd, flag)
		if err != nil {
			return err
		}
		if v != nil {
			*dst = *v
		}
	}
	return nil
}

func newAccountListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := app.commandContext(cmd, "account_list")
			defer cancel()

			svc, err := app.service(ctx)
			if err != nil {
				return err
			}
			accounts, err := svc.Accounts(ctx, app.userID(cmd))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(accounts)
			}
			if len(accounts) == 0 {
				output.Info("No accounts yet.")
				output.Dim("Tip: wheel account create <name>")
				return nil
			}

			table := NewTable(output, "ID", "Name", "Capital", "Target", "Max/Ticker", "Env", "Status")
			for _, a := range accounts {
				table.AddRow(
					strconv.FormatInt(a.ID, 10),
					a.Name,
					FormatUSD(a.CapTotal),
					a.TargetAnn.StringFixed(2)+"%",
					a.MaxPerTicker.StringFixed(2)+"%",
					a.Environment,
					a.ConnectionStatus,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newAccountShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "account_show")
			if err != nil {
				return err
			}
			defer cancel()

			acct, err := svc.Account(ctx, accountID, app.userID(cmd))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(acct)
			}
			showAccount(output, acct)
			return nil
		},
	}
}

func showAccount(output *Output, a *models.Account) {
	token := "(none)"
	if a.AccessToken != "" {
		token = security.MaskCredential(a.AccessToken)
	}
	output.Box(fmt.Sprintf("%s (#%d)", a.Name, a.ID), []string{
		"Capital:        " + FormatUSD(a.CapTotal),
		"Annual Target:  " + a.TargetAnn.StringFixed(2) + "%",
		"Max per Ticker: " + a.MaxPerTicker.StringFixed(2) + "%",
		"Environment:    " + a.Environment,
		"Connection:     " + a.ConnectionStatus,
		"Token:          " + token,
		"Created:        " + FormatDate(a.CreatedAt),
	})
}

func newAccountConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Update capital settings of the selected account",
		Example: `  wheel account config --account 2 --cap 120000 --max-per-ticker 15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "account_config")
			if err != nil {
				return err
			}
			defer cancel()

			user := app.userID(cmd)
			acct, err := svc.Account(ctx, accountID, user)
			if err != nil {
				return err
			}
			cfg := models.AccountConfig{
				CapTotal:     acct.CapTotal,
				TargetAnn:    acct.TargetAnn,
				MaxPerTicker: acct.MaxPerTicker,
			}
			if err := applyAccountFlags(cmd, &cfg); err != nil {
				return err
			}
			if err := svc.UpdateAccountConfig(ctx, accountID, user, cfg); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"account_id": accountID, "updated": true})
			}
			output.Success("✓ Account %d updated", accountID)
			return nil
		},
	}
	addAccountConfigFlags(cmd)
	return cmd
}

func newAccountTokenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Store the broker token of the selected account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "account_token")
			if err != nil {
				return err
			}
			defer cancel()

			token, _ := cmd.Flags().GetString("token")
			env, _ := cmd.Flags().GetString("env")
			status, _ := cmd.Flags().GetString("status")
			if err := svc.UpdateToken(ctx, accountID, app.userID(cmd), token, env, status); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"account_id": accountID, "updated": true})
			}
			output.Success("✓ Token stored for account %d", accountID)
			return nil
		},
	}
	cmd.Flags().String("token", "", "access token")
	cmd.Flags().String("env", "", "sandbox or production (default sandbox)")
	cmd.Flags().String("status", "", "connection status (default offline)")
	return cmd
}

func newAccountDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account and everything recorded in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := app.commandContext(cmd, "account_delete")
			defer cancel()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				output.Warning("This deletes account %d with all its trades, dividends and adjustments.", id)
				output.Println("Re-run with --yes to confirm.")
				return nil
			}

			svc, err := app.service(ctx)
			if err != nil {
				return err
			}
			if err := svc.DeleteAccount(ctx, id, app.userID(cmd)); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"account_id": id, "deleted": true})
			}
			output.Success("✓ Account %d deleted", id)
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm deletion")
	return cmd
}
