package cli

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wheel-ledger/internal/models"
	"wheel-ledger/internal/wheel"
)

// addIncomeCommands adds dividend and cost basis adjustment commands.
func addIncomeCommands(rootCmd *cobra.Command, app *App) {
	dividend := &cobra.Command{
		Use:   "dividend",
		Short: "Dividends received",
		Long:  "Record and list cash dividends. Dividends lower the net cost basis of the ticker's shares.",
	}
	dividend.AddCommand(newDividendAddCmd(app))
	dividend.AddCommand(newDividendListCmd(app))
	rootCmd.AddCommand(dividend)

	adjust := &cobra.Command{
		Use:   "adjust",
		Short: "Manual cost basis adjustments",
		Long:  "Record and list position adjustments. Each adjustment adds new - old to the ticker's cost basis.",
	}
	adjust.AddCommand(newAdjustAddCmd(app))
	adjust.AddCommand(newAdjustListCmd(app))
	rootCmd.AddCommand(adjust)
}

func newDividendAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Record a dividend",
		Example: "  wheel dividend add --ticker XYZ --amount 50 --ex-date 2024-02-01",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "dividend_add")
			if err != nil {
				return err
			}
			defer cancel()

			req := wheel.DividendRequest{AccountID: accountID}
			req.Ticker, _ = cmd.Flags().GetString("ticker")
			req.Note, _ = cmd.Flags().GetString("note")
			if req.Amount, err = decimalFlag(cmd, "amount"); err != nil {
				return err
			}
			if req.ExDate, err = dateFlag(cmd, "ex-date"); err != nil {
				return err
			}
			if req.PayDate, err = optionalDateFlag(cmd, "pay-date"); err != nil {
				return err
			}

			id, err := svc.RegisterDividend(ctx, req)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"dividend_id": id})
			}
			output.Success("✓ Dividend recorded (id %d)", id)
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "ticker")
	cmd.Flags().String("amount", "", "total cash received")
	cmd.Flags().String("ex-date", "", "ex-dividend date (YYYY-MM-DD)")
	cmd.Flags().String("pay-date", "", "payment date (YYYY-MM-DD)")
	cmd.Flags().String("note", "", "note")
	_ = cmd.MarkFlagRequired("ticker")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("ex-date")
	return cmd
}

func newDividendListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dividends",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "dividend_list")
			if err != nil {
				return err
			}
			defer cancel()

			ticker, _ := cmd.Flags().GetString("ticker")
			dividends, err := svc.Dividends(ctx, accountID, ticker)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(dividends)
			}
			if len(dividends) == 0 {
				output.Info("No dividends recorded.")
				return nil
			}

			total := decimal.Zero
			table := NewTable(output, "ID", "Ticker", "Ex-Date", "Paid", "Amount", "Note")
			for _, d := range dividends {
				total = total.Add(d.Amount)
				table.AddRow(
					strconv.FormatInt(d.ID, 10),
					d.Ticker,
					FormatDate(d.ExDate),
					FormatDatePtr(d.PayDate),
					FormatUSD(d.Amount),
					TruncateString(d.Note, 30),
				)
			}
			table.Render()
			output.Println()
			output.Printf("  Total: %s\n", output.Green(FormatUSD(total)))
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only this ticker")
	return cmd
}

func newAdjustAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a cost basis adjustment",
		Example: `  wheel adjust add --ticker XYZ --type COST_BASIS_CORRECTION --old 4000 --new 3950
  wheel adjust add --ticker XYZ --new -25 --note "broker rebate"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "adjust_add")
			if err != nil {
				return err
			}
			defer cancel()

			req := wheel.AdjustmentRequest{AccountID: accountID}
			req.Ticker, _ = cmd.Flags().GetString("ticker")
			req.Note, _ = cmd.Flags().GetString("note")
			kind, _ := cmd.Flags().GetString("type")
			req.Type = models.AdjustmentType(strings.ToUpper(strings.TrimSpace(kind)))
			req.TradeID = optionalIDFlag(cmd, "trade")
			if req.OldValue, err = optionalDecimalFlag(cmd, "old"); err != nil {
				return err
			}
			if req.NewValue, err = optionalDecimalFlag(cmd, "new"); err != nil {
				return err
			}

			id, err := svc.RegisterAdjustment(ctx, req)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"adjustment_id": id})
			}
			output.Success("✓ Adjustment recorded (id %d)", id)
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "ticker")
	cmd.Flags().String("type", "", "SPLIT, COST_BASIS_CORRECTION or OTHER (default OTHER)")
	cmd.Flags().String("old", "", "old value")
	cmd.Flags().String("new", "", "new value")
	cmd.Flags().Int64("trade", 0, "trade the adjustment refers to")
	cmd.Flags().String("note", "", "note")
	_ = cmd.MarkFlagRequired("ticker")
	return cmd
}

func newAdjustListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cost basis adjustments",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "adjust_list")
			if err != nil {
				return err
			}
			defer cancel()

			ticker, _ := cmd.Flags().GetString("ticker")
			adjustments, err := svc.Adjustments(ctx, accountID, ticker)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(adjustments)
			}
			if len(adjustments) == 0 {
				output.Info("No adjustments recorded.")
				return nil
			}

			table := NewTable(output, "ID", "Ticker", "Type", "Old", "New", "Delta", "Trade", "Note")
			for _, a := range adjustments {
				trade := "-"
				if a.TradeID != nil {
					trade = strconv.FormatInt(*a.TradeID, 10)
				}
				table.AddRow(
					strconv.FormatInt(a.ID, 10),
					a.Ticker,
					string(a.Type),
					FormatUSDPtr(a.OldValue),
					FormatUSDPtr(a.NewValue),
					output.FormatPnL(a.Delta()),
					trade,
					TruncateString(a.Note, 30),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only this ticker")
	return cmd
}
