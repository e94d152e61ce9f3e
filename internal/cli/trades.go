package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store"
	"wheel-ledger/internal/wheel"
)

// addTradeCommands adds the commands that record and maintain trade legs.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	csp := &cobra.Command{Use: "csp", Short: "Cash-secured puts"}
	csp.AddCommand(newOptionOpenCmd(app, models.StrategyCSP))
	rootCmd.AddCommand(csp)

	cc := &cobra.Command{Use: "cc", Short: "Covered calls"}
	cc.AddCommand(newOptionOpenCmd(app, models.StrategyCC))
	rootCmd.AddCommand(cc)

	stock := &cobra.Command{Use: "stock", Short: "Share lots"}
	stock.AddCommand(newStockBuyCmd(app))
	rootCmd.AddCommand(stock)

	rootCmd.AddCommand(newAssignCmd(app))
	rootCmd.AddCommand(newRollCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))

	trade := &cobra.Command{
		Use:   "trade",
		Short: "Trade maintenance",
		Long:  "List, correct and delete recorded trade legs.",
	}
	trade.AddCommand(newTradeListCmd(app))
	trade.AddCommand(newTradeEditCmd(app))
	trade.AddCommand(newTradeDeleteCmd(app))
	rootCmd.AddCommand(trade)
}

func parseTradeID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid trade id %q", arg)
	}
	return id, nil
}

// reportRecorded prints the id of a newly recorded leg.
func reportRecorded(output *Output, what string, id int64) error {
	if output.IsJSON() {
		return output.JSON(map[string]int64{"trade_id": id})
	}
	output.Success("✓ %s recorded (trade %d)", what, id)
	return nil
}

func newOptionOpenCmd(app *App, strategy models.StrategyType) *cobra.Command {
	short, example := "Sell a cash-secured put", "  wheel csp open --ticker XYZ --qty 1 --strike 100 --premium 2.50 --expiration 2024-03-21"
	if strategy == models.StrategyCC {
		short, example = "Sell a covered call against free shares", "  wheel cc open --ticker XYZ --qty 1 --strike 45 --premium 1.20 --expiration 2024-03-15"
	}

	cmd := &cobra.Command{
		Use:     "open",
		Short:   short,
		Example: example,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "open_"+string(strategy))
			if err != nil {
				return err
			}
			defer cancel()

			req := wheel.OptionOpening{AccountID: accountID}
			req.Ticker, _ = cmd.Flags().GetString("ticker")
			req.Quantity, _ = cmd.Flags().GetInt("qty")
			req.Comment, _ = cmd.Flags().GetString("comment")
			req.ParentTradeID = optionalIDFlag(cmd, "parent")
			if req.Strike, err = decimalFlag(cmd, "strike"); err != nil {
				return err
			}
			if req.Premium, err = decimalFlag(cmd, "premium"); err != nil {
				return err
			}
			if req.ExpirationDate, err = dateFlag(cmd, "expiration"); err != nil {
				return err
			}
			if req.TradeDate, err = dateFlag(cmd, "date"); err != nil {
				return err
			}

			var id int64
			if strategy == models.StrategyCC {
				id, err = svc.RegisterCCOpening(ctx, req)
			} else {
				id, err = svc.RegisterCSPOpening(ctx, req)
			}
			if err != nil {
				return err
			}
			return reportRecorded(output, string(strategy), id)
		},
	}

	cmd.Flags().String("ticker", "", "underlying ticker")
	cmd.Flags().Int("qty", 1, "contracts")
	cmd.Flags().String("strike", "", "strike price")
	cmd.Flags().String("premium", "", "premium per share")
	cmd.Flags().String("expiration", "", "expiration date (YYYY-MM-DD)")
	cmd.Flags().String("date", "", "trade date (default today)")
	cmd.Flags().String("comment", "", "free-form note")
	cmd.Flags().Int64("parent", 0, "parent trade id of the campaign")
	_ = cmd.MarkFlagRequired("ticker")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("expiration")
	return cmd
}

func newStockBuyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "buy",
		Short:   "Record shares bought outright",
		Example: "  wheel stock buy --ticker XYZ --qty 100 --price 40",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "stock_buy")
			if err != nil {
				return err
			}
			defer cancel()

			req := wheel.PurchaseRequest{AccountID: accountID}
			req.Ticker, _ = cmd.Flags().GetString("ticker")
			req.Quantity, _ = cmd.Flags().GetInt("qty")
			req.Comment, _ = cmd.Flags().GetString("comment")
			if req.Price, err = decimalFlag(cmd, "price"); err != nil {
				return err
			}
			if req.TradeDate, err = dateFlag(cmd, "date"); err != nil {
				return err
			}

			id, err := svc.RegisterDirectPurchase(ctx, req)
			if err != nil {
				return err
			}
			return reportRecorded(output, "Purchase", id)
		},
	}
	cmd.Flags().String("ticker", "", "ticker")
	cmd.Flags().Int("qty", 0, "shares")
	cmd.Flags().String("price", "", "price per share")
	cmd.Flags().String("date", "", "trade date (default today)")
	cmd.Flags().String("comment", "", "free-form note")
	_ = cmd.MarkFlagRequired("ticker")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newAssignCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <put-trade-id>",
		Short: "Record the assignment of a cash-secured put",
		Long: `Close an open cash-secured put and open the stock leg it delivered.

Shares default to contracts x 100 and the price to the put strike.`,
		Example: "  wheel assign 12 --date 2024-03-15",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			putID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "assign")
			if err != nil {
				return err
			}
			defer cancel()

			req := wheel.AssignmentRequest{AccountID: accountID, ParentTradeID: putID}
			req.Ticker, _ = cmd.Flags().GetString("ticker")
			req.Quantity, _ = cmd.Flags().GetInt("qty")
			req.Comment, _ = cmd.Flags().GetString("comment")
			if req.AssignmentPrice, err = decimalFlag(cmd, "price"); err != nil {
				return err
			}
			if req.TradeDate, err = dateFlag(cmd, "date"); err != nil {
				return err
			}

			id, err := svc.RegisterAssignment(ctx, req)
			if err != nil {
				return err
			}
			return reportRecorded(output, "Assignment", id)
		},
	}
	cmd.Flags().String("ticker", "", "ticker (default: the put's)")
	cmd.Flags().Int("qty", 0, "shares received (default contracts x 100)")
	cmd.Flags().String("price", "", "price per share (default the strike)")
	cmd.Flags().String("date", "", "assignment date (default today)")
	cmd.Flags().String("comment", "", "free-form note")
	return cmd
}

func newRollCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roll <trade-id>",
		Short: "Buy back an open option and sell its replacement",
		Long: `Close an open option leg, optionally with a buyback debit, and open the
next leg of the same strategy and size in one step. The new leg continues the
old leg's campaign.`,
		Example: "  wheel roll 12 --strike 98 --premium 1.50 --expiration 2024-04-19 --buyback 120",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tradeID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "roll")
			if err != nil {
				return err
			}
			defer cancel()

			req := wheel.RollRequest{AccountID: accountID, TradeID: tradeID}
			req.Comment, _ = cmd.Flags().GetString("comment")
			if req.NewStrike, err = decimalFlag(cmd, "strike"); err != nil {
				return err
			}
			if req.NewPremium, err = decimalFlag(cmd, "premium"); err != nil {
				return err
			}
			if req.NewExpiration, err = dateFlag(cmd, "expiration"); err != nil {
				return err
			}
			if req.TradeDate, err = dateFlag(cmd, "date"); err != nil {
				return err
			}
			if req.BuybackDebit, err = optionalDecimalFlag(cmd, "buyback"); err != nil {
				return err
			}

			id, err := svc.RollOption(ctx, req)
			if err != nil {
				return err
			}
			return reportRecorded(output, "Roll", id)
		},
	}
	cmd.Flags().String("strike", "", "new strike")
	cmd.Flags().String("premium", "", "new premium per share")
	cmd.Flags().String("expiration", "", "new expiration (YYYY-MM-DD)")
	cmd.Flags().String("date", "", "roll date (default today)")
	cmd.Flags().String("buyback", "", "total debit paid to close the old leg")
	cmd.Flags().String("comment", "", "free-form note")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("expiration")
	return cmd
}

func newCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "close <trade-id>",
		Short:   "Close an open leg",
		Long:    "Close an open leg at expiry, or with --buyback for an option bought back early.",
		Example: "  wheel close 12 --date 2024-03-15\n  wheel close 12 --buyback 45",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tradeID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "close")
			if err != nil {
				return err
			}
			defer cancel()

			closed, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			if closed.IsZero() {
				closed = app.now()
			}
			buyback, err := optionalDecimalFlag(cmd, "buyback")
			if err != nil {
				return err
			}

			if err := svc.CloseTrade(ctx, accountID, tradeID, closed, buyback); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"trade_id": tradeID, "closed": true})
			}
			output.Success("✓ Trade %d closed", tradeID)
			return nil
		},
	}
	cmd.Flags().String("date", "", "closed date (default today)")
	cmd.Flags().String("buyback", "", "total debit paid to buy the option back")
	return cmd
}

func newTradeListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades opened in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "trade_list")
			if err != nil {
				return err
			}
			defer cancel()

			f := wheel.ReportFilter{AccountID: accountID}
			f.Ticker, _ = cmd.Flags().GetString("ticker")
			strategy, _ := cmd.Flags().GetString("strategy")
			status, _ := cmd.Flags().GetString("status")
			f.Strategy = models.StrategyType(strategy)
			f.Status = models.TradeStatus(status)
			if f.From, err = dateFlag(cmd, "from"); err != nil {
				return err
			}
			if f.To, err = dateFlag(cmd, "to"); err != nil {
				return err
			}

			trades, err := svc.TradesForReport(ctx, f)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Info("No trades found.")
				return nil
			}
			renderTrades(output, trades)
			return nil
		},
	}
	cmd.Flags().String("from", "", "opened on or after (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "opened on or before (YYYY-MM-DD)")
	cmd.Flags().String("ticker", "", "only this ticker")
	cmd.Flags().String("strategy", "", "CSP, CC, STOCK or ASSIGNMENT")
	cmd.Flags().String("status", "", "OPEN or CLOSED")
	return cmd
}

func renderTrades(output *Output, trades []wheel.ReportTrade) {
	table := NewTable(output, "ID", "Date", "Ticker", "Strategy", "Entry", "Qty", "Price", "Strike", "Expires", "Status", "Campaign")
	for _, t := range trades {
		status := string(t.Status)
		if t.ClosedDate != nil {
			status += " " + FormatDatePtr(t.ClosedDate)
		}
		table.AddRow(
			strconv.FormatInt(t.ID, 10),
			FormatDate(t.TradeDate),
			t.Ticker,
			string(t.StrategyType),
			string(t.EntryType),
			FormatQuantity(t.Quantity),
			FormatPrice(t.Price),
			FormatPricePtr(t.Strike),
			FormatDatePtr(t.ExpirationDate),
			status,
			fmt.Sprintf("#%d", t.CampaignRootID),
		)
	}
	table.Render()
}

func newTradeEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edit <trade-id>",
		Short:   "Correct fields of a recorded trade",
		Example: "  wheel trade edit 12 --premium 2.35 --comment \"fill corrected\"",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tradeID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "trade_edit")
			if err != nil {
				return err
			}
			defer cancel()

			upd, err := tradeUpdateFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := svc.UpdateTrade(ctx, accountID, tradeID, upd); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"trade_id": tradeID, "updated": true})
			}
			output.Success("✓ Trade %d updated", tradeID)
			return nil
		},
	}
	cmd.Flags().String("price", "", "premium or share price")
	cmd.Flags().String("premium", "", "alias of --price for options")
	cmd.Flags().String("strike", "", "strike")
	cmd.Flags().String("expiration", "", "expiration date")
	cmd.Flags().String("date", "", "trade date")
	cmd.Flags().Int("qty", 0, "quantity")
	cmd.Flags().String("comment", "", "note")
	return cmd
}

func tradeUpdateFromFlags(cmd *cobra.Command) (store.TradeUpdate, error) {
	var (
		upd store.TradeUpdate
		err error
	)
	if upd.Price, err = optionalDecimalFlag(cmd, "price"); err != nil {
		return upd, err
	}
	if upd.Price == nil {
		if upd.Price, err = optionalDecimalFlag(cmd, "premium"); err != nil {
			return upd, err
		}
	}
	if upd.Strike, err = optionalDecimalFlag(cmd, "strike"); err != nil {
		return upd, err
	}
	if upd.ExpirationDate, err = optionalDateFlag(cmd, "expiration"); err != nil {
		return upd, err
	}
	if upd.TradeDate, err = optionalDateFlag(cmd, "date"); err != nil {
		return upd, err
	}
	if cmd.Flags().Changed("qty") {
		qty, _ := cmd.Flags().GetInt("qty")
		upd.Quantity = &qty
	}
	if cmd.Flags().Changed("comment") {
		comment, _ := cmd.Flags().GetString("comment")
		upd.Comment = &comment
	}
	return upd, nil
}

func newTradeDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <trade-id>",
		Short: "Delete a recorded trade",
		Long: `Delete a trade leg. Legs that named it as parent keep the dangling link
and their campaign history stops there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tradeID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				output.Warning("This permanently deletes trade %d.", tradeID)
				output.Println("Re-run with --yes to confirm.")
				return nil
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "trade_delete")
			if err != nil {
				return err
			}
			defer cancel()

			if err := svc.DeleteTrade(ctx, accountID, tradeID); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"trade_id": tradeID, "deleted": true})
			}
			output.Success("✓ Trade %d deleted", tradeID)
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm deletion")
	return cmd
}

