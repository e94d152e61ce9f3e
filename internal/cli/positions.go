package cli

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wheel-ledger/internal/calc"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/quotes"
	"wheel-ledger/internal/wheel"
)

// addPositionCommands adds the reporting commands.
func addPositionCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newDashboardCmd(app))
	rootCmd.AddCommand(newRealizedCmd(app))
	rootCmd.AddCommand(newSharesCmd(app))

	campaign := &cobra.Command{
		Use:   "campaign",
		Short: "Campaign history and costs",
		Long:  "Inspect the chain of legs behind a trade and record the campaign's commissions and fees.",
	}
	campaign.AddCommand(newCampaignShowCmd(app))
	campaign.AddCommand(newCampaignFeesCmd(app))
	rootCmd.AddCommand(campaign)
}

func addQuoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("price", nil, "spot price override TICKER=PRICE (repeatable)")
	cmd.Flags().StringArray("earnings", nil, "ticker with earnings before expiration (repeatable)")
}

// applyQuoteFlags loads --price overrides into the static provider and
// returns the --earnings set.
func (a *App) applyQuoteFlags(cmd *cobra.Command) (map[string]bool, error) {
	pairs, _ := cmd.Flags().GetStringArray("price")
	prices, err := parsePriceOverrides(pairs)
	if err != nil {
		return nil, err
	}
	for ticker, price := range prices {
		a.Prices.Set(ticker, price)
	}
	// cached quotes would shadow the overrides
	if cache, ok := a.Quotes.(*quotes.CachedProvider); ok && len(prices) > 0 {
		cache.Invalidate()
	}
	earnings, _ := cmd.Flags().GetStringArray("earnings")
	return tickerSet(earnings), nil
}

func newPositionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Show open positions by campaign",
		Long: `Show one row per open option campaign plus a stock-only row for shares
no covered call is written against. Rows carry premiums, assigned shares and
net cost basis; with a spot price they are also scored.`,
		Example: `  wheel positions
  wheel positions --ticker XYZ --price XYZ=41.20 --earnings XYZ`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "positions")
			if err != nil {
				return err
			}
			defer cancel()

			earnings, err := app.applyQuoteFlags(cmd)
			if err != nil {
				return err
			}
			ticker, _ := cmd.Flags().GetString("ticker")
			rows, err := svc.PositionSummary(ctx, accountID, ticker)
			if err != nil {
				return err
			}

			today := calc.Day(app.now())
			views := make([]wheel.PositionView, 0, len(rows))
			for _, row := range rows {
				spot, err := app.Quotes.Quote(ctx, row.Ticker)
				if err != nil {
					spot = nil
				}
				views = append(views, wheel.PositionView{
					Row:     row,
					Metrics: wheel.EvaluatePosition(row, spot, !earnings[row.Ticker], today),
				})
			}

			if output.IsJSON() {
				return output.JSON(views)
			}
			if len(views) == 0 {
				output.Info("No open positions.")
				return nil
			}
			renderPositions(output, views)
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only this ticker")
	addQuoteFlags(cmd)
	return cmd
}

func renderPositions(output *Output, views []wheel.PositionView) {
	table := NewTable(output, "Ticker", "Type", "Ctr", "Strike", "Expires", "DTE", "Premiums", "Shares", "Net Basis", "Breakeven", "Spot", "P&L", "Score", "Status")
	for _, v := range views {
		r, m := v.Row, v.Metrics
		spot := FormatPrice(m.Spot)
		if m.QuoteMissing {
			spot = output.Yellow("n/a")
		}
		dte := "-"
		if r.ExpirationDate != nil {
			dte = strconv.Itoa(m.DTE)
		}
		table.AddRow(
			r.Ticker,
			string(r.StrategyType),
			strconv.Itoa(r.OptionContracts),
			FormatPricePtr(r.Strike),
			FormatDatePtr(r.ExpirationDate),
			dte,
			FormatUSD(r.PremiumsReceived),
			FormatQuantity(r.StockQuantity),
			FormatUSD(r.NetCostBasisTotal),
			FormatPrice(m.Breakeven),
			spot,
			output.FormatPnL(m.PnLAtSpot),
			output.ScoreLabel(m.Score, m.Label),
			output.Diagnosis(m.Diagnosis),
		)
	}
	table.Render()
}

func newDashboardCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dashboard",
		Short:   "Account overview at current prices",
		Example: "  wheel dashboard --price XYZ=41.20 --price ABC=99",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "dashboard")
			if err != nil {
				return err
			}
			defer cancel()

			earnings, err := app.applyQuoteFlags(cmd)
			if err != nil {
				return err
			}
			d, err := svc.Dashboard(ctx, accountID, app.userID(cmd), app.Quotes, earnings)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(d)
			}
			renderDashboard(output, d)
			return nil
		},
	}
	addQuoteFlags(cmd)
	return cmd
}

func renderDashboard(output *Output, d *wheel.Dashboard) {
	track := output.Red("behind target")
	if d.OnTrack {
		track = output.Green("on track")
	}
	output.Box(fmt.Sprintf("%s (#%d)  quotes %s", d.Account.Name, d.Account.ID, d.QuoteStatus), []string{
		"Capital:        " + FormatUSD(d.Account.CapTotal),
		"Current Value:  " + FormatUSD(d.CurrentValue),
		"Unrealized:     " + output.FormatPnL(d.UnrealizedPnL) + " (" + output.FormatPercent(d.UnrealizedPct) + ")",
		"Premiums Open:  " + FormatUSD(d.TotalPremiums),
		"Collateral:     " + FormatUSD(d.TotalCollateral) + " (" + FormatPercent(d.UtilizationPct) + " used)",
		"Free Cash:      " + FormatUSD(d.FreeCash),
		"Annualized:     " + FormatPercent(d.AnnualizedReturn) + " vs target " + FormatPercent(d.Account.TargetAnn),
		"Goal:           " + FormatPercent(d.GoalProgressPct) + " of " + FormatUSD(d.TargetUSD) + ", " + track,
	})
	output.Println()

	if len(d.Positions) == 0 {
		output.Info("No open positions.")
		return
	}
	output.Bold("Positions")
	renderPositions(output, d.Positions)
	output.Println()

	output.Bold("Allocation")
	table := NewTable(output, "Ticker", "Collateral", "Share")
	for _, a := range d.Allocations {
		share := FormatPercent(a.Pct)
		if a.OverLimit {
			share = output.Red(share + " over limit")
		}
		table.AddRow(a.Ticker, FormatUSD(a.Collateral), share)
	}
	table.Render()

	if len(d.Alerts) > 0 {
		output.Println()
		output.Warning("Expiring soon")
		for _, alert := range d.Alerts {
			moneyness := ""
			if alert.Moneyness != "" {
				moneyness = " " + string(alert.Moneyness)
			}
			output.Printf("  %s %s #%d in %s%s\n", alert.Ticker, alert.StrategyType, alert.TradeID, FormatDays(alert.DTE), moneyness)
		}
	}
}

func newCampaignShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show the campaign a trade belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tradeID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "campaign_show")
			if err != nil {
				return err
			}
			defer cancel()

			c, err := svc.CampaignHistory(ctx, accountID, tradeID)
			if err != nil {
				return err
			}
			pnl, err := svc.CampaignPnL(ctx, accountID, tradeID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"legs": c.Legs,
					"pnl":  pnl,
				})
			}

			output.Bold("Campaign #%d since %s (%s)", c.RootID, FormatDate(c.StartDate), FormatDays(c.Days))
			if !c.Complete {
				output.Warning("History is incomplete: the parent chain stops before its root.")
			}
			table := NewTable(output, "ID", "Date", "Strategy", "Entry", "Qty", "Price", "Strike", "Expires", "Status", "Buyback")
			for _, leg := range c.Legs {
				table.AddRow(
					strconv.FormatInt(leg.ID, 10),
					FormatDate(leg.TradeDate),
					string(leg.StrategyType),
					string(leg.EntryType),
					FormatQuantity(leg.Quantity),
					FormatPrice(leg.Price),
					FormatPricePtr(leg.Strike),
					FormatDatePtr(leg.ExpirationDate),
					string(leg.Status),
					FormatUSDPtr(leg.BuybackDebit),
				)
			}
			table.Render()
			output.Println()
			output.Printf("  Premiums:    %s\n", FormatUSD(pnl.Premiums))
			output.Printf("  Buybacks:    %s\n", FormatUSD(pnl.Buybacks))
			output.Printf("  Commissions: %s\n", FormatUSD(pnl.Commissions))
			output.Printf("  Fees:        %s\n", FormatUSD(pnl.Fees))
			output.Printf("  Net:         %s\n", output.FormatPnL(pnl.Net))
			return nil
		},
	}
}

func newCampaignFeesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fees <trade-id>",
		Short:   "Record commissions and fees of a campaign",
		Long:    "Record the commissions and fees of the campaign a trade belongs to. They are charged once per campaign.",
		Example: "  wheel campaign fees 14 --commissions 2.60 --fees 0.40",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tradeID, err := parseTradeID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "campaign_fees")
			if err != nil {
				return err
			}
			defer cancel()

			commissions, err := decimalFlag(cmd, "commissions")
			if err != nil {
				return err
			}
			fees, err := decimalFlag(cmd, "fees")
			if err != nil {
				return err
			}

			root, err := svc.SetCampaignFees(ctx, accountID, tradeID, commissions, fees)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"campaign_root_id": root})
			}
			output.Success("✓ Fees recorded on campaign #%d", root)
			return nil
		},
	}
	cmd.Flags().String("commissions", "0", "total commissions")
	cmd.Flags().String("fees", "0", "total regulatory and other fees")
	return cmd
}

func newRealizedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "realized",
		Short:   "Realized P&L of legs closed in a period",
		Example: "  wheel realized --from 2024-01-01 --to 2024-03-31",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "realized")
			if err != nil {
				return err
			}
			defer cancel()

			today := calc.Day(app.now())
			from, err := dateFlag(cmd, "from")
			if err != nil {
				return err
			}
			if from.IsZero() {
				from = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
			}
			to, err := dateFlag(cmd, "to")
			if err != nil {
				return err
			}
			if to.IsZero() {
				to = today
			}

			sum, err := svc.RealizedSummary(ctx, accountID, app.userID(cmd), from, to)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sum)
			}
			renderRealized(output, sum)
			return nil
		},
	}
	cmd.Flags().String("from", "", "closed on or after (default Jan 1)")
	cmd.Flags().String("to", "", "closed on or before (default today)")
	return cmd
}

func renderRealized(output *Output, sum *wheel.RealizedSummary) {
	output.Bold("Realized %s to %s", FormatDate(sum.From), FormatDate(sum.To))
	output.Printf("  Closed Legs:     %d\n", sum.ClosedCount)
	output.Printf("  Total:           %s\n", output.FormatPnL(sum.Total))
	output.Printf("  Campaign Costs:  %s\n", FormatUSD(sum.CampaignCosts))
	output.Printf("  Of Capital:      %s of %s\n", output.FormatPercent(sum.PctOfCapital), FormatUSD(sum.CapitalReference))
	output.Printf("  Annualized:      %s\n", output.FormatPercent(sum.AnnualizedPct))
	if len(sum.IncompleteCampaign) > 0 {
		output.Warning("  Incomplete campaign history: %v", sum.IncompleteCampaign)
	}
	if sum.ClosedCount == 0 {
		return
	}

	output.Println()
	table := NewTable(output, "Strategy", "Legs", "Realized")
	for _, strategy := range sortedKeys(sum.ByStrategy) {
		table.AddRow(strategy, strconv.Itoa(sum.ClosedByStrategy[strategy]), output.FormatPnL(sum.ByStrategy[strategy]))
	}
	table.Render()

	output.Println()
	table = NewTable(output, "Ticker", "Realized")
	for _, ticker := range sortedKeys(sum.ByTicker) {
		table.AddRow(ticker, output.FormatPnL(sum.ByTicker[ticker]))
	}
	table.Render()
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newSharesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shares <ticker>",
		Short: "Shares free to write covered calls against",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel, svc, accountID, err := app.scoped(cmd, "shares")
			if err != nil {
				return err
			}
			defer cancel()

			free, err := svc.GetStockQuantity(ctx, accountID, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"ticker": normalizeArg(args[0]), "free_shares": free})
			}
			output.Printf("%s: %s free shares (%d contracts)\n", normalizeArg(args[0]), FormatQuantity(free), free/models.ContractMultiplier)
			return nil
		},
	}
}
