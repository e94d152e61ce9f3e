// Package cli provides the command-line interface for the wheel ledger.
package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wheel-ledger/internal/config"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/quotes"
	"wheel-ledger/internal/store"
	"wheel-ledger/internal/wheel"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

const commandTimeout = 30 * time.Second

// App holds the application dependencies. The ledger is opened on first use
// so that commands like version never touch the database.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Ledger  store.Ledger
	Service *wheel.Service
	Prices  *quotes.StaticProvider
	Quotes  quotes.Provider

	clock func() time.Time
}

// Close releases the ledger, if one was opened.
func (a *App) Close() error {
	if a.Ledger == nil {
		return nil
	}
	err := a.Ledger.Close()
	a.Ledger, a.Service = nil, nil
	return err
}

func (a *App) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return time.Now().UTC()
}

// Execute builds the command tree, runs it with args and releases the ledger.
func Execute(ctx context.Context, args []string) error {
	app := &App{}
	root := NewRootCmd(app)
	root.SetArgs(args)
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to close ledger")
		}
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wheel",
		Short: "Wheel Ledger - options wheel campaign tracker",
		Long: `Wheel Ledger records cash-secured puts, assignments, covered calls and
the shares behind them, links every leg into its campaign and reports net
cost basis, breakevens and realized P&L per position.

Use 'wheel <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/wheel-ledger)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Int64("account", 0, "account id (default: the user's first account)")
	rootCmd.PersistentFlags().Int64("user", 0, "user id (default: engine.default_user_id)")

	addCoreCommands(rootCmd, app)
	addAccountCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addIncomeCommands(rootCmd, app)
	addPositionCommands(rootCmd, app)

	return rootCmd
}

// init loads the configuration and builds the logger.
func (a *App) init(cmd *cobra.Command) error {
	if a.Config == nil {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		a.Config = cfg
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		a.Config.Log.Level = "debug"
		a.Config.Log.Console = true
	}
	a.Logger = logging.NewLoggerWithConfig(a.Config.Logging())
	return nil
}

// service opens the ledger and wires the service and quote providers.
func (a *App) service(ctx context.Context) (*wheel.Service, error) {
	if a.Service != nil {
		return a.Service, nil
	}

	ledger, err := store.Open(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.Ledger = ledger
	a.Service = wheel.NewService(ledger, a.Logger,
		wheel.WithClock(a.now),
		wheel.WithMaxChainDepth(a.Config.Engine.MaxChainDepth),
		wheel.WithAlertDTE(a.Config.Engine.AlertDTEThreshold),
	)

	prices, skipped := quotes.ParsePrices(a.Config.Quotes.Prices)
	for _, ticker := range skipped {
		a.Logger.Warn().Str("ticker", ticker).Msg("Ignoring unparseable configured price")
	}
	a.Prices = quotes.NewStaticProvider(prices)
	a.Quotes = quotes.NewCachedProvider(a.Prices, a.Config.Quotes.CacheTTL, a.now, a.Logger)

	a.Logger.Debug().Str("driver", a.Config.Database.Driver).Msg("Ledger opened")
	return a.Service, nil
}

// commandContext returns a bounded context carrying the command logger.
func (a *App) commandContext(cmd *cobra.Command, operation string) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	return logging.WithLogger(ctx, logging.WithOperation(a.Logger, operation)), cancel
}

// userID returns the --user flag or the configured default.
func (a *App) userID(cmd *cobra.Command) int64 {
	if id, _ := cmd.Flags().GetInt64("user"); id > 0 {
		return id
	}
	return a.Config.Engine.DefaultUserID
}

// accountID resolves --account against the user. Without the flag the user's
// first account is used.
func (a *App) accountID(ctx context.Context, cmd *cobra.Command) (int64, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return 0, err
	}
	user := a.userID(cmd)

	if id, _ := cmd.Flags().GetInt64("account"); id > 0 {
		if _, err := svc.Account(ctx, id, user); err != nil {
			return 0, err
		}
		return id, nil
	}

	accounts, err := svc.Accounts(ctx, user)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("user %d has no accounts, run 'wheel account create <name>' first", user)
	}
	first := accounts[0]
	for _, acct := range accounts[1:] {
		if acct.ID < first.ID {
			first = acct
		}
	}
	return first.ID, nil
}

// scoped resolves the account and returns the service with the command
// context. The service tags its log lines with the account.
func (a *App) scoped(cmd *cobra.Command, operation string) (context.Context, context.CancelFunc, *wheel.Service, int64, error) {
	ctx, cancel := a.commandContext(cmd, operation)
	accountID, err := a.accountID(ctx, cmd)
	if err != nil {
		cancel()
		return nil, nil, nil, 0, err
	}
	return ctx, cancel, a.Service, accountID, nil
}

// output returns the command output honouring ui.color_enabled.
func (a *App) output(cmd *cobra.Command) *Output {
	out := NewOutput(cmd)
	if a.Config != nil && !a.Config.UI.ColorEnabled {
		out.DisableColor()
	}
	return out
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Wheel Ledger v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				cfg := *app.Config
				if cfg.Database.DSN != "" {
					cfg.Database.DSN = redactDSN(cfg.Database.DSN)
				}
				return output.JSON(cfg)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			path := config.ConfigPath(app.Config.Dir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if _, skipped := quotes.ParsePrices(app.Config.Quotes.Prices); len(skipped) > 0 {
				output.Warning("Unparseable prices ignored: %v", skipped)
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Database")
	output.Printf("  Driver:          %s\n", cfg.Database.Driver)
	if cfg.Database.Driver == config.DriverPostgres {
		output.Printf("  DSN:             %s\n", redactDSN(cfg.Database.DSN))
	} else {
		output.Printf("  Path:            %s\n", cfg.Database.Path)
	}
	output.Println()

	output.Bold("Engine")
	output.Printf("  Max Chain Depth: %d\n", cfg.Engine.MaxChainDepth)
	output.Printf("  Alert DTE:       %d\n", cfg.Engine.AlertDTEThreshold)
	output.Printf("  Default User:    %d\n", cfg.Engine.DefaultUserID)
	output.Println()

	output.Bold("Quotes")
	output.Printf("  Cache TTL:       %s\n", cfg.Quotes.CacheTTL)
	output.Printf("  Static Prices:   %d\n", len(cfg.Quotes.Prices))
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Log.Level)
	output.Printf("  Console:         %v\n", cfg.Log.Console)
	output.Printf("  File:            %v\n", cfg.Log.File)
	if cfg.Log.File {
		output.Printf("  File Path:       %s\n", cfg.Log.FilePath)
	}
}

// redactDSN hides the password of a postgres URL. Keyword/value DSNs are
// hidden entirely.
func redactDSN(dsn string) string {
	if dsn == "" {
		return "(unset)"
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "(hidden)"
	}
	return u.Redacted()
}
