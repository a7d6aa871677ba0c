// Package cli provides the command-line interface for the chart engine.
package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"candlelens/internal/analysis/scoring"
	"candlelens/internal/config"
	"candlelens/internal/datasource"
	"candlelens/internal/factors"
	"candlelens/internal/logging"
	"candlelens/internal/respcache"
	"candlelens/internal/session"
	"candlelens/internal/store"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Cache   respcache.Cache
	Client  *datasource.Client
	Factors *factors.Cache
	Model   *scoring.Model
	Journal store.ScoreJournal
}

// NewRootCmd creates the root command for the CLI. Dependencies are built
// from the configuration before any subcommand runs.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{Logger: zerolog.Nop()})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "candlelens",
		Short: "Candlestick charts with pattern boxes and factor scoring",
		Long: `candlelens loads daily price history from a chart data service, draws
candlestick charts with pattern boxes and overlays, and scores detected
patterns against market-breadth factors.

Use 'candlelens <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.init(cmd); err != nil {
				return errors.Join(err, app.Close())
			}
			return nil
		},
		// Generated help and completion commands are not wrapped by closeAfterRun.
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/candlelens)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addChartCommands(rootCmd, app)
	closeAfterRun(rootCmd, app)

	return rootCmd
}

// closeAfterRun releases the app after every command body, including failed
// ones, which PersistentPostRunE skips.
func closeAfterRun(cmd *cobra.Command, app *App) {
	for _, c := range cmd.Commands() {
		closeAfterRun(c, app)
	}
	switch {
	case cmd.RunE != nil:
		run := cmd.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			return errors.Join(err, app.Close())
		}
	case cmd.Run != nil:
		run := cmd.Run
		cmd.Run = nil
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			run(cmd, args)
			return app.Close()
		}
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (app *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	app.Config = cfg

	logCfg := logging.LogConfig{
		Level:      cfg.Log.Level,
		Console:    cfg.Log.Console,
		File:       cfg.Log.File,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	app.Logger = logging.NewLoggerWithConfig(logCfg)

	cache, err := respcache.New(cfg.Cache, app.Logger)
	if err != nil {
		return err
	}
	app.Cache = cache
	app.Client = datasource.NewClient(cfg.DataSource, cache, cfg.Cache.TTL, app.Logger)
	app.Factors = factors.NewCache(app.Client, app.Logger)
	app.Model = scoring.NewModel(scoring.ParamsFromConfig(cfg.Scoring))

	journal, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to open score journal, scores will not be recorded")
	} else {
		app.Journal = journal
		app.Logger.Debug().Str("path", cfg.Store.Path).Msg("Score journal opened")
	}
	return nil
}

// Close releases the cache and journal. It is safe to call more than once.
func (app *App) Close() error {
	var errs []error
	if app.Cache != nil {
		errs = append(errs, app.Cache.Close())
		app.Cache = nil
	}
	if app.Journal != nil {
		errs = append(errs, app.Journal.Close())
		app.Journal = nil
	}
	return errors.Join(errs...)
}

// NewSession creates a chart session wired to the app dependencies.
func (app *App) NewSession() *session.Session {
	opts := session.Options{
		Source:  app.Client,
		Factors: app.Factors,
		Model:   app.Model,
		Chart:   app.Config.Chart,
		Logger:  app.Logger,
	}
	if app.Journal != nil {
		opts.Journal = app.Journal
	}
	return session.New(opts)
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": config.Version})
			} else {
				output.Printf("candlelens v%s\n", config.Version)
			}
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
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir})
			} else {
				output.Println(app.Config.Dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
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
	output.Bold("Data Source")
	output.Printf("  Base URL:        %s\n", cfg.DataSource.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.DataSource.Timeout)
	output.Printf("  Min Periods:     %d\n", cfg.DataSource.MinPeriods)
	output.Println()

	output.Bold("Chart")
	output.Printf("  Days:            %d (%d-%d)\n", cfg.Chart.DefaultDays, cfg.Chart.MinDays, cfg.Chart.MaxDays)
	output.Printf("  Size:            %dx%d\n", cfg.Chart.Width, cfg.Chart.Height)
	var on []string
	for k, v := range cfg.Chart.Overlays {
		if v {
			on = append(on, k)
		}
	}
	sort.Strings(on)
	output.Printf("  Overlays:        %v\n", on)
	output.Println()

	output.Bold("Cache")
	output.Printf("  Backend:         %s\n", cfg.Cache.Backend)
	output.Printf("  TTL:             %s\n", cfg.Cache.TTL)
	if cfg.Cache.Backend == "redis" {
		output.Printf("  Redis:           %s/%d\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	}
	output.Println()

	output.Bold("Scoring")
	output.Printf("  Weights:         momentum %.2f, breadth %.2f, lowvol %.2f, eqbond %.2f\n",
		cfg.Scoring.MomentumWeight, cfg.Scoring.BreadthWeight, cfg.Scoring.LowVolWeight, cfg.Scoring.EqBondWeight)
	output.Printf("  Kappa:           trend %.2f, reversal %.2f\n", cfg.Scoring.TrendKappa, cfg.Scoring.ReversalKappa)
	output.Printf("  Probability:     %s\n", fmt.Sprintf("[%.2f, %.2f] spread %.2f", cfg.Scoring.MinProbability, cfg.Scoring.MaxProbability, cfg.Scoring.Spread))
	output.Println()

	output.Bold("Journal")
	output.Printf("  Path:            %s\n", cfg.Store.Path)
}
