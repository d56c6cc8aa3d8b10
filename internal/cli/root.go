package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/engine"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/scenario"
	"ifrs9-ecl/internal/store"
	"ifrs9-ecl/pkg/utils"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	ConfigDir string

	configFile string
	store      store.RunStore
}

// NewRootCmd creates the root command for the CLI. A nil cfg is loaded
// from the --config location before the first command runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "ecl",
		Short: "IFRS 9 expected credit loss calculator",
		Long: `ecl calculates IFRS 9 expected credit losses for a loan portfolio.

It stages each exposure, estimates PD, LGD and EAD, and produces 12-month
or lifetime ECL under one or more probability-weighted macroeconomic
scenarios. Runs can be archived to a local SQLite database.

Use 'ecl <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil || cmd.Flags().Changed("config") {
				path, _ := cmd.Flags().GetString("config")
				if err := app.loadConfig(path); err != nil {
					return err
				}
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory or file (default: ~/.config/ifrs9-ecl)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addCalculationCommands(rootCmd, app)
	addScenarioCommands(rootCmd, app)
	addRunCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the CLI with configuration loaded from the --config location.
func Execute() error {
	return NewRootCmd(nil, logging.NewLogger()).Execute()
}

// loadConfig loads the configuration from a directory or a single file and
// rebuilds the logger from it.
func (a *App) loadConfig(path string) error {
	var (
		cfg *config.Config
		err error
	)
	file := config.ConfigPath(path)
	if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
		file = path
		cfg, err = config.LoadFile(path)
	} else {
		a.ConfigDir = path
		cfg, err = config.Load(path)
	}
	if err != nil {
		return err
	}

	a.Config = cfg
	a.configFile = file
	a.Logger = logging.NewLoggerWithConfig(cfg.Log)
	a.Logger.Debug().Str("config", file).Msg("Configuration loaded")
	return nil
}

// Engine returns a calculation engine for the current configuration.
func (a *App) Engine() *engine.Engine {
	return engine.New(a.Config, a.Logger)
}

// Scenarios builds the scenario manager. Scenarios come from file, the
// configured scenario file, or the built-in base, optimistic and
// pessimistic set, in that order.
func (a *App) Scenarios(file string) (*scenario.Manager, error) {
	m := scenario.NewManager(a.Config.Macro, a.Logger)
	if file == "" {
		file = a.Config.Scenarios.File
	}

	if file != "" {
		if err := m.LoadFile(file); err != nil {
			return nil, err
		}
	} else if err := m.CreateDefaultScenarios(); err != nil {
		return nil, err
	}

	if !m.ValidateProbabilities() {
		if !a.Config.Scenarios.Normalize {
			a.Logger.Warn().
				Float64("total_probability", m.TotalProbability()).
				Msg("Scenario probabilities do not sum to 1")
		} else {
			m.NormalizeProbabilities()
		}
	}
	return m, nil
}

// RunStore opens the run archive on first use.
func (a *App) RunStore() (store.RunStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Store.Path, a.Logger)
	if err != nil {
		return nil, err
	}
	a.store = s
	a.Logger.Debug().Str("path", a.Config.Store.Path).Msg("Run store opened")
	return s, nil
}

// Close releases the run archive if it was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *App) output(cmd *cobra.Command) *Output {
	output := NewOutput(cmd)
	output.SetCurrencySymbol(a.Config.Output.CurrencySymbol)
	output.SetDecimalPlaces(a.Config.Output.DecimalPlaces)
	return output
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
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("ecl v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the calculator configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := app.configFile
			if path == "" {
				path = config.ConfigPath(app.ConfigDir)
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "template",
		Short: "Print the annotated configuration template",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.Template())
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("ECL")
	output.Printf("  Method:          %s\n", cfg.ECL.CalculationMethod)
	output.Printf("  Discount Rate:   %s\n", utils.FormatPercent(cfg.ECL.DiscountRate))
	output.Printf("  Apply Staging:   %v\n", cfg.ECL.ApplyStaging)
	output.Printf("  Workers:         %d\n", cfg.ECL.Workers)
	output.Printf("  SICR:            %s\n", sicrTriggers(cfg.ECL.SICRThresholds))
	output.Println()

	output.Bold("Staging")
	output.Printf("  DPD Threshold:   %d\n", cfg.Staging.DaysPastDueThreshold)
	output.Printf("  DPD Default:     %d\n", cfg.Staging.DaysPastDueDefault)
	output.Printf("  Cure Period:     %d months\n", cfg.Staging.CurePeriod)
	output.Printf("  Past Due Events: %d\n", cfg.Staging.MultiplePastDueEvents)
	output.Println()

	output.Bold("Risk Parameters")
	output.Printf("  PD Bounds:       %s - %s\n", utils.FormatPercent(cfg.PD.Floor), utils.FormatPercent(cfg.PD.Ceiling))
	output.Printf("  LGD Unsecured:   %s\n", utils.FormatPercent(cfg.LGD.UnsecuredBase))
	output.Printf("  LGD Downturn:    x%.2f\n", cfg.LGD.DownturnMultiplier)
	output.Printf("  CCF:             %s\n", utils.FormatPercent(cfg.EAD.CCF))
	output.Printf("  Macro Overlay:   %v\n", cfg.Macro.ApplyOverlay)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Archive Runs:    %v\n", cfg.Store.Enabled)
	output.Printf("  Database:        %s\n", cfg.Store.Path)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)
	if cfg.Scenarios.File != "" {
		output.Printf("  Scenarios:       %s\n", cfg.Scenarios.File)
	}
}
