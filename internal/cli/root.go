package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ohlcv-analyst/internal/agents"
	"ohlcv-analyst/internal/config"
	"ohlcv-analyst/internal/logging"
	"ohlcv-analyst/internal/query"
	"ohlcv-analyst/internal/resilience"
	"ohlcv-analyst/internal/security"
	"ohlcv-analyst/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-19"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", security.MaskSecrets(err.Error()))
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{
		Config: config.Default(),
		Logger: zerolog.Nop(),
	}

	rootCmd := &cobra.Command{
		Use:   "analyst",
		Short: "OHLCV Analyst - ask questions about a daily price history",
		Long: `OHLCV Analyst answers natural-language questions about one instrument's
daily price history. A language model picks analytic tools, the tools run
against the local dataset, and the model writes the answer from the results.

Use 'analyst ask "<question>"' for a one-off question or 'analyst serve'
to expose the chat endpoint for a front end.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			if app.ConfigDir == "" {
				app.ConfigDir = config.DefaultConfigDir()
			}

			cfg, err := config.Load(app.ConfigDir)
			if err != nil {
				return err
			}
			app.Config = cfg

			lc := cfg.LogConfig()
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				lc.Level = "debug"
			}
			app.Logger = logging.NewLoggerWithConfig(lc)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/ohlcv-analyst)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAskCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newToolsCmd(app))
	rootCmd.AddCommand(newDatasetCmd(app))

	return rootCmd
}

// loadDataset opens the configured dataset.
func (a *App) loadDataset(ctx context.Context) (*store.Dataset, error) {
	return store.Open(ctx, a.Config.Dataset, a.Logger)
}

// newClient builds the reasoning client with its circuit breaker.
func (a *App) newClient() *agents.OpenAIClient {
	cfg := a.Config.Agents
	var breaker *resilience.CircuitBreaker
	if cfg.BreakerFailures > 0 {
		bc := resilience.DefaultCircuitBreakerConfig()
		bc.FailureThreshold = cfg.BreakerFailures
		if cfg.BreakerCooldown > 0 {
			bc.Timeout = cfg.BreakerCooldown
		}
		breaker = resilience.NewCircuitBreaker("reasoning", bc)
	}
	return agents.NewOpenAIClient(agents.ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Breaker: breaker,
	})
}

// newRegistry builds the tool registry; engine may be nil when only describing tools.
func (a *App) newRegistry(engine *query.Engine, client *agents.OpenAIClient) *agents.Registry {
	var knowledge agents.Knowledge
	if a.Config.Agents.SearchContext {
		knowledge = client
	}
	return agents.NewRegistry(engine, knowledge)
}

// newOrchestrator wires dataset, tools and reasoning client together.
func (a *App) newOrchestrator(ds *store.Dataset) (*agents.Orchestrator, *agents.OpenAIClient, error) {
	if a.Config.Agents.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key configured: set GROQ_API_KEY (or OPENAI_API_KEY) or agents.api_key in %s/config.toml", a.ConfigDir)
	}

	client := a.newClient()
	registry := a.newRegistry(query.NewEngine(ds), client)

	orchestrator := agents.NewOrchestrator(client, registry, agents.OrchestratorConfig{
		Attempts:       a.Config.Agents.Attempts(),
		CallTimeout:    a.Config.Agents.CallTimeout,
		RetryDelay:     a.Config.Agents.RetryDelay,
		DatasetSummary: datasetSummary(a.Config.Dataset.Symbol, ds),
	}, a.Logger)

	a.Logger.Debug().
		Str("model", client.Model()).
		Str("base_url", a.Config.Agents.BaseURL).
		Int("tools", len(registry.Describe())).
		Msg("Orchestrator initialized")
	return orchestrator, client, nil
}

func datasetSummary(symbol string, ds *store.Dataset) string {
	first, ok := ds.First()
	if !ok {
		return ""
	}
	last, _ := ds.Last()
	if symbol == "" {
		symbol = "instrument"
	}
	return fmt.Sprintf("%s daily bars from %s to %s (%d trading days)", symbol, first.Date(), last.Date(), ds.Len())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("OHLCV Analyst v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			redacted := *app.Config
			redacted.Agents.APIKey = security.MaskCredential(redacted.Agents.APIKey)
			if output.IsJSON() {
				return output.JSON(redacted)
			}
			showConfig(output, &redacted)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config.toml if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path, err := config.WriteTemplate(app.ConfigDir)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Configuration file: %s", path)
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Dataset")
	output.Printf("  Source:          %s\n", cfg.Dataset.Source)
	output.Printf("  CSV Path:        %s\n", cfg.Dataset.CSVPath)
	output.Printf("  SQLite Path:     %s\n", cfg.Dataset.SQLitePath)
	output.Printf("  Symbol:          %s\n", cfg.Dataset.Symbol)
	output.Println()

	output.Bold("Agents")
	output.Printf("  Model:           %s\n", cfg.Agents.Model)
	output.Printf("  Base URL:        %s\n", cfg.Agents.BaseURL)
	output.Printf("  API Key:         %s\n", cfg.Agents.APIKey)
	output.Printf("  Attempts:        %d\n", cfg.Agents.Attempts())
	output.Printf("  Call Timeout:    %s\n", cfg.Agents.CallTimeout)
	output.Printf("  Search Context:  %v\n", cfg.Agents.SearchContext)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Origins:         %v\n", cfg.Server.AllowedOrigins)
	output.Printf("  Rate Limit:      %.2f/s (burst %d)\n", cfg.Server.RateLimit, cfg.Server.RateBurst)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %v\n", cfg.Logging.File)
}
