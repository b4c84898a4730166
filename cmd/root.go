package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plura-ai/onboard/internal/config"
	"github.com/plura-ai/onboard/internal/convo"
	"github.com/plura-ai/onboard/internal/gateway"
	"github.com/plura-ai/onboard/internal/logger"
	"github.com/plura-ai/onboard/internal/onboard"
	"github.com/plura-ai/onboard/internal/persist"
)

var (
	logLevel   string
	portFlag   int
	provider   string
	modelFlag  string
	dbPathFlag string
)

var rootCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Plura onboarding assistant",
	Long: `onboard runs the Plura conversational onboarding assistant.

Modes:
  onboard        Run the web server (default)
  onboard serve  Run the web server
  onboard chat   Talk to the assistant in the terminal`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Run: runServe,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "",
		"Model provider: rules, openai, anthropic (overrides config)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "",
		"Model name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "",
		"SQLite database path (overrides config)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0,
		"Web server listen port (overrides config)")
}

// loadConfig merges the config file with command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if provider != "" {
		cfg.AI.Provider = provider
		cfg.ApplyEnv()
	}
	if modelFlag != "" {
		cfg.AI.Model = modelFlag
	}
	if dbPathFlag != "" {
		cfg.Database = dbPathFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	return cfg, nil
}

// buildAssistant wires the full stack: persistence, sessions with
// durable transcripts, the model gateway, and the orchestrator.
func buildAssistant(cfg *config.Config) (*onboard.Assistant, *persist.Store, error) {
	store, err := persist.NewStore(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	sessions := convo.NewManager()
	sessions.SetCommitHookFactory(func(sessionID string) convo.CommitHook {
		return func(turns []convo.Turn) error {
			return store.SaveTurns(sessionID, turns)
		}
	})
	sessions.SetLoader(store.LoadTurns)

	prov, err := gateway.NewProvider(cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("[Onboard] Using %s provider", prov.Name())

	assistant := onboard.NewAssistant(sessions, prov, onboard.NewDirectory(store), store)
	return assistant, store, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
