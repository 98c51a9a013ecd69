// Package cmd provides the newsagent CLI.
//
// Commands:
//   - serve: HTTP API server over the memory graph and agent
//   - chat: one-shot turn from the command line
//   - version: build information
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/johnymontana/memory-graph-workshop/internal/config"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
)

var (
	configPath string
	demoMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "newsagent",
	Short: "Conversational news agent with a graph-backed memory",
	Long: `newsagent answers news questions through an LLM agent whose episodic,
procedural, and declarative memory live in a property graph.

Run "newsagent serve" for the HTTP API or "newsagent chat" for a
one-shot turn. Pass --demo to run without PostgreSQL.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "run without PostgreSQL, using in-memory stores")
}

// loadConfig loads configuration and builds the logger from it.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSON: cfg.Log.JSON})
	return cfg, logger, nil
}
