package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/johnymontana/memory-graph-workshop/internal/agent"
	"github.com/johnymontana/memory-graph-workshop/internal/app"
)

var (
	chatThreadID string
	chatMemory   bool
	chatVerbose  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run one turn and print the agent's response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatThreadID, "thread", "", "continue an existing thread")
	chatCmd.Flags().BoolVar(&chatMemory, "memory", true, "apply and extract preferences")
	chatCmd.Flags().BoolVar(&chatVerbose, "verbose", false, "print turn details to stderr")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger, app.Options{Demo: demoMode})
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	result, err := a.Agent.Run(ctx, agent.TurnRequest{
		ThreadID:      chatThreadID,
		Message:       strings.Join(args, " "),
		MemoryEnabled: chatMemory,
	})
	if err != nil {
		return fmt.Errorf("running turn: %w", err)
	}

	fmt.Println(result.Response)

	if chatVerbose {
		fmt.Fprintf(os.Stderr, "\nthread: %s\n", result.ThreadID)
		fmt.Fprintf(os.Stderr, "iterations: %d, retries: %d, steps: %d\n",
			result.Iterations, result.Retries, len(result.Steps))
		if !result.Persisted {
			fmt.Fprintln(os.Stderr, "warning: turn was not persisted to memory")
		}
	}
	return nil
}
