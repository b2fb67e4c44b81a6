package main

import (
	"fmt"

	"github.com/manthysbr/partgraph/internal/config"
	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/services"
	"github.com/spf13/cobra"
)

var (
	askMessage  string
	askParallel bool
	askMemory   bool
)

// demoTurn seeds the one-shot memory so recall can be checked from the CLI.
var demoTurn = domain.Turn{Input: "Hello, my name is John Doe", Output: "Hello, John Doe"}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a single message and exit",
	Long: `Run one agent turn against the configured graph and print the answer.

With --memory the conversation starts from a seeded greeting turn, so
questions like "what is my name?" exercise chat history.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMessage, "message", "m", "", "message to send to the agent")
	askCmd.Flags().BoolVar(&askParallel, "parallel", false, "use the combined query tool")
	askCmd.Flags().BoolVar(&askMemory, "memory", false, "use a chat-history prompt seeded with a greeting")
	_ = askCmd.MarkFlagRequired("message")
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Agent.Mode = domain.ModeSequential
	if askParallel {
		cfg.Agent.Mode = domain.ModeParallel
	}
	cfg.Agent.Memory = askMemory

	a, err := buildApp(ctx, logger, cfg, false)
	if err != nil {
		return err
	}
	defer a.close(ctx, logger)

	var session *services.Session
	if a.memory {
		session = services.NewSession(domain.NewSessionID(), services.NewBufferMemory(demoTurn))
	}

	output, err := a.agent.RunTurn(ctx, askMessage, session)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
