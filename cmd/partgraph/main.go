// Command partgraph answers appliance part questions with a ReAct agent over
// the parts knowledge graph.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "partgraph",
	Short: "ReAct agent over the appliance parts graph",
	Long: `partgraph answers questions about appliance parts and models by
reasoning over a Neo4j knowledge graph.

Available commands:
  serve          - Run the HTTP agent server
  ask            - Answer a single message and exit
  encrypt-secret - Encrypt a value for use in the config file`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "partgraph.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, askCmd, encryptSecretCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
