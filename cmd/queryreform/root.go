package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/query-reformulator/internal/config"
	"github.com/kirillkom/query-reformulator/internal/observability/logging"
)

const serviceName = "queryreform"

type globalOptions struct {
	promptBank string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "queryreform",
		Short: "LLM query reformulation toolkit",
		Long: `queryreform rewrites search queries with LLM-based reformulation methods.

Process settings (LLM endpoint, search backend, stores) come from the
environment, the same variables the api and worker binaries read.

Example usage:
  queryreform methods
  queryreform prompts list
  queryreform run --method genqr --queries topics.tsv --output out.tsv
  queryreform mcp`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.promptBank, "prompt-bank", "", "prompt bank YAML (default: bundled catalog or PROMPT_BANK_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(opts),
		newMethodsCmd(),
		newPromptsCmd(opts),
		newMCPCmd(opts),
		newIndexCmd(opts),
		newDataToTSVCmd(opts),
		newScriptGenCmd(),
	)
	return root
}

// loadConfig reads the environment and applies the persistent flag
// overrides.
func (o *globalOptions) loadConfig() config.Config {
	cfg := config.Load()
	if o.promptBank != "" {
		cfg.PromptBankPath = o.promptBank
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg
}

// newLogger writes to stderr; stdout carries command output and the MCP
// stdio protocol.
func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}
