// Command nimmem runs the layered-memory chat service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/logging"
)

// Global flags.
var (
	configPath string
	logLevel   string
)

// app is populated by the root command before any subcommand runs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "nimmem",
		Short: "Conversational agent with layered memory",
		Long: `nimmem answers chat turns with short-term, long-term semantic and
user-fact memory fused into the prompt. Every memory backend is optional;
when none is reachable the agent runs without memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newWorkerCmd(a))
	root.AddCommand(newAskCmd(a))
	root.AddCommand(newFactsCmd(a))
	root.AddCommand(newHistoryCmd(a))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
