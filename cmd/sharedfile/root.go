package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jpl-au/sharedfile"
)

type globalFlags struct {
	strategy string
	readOnly bool
	debug    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "sharedfile",
		Short: "Inspect and edit files shared between processes",
		Long: `sharedfile reads and writes small line-oriented files under the same
goroutine + process lock that applications sharing them use.

Examples:
  sharedfile cat ~/.config/app/trust.jsonl
  sharedfile set ~/.config/app/settings.properties theme dark
  sharedfile hold ~/.config/app/settings.properties --for 30s`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.strategy, "strategy", "auto", "Process lock: auto, advisory or sentinel")
	rootCmd.PersistentFlags().BoolVar(&flags.readOnly, "read-only", false, "Open files read-only")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "v", false, "Log lock diagnostics")

	rootCmd.AddCommand(
		newCatCmd(flags),
		newAppendCmd(flags),
		newGetCmd(flags),
		newSetCmd(flags),
		newHoldCmd(flags),
		newTryLockCmd(flags),
	)
	return rootCmd
}

func parseStrategy(s string) (sharedfile.Strategy, error) {
	switch s {
	case "", "auto":
		return sharedfile.StrategyAuto, nil
	case "advisory":
		return sharedfile.StrategyAdvisory, nil
	case "sentinel":
		return sharedfile.StrategySentinel, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want auto, advisory or sentinel)", s)
	}
}

// open resolves path through a registry built from the global flags.
func (g *globalFlags) open(path string) (*sharedfile.SharedFile, error) {
	strategy, err := parseStrategy(g.strategy)
	if err != nil {
		return nil, err
	}
	level := log.WarnLevel
	if g.debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "sharedfile",
		Level:  level,
	})
	reg := sharedfile.NewRegistry(sharedfile.Options{
		Strategy: strategy,
		ReadOnly: g.readOnly,
		Logger:   logger,
	})
	return reg.Get(path)
}
