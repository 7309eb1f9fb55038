package cmd

import (
	"fmt"
	"os"

	"sync-bridge/core/config"
	"sync-bridge/core/engine"
	"sync-bridge/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sync-bridge",
	Short: "Sync Bridge Service",
	Long: `Sync Bridge moves records from external sources (calendars, wearables,
banking aggregators) into a destination store, keeping both in agreement over
repeated runs without duplicates or lost updates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// integrationBuilders holds the integrations the process entry point wants
// registered. Adapter packages call AddIntegration from main before Execute;
// nothing registers itself through import side effects.
var integrationBuilders []func(cfg *config.Config) (engine.Integration, error)

// AddIntegration registers a builder that produces one integration from the
// loaded configuration.
func AddIntegration(build func(cfg *config.Config) (engine.Integration, error)) {
	integrationBuilders = append(integrationBuilders, build)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Use the application's standard logger for error reporting.
		// Console format matches user expectations for a CLI tool, and the
		// "debug" level configuration gets ISO8601 timestamps instead of Epoch.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Absolute fallback if logger creation fails (rare)
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
