// cmd/stasis/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sndnv/stasis-sub000/internal/app"
	"github.com/sndnv/stasis-sub000/internal/config"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "stasis",
		Short:         "Encrypted, deduplicated filesystem backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("STASIS_LOG_LEVEL"), "log level (debug, info, warn, error)")
	rootCmd.AddCommand(cmdRun, cmdBackup, cmdRecover, cmdSearch, cmdDefinitions, cmdEntries, cmdSchedules)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

// withApp loads the configuration, initializes the application and runs fn
// with a context cancelled on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, application *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return fn(ctx, application)
}
