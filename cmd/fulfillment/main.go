package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/masakoww/jambistore-app-sub000/configs"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
)

var Version = "dev"

var (
	configDir string
	envName   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fulfillment",
		Short:         "Order fulfillment and settlement service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defEnv := os.Getenv("APP_ENV") // dev | staging | prod
	if defEnv == "" {
		defEnv = "dev"
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory holding base.yaml and <env>.yaml")
	rootCmd.PersistentFlags().StringVar(&envName, "env", defEnv, "environment overlay to load")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(notifyOnceCmd())
	rootCmd.AddCommand(productCmd())
	rootCmd.AddCommand(stockCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the layered config and initialises the global logger from it.
func loadConfig() (configs.Config, error) {
	cfg, err := configs.Load(configDir, envName)
	if err != nil {
		return cfg, err
	}
	logging.Init(logging.Options{
		Component: cfg.App.Name,
		FilePath:  cfg.App.LogFile,
		Level:     cfg.App.LogLevel,
	})
	return cfg, nil
}
