// Package cmd holds the homenotes command line.
package cmd

import (
	"fmt"
	"os"

	"homenotes/config"

	"github.com/rohanthewiz/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "homenotes",
	Short: "Household notes, shopping lists and meal plans that sync across devices",
	Long: `homenotes keeps notes, categories and shopping lists in a local cache and
reconciles them with a shared remote store. Run "serve" for the device app and
"relay" to host a shared store for other devices.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads the config and sets the log level from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger.SetLogLevel(level)
	return cfg, nil
}
