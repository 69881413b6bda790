package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/spice-assign/internal/cli"
	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/config"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	version   = "dev"
	appConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:   "spice-assign",
		Short: "🌶️  Assign categories and budgets to your transactions",
		Long: `spice-assign: label every transaction in your ledger with a category or budget,
using an LLM that is rate limited, retried and guarded by a circuit breaker.

The spice must flow!`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/spice/assign.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("db", "", "ledger database path")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))

	// Add commands
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(labelsCmd(model.KindCategory))
	rootCmd.AddCommand(labelsCmd(model.KindBudget))
	rootCmd.AddCommand(versionCmd())
}

func main() {
	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := interrupts.HandleInterrupts(context.Background())

	err := rootCmd.ExecuteContext(ctx)
	stop() // Always cleanup

	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// Set up config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		viper.AddConfigPath(filepath.Join(home, ".config", "spice"))
		viper.AddConfigPath(".")
		viper.SetConfigName("assign")
		viper.SetConfigType("yaml")
	}

	// Environment variables: SPICE_LLM_BATCH_SIZE overrides llm.batch_size.
	viper.SetEnvPrefix("SPICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return common.NewUserError("Your configuration is invalid: "+err.Error(), err)
	}

	if err := common.SetupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.Debug("Configuration loaded",
		"config_file", viper.ConfigFileUsed(),
		"provider", cfg.LLM.Provider,
		"database", cfg.DatabasePath)

	appConfig = cfg
	return nil
}

// formatError renders err for the terminal. Errors carrying a user message
// print only that message; the rest goes to the debug log.
func formatError(err error) string {
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		slog.Debug("Command failed", "error", err)
		return cli.FormatError(userErr.UserMessage)
	}
	return cli.FormatError(err.Error())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spice-assign %s\n", version)
		},
	}
}
