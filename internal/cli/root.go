// Package cli implements the navcheck command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rahul/navcheck/pkg/config"
	"github.com/spf13/cobra"
)

// errRunFailed marks a completed run that did not pass. It maps to exit
// status 1 without an extra error line.
var errRunFailed = errors.New("verification failed")

var configPath string

var rootCmd = &cobra.Command{
	Use:           "navcheck",
	Short:         "Verify ordered browser navigation flows",
	Long:          "Runs scenarios of goto, click, title, heading and screenshot steps against a real browser and stops at the first failing step.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .json)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
