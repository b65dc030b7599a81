package cli

import (
	"errors"
	"fmt"

	"github.com/rahul/navcheck/internal/scenario"
	"github.com/spf13/cobra"
)

var validateBaseURL string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateBaseURL, "base-url", "", "Base URL used to resolve relative goto steps")
}

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml> [...]",
	Short: "Check scenario files without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var errs []error
	for _, path := range args {
		sc, err := scenario.Load(path)
		if err == nil {
			_, err = sc.VerifySteps(scenario.Resolve{BaseURL: validateBaseURL})
		}
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(out, "✓ %s: %s (%d steps)\n", path, sc.Name, len(sc.Steps))
	}
	return errors.Join(errs...)
}
