package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rahul/navcheck/internal/store"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRun   string
	historyPrune time.Duration
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the steps of one run")
	historyCmd.Flags().DurationVar(&historyPrune, "prune-before", 0, "Delete runs older than this age (e.g. 720h) and exit")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer h.Close()

	if historyPrune > 0 {
		n, err := h.PruneBefore(time.Now().Add(-historyPrune))
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d runs older than %s\n", n, historyPrune)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if historyRun != "" {
		steps, err := h.GetSteps(historyRun)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return fmt.Errorf("no steps recorded for run %q", historyRun)
		}
		fmt.Fprintln(w, "#\tKIND\tDETAIL\tSTATUS\tDURATION\tERROR")
		for _, s := range steps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", s.Index, s.Kind, s.Detail, s.Status, s.Duration, s.Error)
		}
		return nil
	}

	runs, err := h.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "STARTED\tSCENARIO\tSTATUS\tDURATION\tRUN\tFAILURE")
	for _, r := range runs {
		failure := ""
		if r.Status == store.StatusFailed {
			failure = fmt.Sprintf("step %d %s", r.FailedIndex, r.FailureKind)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Scenario, r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.ID, failure)
	}
	return nil
}
