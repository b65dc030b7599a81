package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rahul/navcheck/internal/observability"
	"github.com/rahul/navcheck/internal/scenario"
	"github.com/rahul/navcheck/internal/store"
	"github.com/rahul/navcheck/pkg/config"
	"github.com/spf13/cobra"
)

// runFlags override configuration for a single invocation.
type runFlags struct {
	baseURL     string
	driver      string
	headed      bool
	timeout     time.Duration
	artifactDir string
	pause       bool
	notify      bool
	noHistory   bool
	events      bool
}

var runOpts runFlags

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd, &runOpts)
	runCmd.Flags().BoolVar(&runOpts.pause, "pause", false, "Wait for Enter after every step (requires a terminal, implies --headed)")
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Override the scenario base URL")
	cmd.Flags().StringVar(&f.driver, "driver", "", "Browser driver (chromedp|playwright)")
	cmd.Flags().BoolVar(&f.headed, "headed", false, "Show the browser window")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-step timeout (default from config, 30s)")
	cmd.Flags().StringVar(&f.artifactDir, "artifacts", "", "Directory for relative screenshot paths")
	cmd.Flags().BoolVar(&f.notify, "notify", false, "Send run summaries to enabled gateways")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record runs in the history database")
	cmd.Flags().BoolVar(&f.events, "events", false, "Print JSON events to stderr")
}

var runCmd = &cobra.Command{
	Use:   "run [scenario.yaml ...]",
	Short: "Run scenarios once",
	Long:  "Runs each scenario file in order with a fresh browser. Without files the built-in docs scenario runs. Exits 1 if any run fails.",
	RunE:  runRun,
}

// apply folds flag overrides into cfg.
func (f *runFlags) apply(cfg *config.Config) {
	if f.driver != "" {
		cfg.Browser.Driver = f.driver
	}
	// --pause implies a headed browser.
	if f.headed || f.pause {
		cfg.Browser.Headless = false
	}
	if f.timeout > 0 {
		cfg.Browser.StepTimeout = config.Duration(f.timeout)
	}
	if f.artifactDir != "" {
		cfg.App.ArtifactDir = f.artifactDir
	}
}

// runner builds a Runner for one configuration. History is attached
// separately so it can outlive the runner.
func (f *runFlags) runner(cmd *cobra.Command, cfg *config.Config) (*Runner, error) {
	f.apply(cfg)
	r, err := NewRunner(cfg, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	r.Resolve.BaseURL = f.baseURL
	if f.events {
		r.Logger.SetOutput(cmd.ErrOrStderr())
	} else {
		r.Logger.SetOutput(nil)
	}
	if f.notify {
		r.Notify = notifyTargets(cfg)
		if len(r.Notify) == 0 {
			log.Println("--notify given but no gateway is enabled")
		}
	}
	return r, nil
}

// openHistory returns nil when history is disabled or cannot be opened.
func (f *runFlags) openHistory(cfg *config.Config) *store.HistoryStore {
	if f.noHistory || cfg.Memory.Path == "" {
		return nil
	}
	h, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		log.Printf("history disabled: %v", err)
		return nil
	}
	return h
}

// setup builds the runner and returns a cleanup func for the resources it
// opened.
func (f *runFlags) setup(cmd *cobra.Command, cfg *config.Config) (*Runner, func(), error) {
	r, err := f.runner(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	if h := f.openHistory(cfg); h != nil {
		r.History = h
		cleanup = func() { h.Close() }
	}
	return r, cleanup, nil
}

func loadScenarios(args []string) ([]*scenario.Scenario, error) {
	if len(args) == 0 {
		sc, err := scenario.Builtin("docs")
		if err != nil {
			return nil, err
		}
		return []*scenario.Scenario{sc}, nil
	}
	var out []*scenario.Scenario
	for _, path := range args {
		sc, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	scenarios, err := loadScenarios(args)
	if err != nil {
		return err
	}

	r, cleanup, err := runOpts.setup(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if runOpts.pause {
		if !observability.IsTerminal(os.Stdin) {
			return fmt.Errorf("--pause needs an interactive terminal on stdin")
		}
		r.Observers = append(r.Observers, observability.PauseObserver(os.Stdin, cmd.ErrOrStderr()))
	}

	return runAll(cmd.Context(), r, scenarios)
}

// runAll runs every scenario even after a failure and reports whether all
// passed.
func runAll(ctx context.Context, r *Runner, scenarios []*scenario.Scenario) error {
	failed := 0
	for _, sc := range scenarios {
		if r.Out != nil {
			fmt.Fprintf(r.Out, "RUN  %s\n", sc.Name)
		}
		run, err := r.RunScenario(ctx, sc)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		if !run.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios: %w", failed, len(scenarios), errRunFailed)
	}
	return nil
}
