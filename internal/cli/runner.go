package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/rahul/navcheck/internal/browser"
	"github.com/rahul/navcheck/internal/gateway"
	"github.com/rahul/navcheck/internal/governance"
	"github.com/rahul/navcheck/internal/metrics"
	"github.com/rahul/navcheck/internal/observability"
	"github.com/rahul/navcheck/internal/scenario"
	"github.com/rahul/navcheck/internal/store"
	"github.com/rahul/navcheck/internal/verify"
	"github.com/rahul/navcheck/pkg/config"
)

// Runner executes scenarios with one fresh browser per run and fans the
// result out to history, notifiers, metrics and the event log. Failures of
// those sinks are logged and never change a run's result.
type Runner struct {
	Browser   browser.Config
	Verify    verify.Config
	Resolve   scenario.Resolve
	Policy    governance.PolicyEngine
	Open      func(ctx context.Context, cfg browser.Config) (browser.Browser, error)
	History   *store.HistoryStore
	Notify    []gateway.Target
	Logger    *observability.Logger
	Metrics   *metrics.Collector
	Observers []verify.Observer
	Out       io.Writer
}

// NewRunner builds a Runner from configuration. History and notifiers are
// attached by the caller.
func NewRunner(cfg *config.Config, out io.Writer) (*Runner, error) {
	policy, err := newPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Browser: browser.Config{
			Driver:         cfg.Browser.Driver,
			Headless:       cfg.Browser.Headless,
			ExecPath:       cfg.Browser.ExecPath,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			SettleWindow:   cfg.Browser.SettleWindow.Std(),
		},
		Verify: verify.Config{
			StepTimeout:   cfg.Browser.StepTimeout.Std(),
			AssertTimeout: cfg.Browser.AssertTimeout.Std(),
		},
		Resolve: scenario.Resolve{ArtifactDir: cfg.App.ArtifactDir},
		Policy:  policy,
		Open:    browser.Open,
		Logger:  observability.NewLogger(cfg.App.LogDir),
		Out:     out,
	}, nil
}

func newPolicy(pc config.PolicyConfig) (*governance.DefaultPolicyEngine, error) {
	gov := governance.NewDefaultPolicyEngine()
	for _, s := range pc.AllowedSchemes {
		gov.AllowScheme(s)
	}
	for _, h := range pc.DenyHosts {
		gov.DenyHost(h)
	}
	for _, p := range pc.DenyPatterns {
		if err := gov.DenyURLs(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	return gov, nil
}

// RunScenario resolves sc, opens a browser and verifies it. The error is
// non-nil only when the run could not start.
func (r *Runner) RunScenario(ctx context.Context, sc *scenario.Scenario) (*verify.Run, error) {
	steps, err := sc.VerifySteps(r.Resolve)
	if err != nil {
		return nil, err
	}

	b, err := r.Open(ctx, r.Browser)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Printf("close browser: %v", err)
		}
	}()

	observers := []verify.Observer{
		r.Logger.StepObserver(sc.Name),
		observability.StatusObserver(sc.Name),
		r.printStep,
	}
	if r.Metrics != nil {
		observers = append(observers, r.Metrics.Observer())
	}
	observers = append(observers, r.Observers...)

	opts := []verify.Option{verify.WithObserver(observers...), verify.WithSnapshots(true)}
	if r.Policy != nil {
		opts = append(opts, verify.WithPolicy(r.Policy))
	}

	observability.SetStatus(observability.StateRunning, sc.Name)
	r.Logger.LogRunStart(sc.Name, len(steps))
	run := verify.New(r.Verify, opts...).Run(ctx, b, steps)

	r.finish(sc, run)
	return run, nil
}

func (r *Runner) finish(sc *scenario.Scenario, run *verify.Run) {
	observability.SetLastResult(sc.Name, run)
	r.Logger.LogRunResult(sc.Name, run)
	r.Logger.LogSnapshot(run.ID, run.Snapshot)
	if r.Metrics != nil {
		r.Metrics.ObserveRun(sc.Name, run)
	}

	if r.History != nil {
		meta := store.RunMeta{Scenario: sc.Name, BaseURL: r.baseURL(sc), Driver: r.Browser.Driver}
		if err := r.History.SaveRun(meta, run); err != nil {
			log.Printf("save run %s: %v", run.ID, err)
		}
	}

	if len(r.Notify) > 0 {
		names := make([]string, len(r.Notify))
		for i, t := range r.Notify {
			names[i] = t.Name
		}
		err := gateway.Broadcast(r.Notify, gateway.FormatSummary(sc.Name, run))
		r.Logger.LogNotify(run.ID, strings.Join(names, ","), err)
		if err != nil {
			log.Printf("notify: %v", err)
		}
	}

	r.printResult(sc.Name, run)
}

func (r *Runner) baseURL(sc *scenario.Scenario) string {
	if r.Resolve.BaseURL != "" {
		return r.Resolve.BaseURL
	}
	return sc.BaseURL
}

func (r *Runner) printStep(_ context.Context, rec verify.StepRecord) {
	if r.Out == nil {
		return
	}
	mark := "✓"
	if rec.Err != nil {
		mark = "✗"
	}
	fmt.Fprintf(r.Out, "  %s %d %s (%s)\n", mark, rec.Index, rec.Step, rec.Duration.Round(time.Millisecond))
}

func (r *Runner) printResult(name string, run *verify.Run) {
	if r.Out == nil {
		return
	}
	if run.Passed() {
		fmt.Fprintf(r.Out, "PASS %s (%d steps, %s) run %s\n",
			name, len(run.Records), run.Duration().Round(time.Millisecond), run.ID)
		return
	}
	fmt.Fprintf(r.Out, "FAIL %s: %v\n", name, run.Err())
	if run.Snapshot != nil {
		fmt.Fprintf(r.Out, "\n%s\n", run.Snapshot)
	}
}

// notifyTargets opens the enabled gateways. A gateway that fails to start
// is logged and skipped.
func notifyTargets(cfg *config.Config) []gateway.Target {
	var targets []gateway.Target
	if tg, ok := cfg.GetTelegramConfig(); ok {
		m, err := gateway.NewTelegramGateway(tg.Token)
		if err != nil {
			log.Printf("telegram gateway: %v", err)
		} else {
			targets = append(targets, gateway.Target{Name: "telegram", ChatID: tg.ChatID, Messenger: m})
		}
	}
	if dc, ok := cfg.GetDiscordConfig(); ok {
		m, err := gateway.NewDiscordGateway(dc.Token)
		if err != nil {
			log.Printf("discord gateway: %v", err)
		} else {
			targets = append(targets, gateway.Target{Name: "discord", ChatID: dc.ChatID, Messenger: m})
		}
	}
	return targets
}
