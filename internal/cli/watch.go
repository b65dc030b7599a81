package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rahul/navcheck/internal/metrics"
	"github.com/rahul/navcheck/internal/observability"
	"github.com/rahul/navcheck/internal/scenario"
	"github.com/rahul/navcheck/internal/schedule"
	"github.com/rahul/navcheck/internal/store"
	"github.com/spf13/cobra"
)

var (
	watchOpts     runFlags
	watchSchedule string
	watchMetrics  string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	addRunFlags(watchCmd, &watchOpts)
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "@every 5m", "Cron spec for periodic runs (empty to only run on change)")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address (default from config)")
}

var watchCmd = &cobra.Command{
	Use:   "watch <scenario.yaml>",
	Short: "Re-run a scenario on a schedule and whenever it changes",
	Long:  "Runs the scenario once, then again on every schedule tick and whenever the scenario or config file is saved. The config is re-read before every run; the metrics address is fixed at startup. Runs never overlap.",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

// liveRunner rebuilds the runner from the current config before every run
// so config edits take effect. The history store and metrics collector are
// shared across rebuilds.
type liveRunner struct {
	build   func() (*Runner, error)
	current *Runner
	history *store.HistoryStore
	metrics *metrics.Collector
}

// refresh returns a runner for the current config. When the config cannot
// be loaded the previous runner is kept.
func (l *liveRunner) refresh() *Runner {
	next, err := l.build()
	if err != nil {
		log.Printf("config reload failed, keeping previous settings: %v", err)
		return l.current
	}
	next.History = l.history
	next.Metrics = l.metrics
	l.current = next
	return next
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := scenario.Load(path); err != nil {
		return err
	}

	live := &liveRunner{
		build: func() (*Runner, error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			return watchOpts.runner(cmd, cfg)
		},
		history: watchOpts.openHistory(cfg),
		metrics: metrics.NewCollector(),
	}
	if live.history != nil {
		defer live.history.Close()
	}
	if live.current, err = watchOpts.runner(cmd, cfg); err != nil {
		return err
	}
	live.current.History = live.history
	live.current.Metrics = live.metrics

	// The metrics address is read once at startup.
	addr := watchMetrics
	if addr == "" {
		addr = cfg.Metrics.ListenAddress
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(live.metrics), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("Serving metrics on %s/metrics", addr)
	}

	first := true
	job := func(ctx context.Context, reason string) {
		// Re-read on every run so edits take effect.
		sc, err := scenario.Load(path)
		if err != nil {
			log.Printf("skip run (%s): %v", reason, err)
			return
		}
		r := live.current
		if !first {
			r = live.refresh()
		}
		first = false
		if _, err := r.RunScenario(ctx, sc); err != nil {
			log.Printf("run %s: %v", sc.Name, err)
		}
	}

	sched := schedule.New(job)
	if watchSchedule != "" {
		if err := sched.Every(watchSchedule); err != nil {
			return err
		}
	}
	watched := []string{path}
	if configPath != "" {
		watched = append(watched, configPath)
	}
	if err := sched.Watch(watched...); err != nil {
		return err
	}

	if observability.IsTerminal(os.Stdout) {
		observability.PrintBanner(cmd.OutOrStdout())
	}
	hb := observability.NewLogger(cfg.App.LogDir)
	if watchOpts.events {
		hb.SetOutput(cmd.ErrOrStderr())
	} else {
		hb.SetOutput(nil)
	}
	go heartbeat(ctx, hb)

	sched.Trigger("start")
	sched.Start(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), "\nwatch stopped")
	return nil
}

func metricsMux(c *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

func heartbeat(ctx context.Context, logger *observability.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.Heartbeat()
			logger.LogHeartbeat()
			if observability.IsTerminal(os.Stderr) {
				log.Print(observability.StatusLine())
			}
		}
	}
}
