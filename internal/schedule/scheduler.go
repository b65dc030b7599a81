// Package schedule re-runs a job on a cron schedule and when watched files
// change. Jobs never overlap.
package schedule

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

const DefaultDebounce = 500 * time.Millisecond

// Job runs one scheduled execution. reason says what started it.
type Job func(ctx context.Context, reason string)

type Option func(*Scheduler)

// WithDebounce sets how long file events must settle before a run starts.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) { s.debounce = d }
}

type Scheduler struct {
	job      Job
	cron     *cron.Cron
	watcher  *fsnotify.Watcher
	watched  map[string]bool
	pending  chan string
	debounce time.Duration
}

func New(job Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		job:      job,
		cron:     cron.New(),
		watched:  make(map[string]bool),
		pending:  make(chan string, 1),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every adds a cron spec such as "@every 5m" or "*/10 * * * *".
func (s *Scheduler) Every(spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.Trigger("schedule " + spec) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Watch re-runs the job when any of paths is written, created or replaced.
// The parent directories are watched so editors that swap files are seen.
func (s *Scheduler) Watch(paths ...string) error {
	if s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		s.watcher = w
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
		if err := s.watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
		s.watched[abs] = true
	}
	return nil
}

// Trigger queues a run. While one run is already queued further triggers
// are coalesced into it.
func (s *Scheduler) Trigger(reason string) {
	select {
	case s.pending <- reason:
	default:
	}
}

// Start runs queued jobs one at a time until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	defer s.cron.Stop()

	if s.watcher != nil {
		defer s.watcher.Close()
		go s.watch(ctx)
	}

	log.Println("Scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-s.pending:
			log.Printf("Running job: %s", reason)
			s.job(ctx, reason)
		}
	}
}

func (s *Scheduler) watch(ctx context.Context) {
	// Debounce: wait after the last event before triggering
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				name := filepath.Base(event.Name)
				debounce = time.AfterFunc(s.debounce, func() {
					s.Trigger("changed " + name)
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("file watcher error: %v", err)
		}
	}
}
