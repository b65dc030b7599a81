// Package verify executes an ordered list of navigation steps against a
// browser session and reports the first failure.
package verify

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/navcheck/internal/governance"
	"github.com/rahul/navcheck/internal/snapshot"
)

const (
	DefaultStepTimeout   = 30 * time.Second
	DefaultAssertTimeout = 5 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
)

// Config bounds the suspending steps. AssertTimeout is the window in which
// an assertion may become true; zero means a single check.
type Config struct {
	StepTimeout   time.Duration
	AssertTimeout time.Duration
	PollInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		StepTimeout:   DefaultStepTimeout,
		AssertTimeout: DefaultAssertTimeout,
		PollInterval:  DefaultPollInterval,
	}
}

// StepRecord describes one executed step. Err is nil when the step passed.
type StepRecord struct {
	Index    int
	Step     Step
	Started  time.Time
	Duration time.Duration
	Err      *StepError
}

// Observer is called after every executed step, including the failing one.
// Observers run on the verifier's goroutine; the next step waits for them.
type Observer func(ctx context.Context, rec StepRecord)

// Result is Passed, or Failed at FailedIndex with Cause.
type Result struct {
	Passed      bool
	FailedIndex int
	Cause       *StepError
}

func (r Result) String() string {
	if r.Passed {
		return "Passed"
	}
	return fmt.Sprintf("Failed(%d, %s)", r.FailedIndex, r.Cause.Kind)
}

// Run is one execution of a step list. It is not reused.
type Run struct {
	ID         string
	Steps      []Step
	Records    []StepRecord
	Result     Result
	Snapshot   *snapshot.Page
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *Run) Passed() bool {
	return r.Result.Passed
}

// Err returns the failing step's error, or nil for a passed run.
func (r *Run) Err() error {
	if r.Result.Passed || r.Result.Cause == nil {
		return nil
	}
	return r.Result.Cause
}

func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Option func(*Verifier)

// WithPolicy checks every goto URL against engine before loading it.
func WithPolicy(engine governance.PolicyEngine) Option {
	return func(v *Verifier) { v.policy = engine }
}

func WithObserver(obs ...Observer) Option {
	return func(v *Verifier) { v.observers = append(v.observers, obs...) }
}

// WithSnapshots captures readable page text at the failing step when the
// session implements PageSource.
func WithSnapshots(enabled bool) Option {
	return func(v *Verifier) { v.snapshots = enabled }
}

type Verifier struct {
	cfg       Config
	policy    governance.PolicyEngine
	observers []Observer
	snapshots bool
}

func New(cfg Config, opts ...Option) *Verifier {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.AssertTimeout < 0 {
		cfg.AssertTimeout = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	v := &Verifier{cfg: cfg}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run executes steps in order against sess and stops at the first failure.
func (v *Verifier) Run(ctx context.Context, sess Session, steps []Step) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Steps:     append([]Step(nil), steps...),
		Result:    Result{Passed: true, FailedIndex: -1},
		StartedAt: time.Now(),
	}

	for i, step := range run.Steps {
		start := time.Now()
		serr := v.execute(ctx, sess, step)
		rec := StepRecord{
			Index:    i,
			Step:     step,
			Started:  start,
			Duration: time.Since(start),
		}
		if serr != nil {
			serr.Index = i
			serr.Step = step
			rec.Err = serr
			run.Result = Result{FailedIndex: i, Cause: serr}
			if v.snapshots {
				run.Snapshot = v.capture(ctx, sess)
			}
		}
		run.Records = append(run.Records, rec)

		for _, obs := range v.observers {
			obs(ctx, rec)
		}
		if serr != nil {
			break
		}
	}

	run.FinishedAt = time.Now()
	return run
}

func (v *Verifier) execute(ctx context.Context, sess Session, step Step) *StepError {
	if err := step.Validate(); err != nil {
		return newStepError(kindOf(step.Kind), err)
	}
	if err := ctx.Err(); err != nil {
		return newStepError(kindOf(step.Kind), err)
	}

	switch step.Kind {
	case KindGoto:
		return v.navigate(ctx, sess, step.URL)
	case KindClickByRoleName:
		return v.click(ctx, sess, step.Role, step.Name)
	case KindAssertTitle:
		return v.assertTitle(ctx, sess, step.Expected)
	case KindAssertHeadingVisible:
		return v.assertHeadingVisible(ctx, sess, step.Name)
	case KindCaptureScreenshot:
		return v.screenshot(ctx, sess, step.Path)
	}
	return nil
}

func (v *Verifier) navigate(ctx context.Context, sess Session, url string) *StepError {
	if v.policy != nil {
		res, err := v.policy.Evaluate(ctx, governance.Request{URL: url})
		if err != nil {
			return newStepError(NavigationError, fmt.Errorf("policy evaluation: %w", err))
		}
		if res.Effect == governance.EffectDeny {
			return newStepError(NavigationError, fmt.Errorf("blocked by policy: %s", res.Reason))
		}
	}

	nctx, cancel := context.WithTimeout(ctx, v.cfg.StepTimeout)
	defer cancel()
	if err := sess.Navigate(nctx, url); err != nil {
		return newStepError(NavigationError, err)
	}
	return nil
}

func (v *Verifier) click(ctx context.Context, sess Session, role, name string) *StepError {
	lctx, cancel := context.WithTimeout(ctx, v.cfg.StepTimeout)
	defer cancel()

	var found []Element
	ok, err := v.within(lctx, v.cfg.StepTimeout, func(ctx context.Context) (bool, error) {
		els, err := sess.Lookup(ctx, role, name)
		found = els
		return len(els) > 0, err
	})
	switch {
	case len(found) > 1:
		serr := newStepError(ElementNotFoundError,
			fmt.Errorf("%d elements match %s %q", len(found), role, name))
		serr.Matches = len(found)
		return serr
	case !ok && err != nil:
		return newStepError(ElementNotFoundError, fmt.Errorf("no %s named %q: %w", role, name, err))
	case !ok:
		return newStepError(ElementNotFoundError,
			fmt.Errorf("no %s named %q within %s", role, name, v.cfg.StepTimeout))
	}

	cctx, ccancel := context.WithTimeout(ctx, v.cfg.StepTimeout)
	defer ccancel()
	if err := found[0].Click(cctx); err != nil {
		return newStepError(NavigationError, fmt.Errorf("click %s %q: %w", role, name, err))
	}
	return nil
}

func (v *Verifier) assertTitle(ctx context.Context, sess Session, expected string) *StepError {
	var (
		actual string
		seen   bool
	)
	ok, err := v.within(ctx, v.cfg.AssertTimeout, func(ctx context.Context) (bool, error) {
		title, err := sess.Title(ctx)
		if err != nil {
			return false, err
		}
		actual, seen = title, true
		return title == expected, nil
	})
	if ok {
		return nil
	}
	if !seen && err != nil {
		serr := newStepError(AssertionError, fmt.Errorf("read title: %w", err))
		serr.Expected = expected
		return serr
	}
	return assertionMismatch(expected, actual)
}

func (v *Verifier) assertHeadingVisible(ctx context.Context, sess Session, name string) *StepError {
	var matches int
	ok, err := v.within(ctx, v.cfg.AssertTimeout, func(ctx context.Context) (bool, error) {
		matches = 0
		els, err := sess.Lookup(ctx, HeadingRole, name)
		if err != nil {
			return false, err
		}
		matches = len(els)
		if matches != 1 {
			return false, nil
		}
		return els[0].Visible(ctx)
	})
	switch {
	case ok:
		return nil
	case matches > 1:
		serr := newStepError(ElementNotFoundError,
			fmt.Errorf("%d elements match %s %q", matches, HeadingRole, name))
		serr.Matches = matches
		return serr
	case err != nil:
		serr := newStepError(AssertionError, fmt.Errorf("heading %q: %w", name, err))
		serr.Expected = "visible"
		return serr
	case matches == 0:
		return assertionMismatch("visible", "absent")
	}
	return assertionMismatch("visible", "hidden")
}

func (v *Verifier) screenshot(ctx context.Context, sess Session, path string) *StepError {
	sctx, cancel := context.WithTimeout(ctx, v.cfg.StepTimeout)
	defer cancel()

	buf, err := sess.Screenshot(sctx)
	if err != nil {
		return newStepError(IOError, fmt.Errorf("capture screenshot: %w", err))
	}
	if err := writeArtifact(path, buf); err != nil {
		return newStepError(IOError, err)
	}
	return nil
}

// within evaluates cond until it holds or window has elapsed. The final
// evaluation's error is returned when cond never held.
func (v *Verifier) within(ctx context.Context, window time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(window)
	for {
		cctx, cancel := context.WithTimeout(ctx, v.cfg.StepTimeout)
		ok, err := cond(cctx)
		cancel()
		if ok && err == nil {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, err
		}

		timer := time.NewTimer(v.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if err == nil {
				err = ctx.Err()
			}
			return false, err
		case <-timer.C:
		}
	}
}

func (v *Verifier) capture(ctx context.Context, sess Session) *snapshot.Page {
	src, ok := sess.(PageSource)
	if !ok {
		return nil
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.cfg.StepTimeout)
	defer cancel()

	html, err := src.HTML(sctx)
	if err != nil {
		log.Printf("snapshot: read page: %v", err)
		return nil
	}
	pageURL, err := src.URL(sctx)
	if err != nil {
		log.Printf("snapshot: read location: %v", err)
	}
	page, err := snapshot.FromHTML(html, pageURL)
	if err != nil {
		log.Printf("snapshot: %v", err)
		return nil
	}
	return page
}

func writeArtifact(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create artifact directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// kindOf is the error kind a step reports when it cannot start.
func kindOf(kind StepKind) ErrorKind {
	switch kind {
	case KindGoto:
		return NavigationError
	case KindClickByRoleName:
		return ElementNotFoundError
	case KindCaptureScreenshot:
		return IOError
	}
	return AssertionError
}
