package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rahul/navcheck/internal/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage is one page of a fakeSite.
type fakePage struct {
	title    string
	links    map[string]string // accessible name -> target url
	headings map[string]bool   // accessible name -> visible
	dupLinks map[string]int
	dupHeads map[string]int
}

// fakeSession is a scripted in-memory browser. Every call is appended to
// calls so tests can check ordering.
type fakeSession struct {
	mu       sync.Mutex
	site     map[string]*fakePage
	current  string
	calls    []string
	navErr   error
	shotErr  error
	clickErr error
	html     string
	inflight bool
}

func newFakeSession(site map[string]*fakePage) *fakeSession {
	return &fakeSession{site: site}
}

func (f *fakeSession) enter(call string) func() {
	f.mu.Lock()
	if f.inflight {
		f.mu.Unlock()
		panic("overlapping session calls: " + call)
	}
	f.inflight = true
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.inflight = false
		f.mu.Unlock()
	}
}

func (f *fakeSession) page() *fakePage {
	if p, ok := f.site[f.current]; ok {
		return p
	}
	return &fakePage{}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	defer f.enter("navigate " + url)()
	if f.navErr != nil {
		return f.navErr
	}
	if _, ok := f.site[url]; !ok {
		return fmt.Errorf("net::ERR_CONNECTION_REFUSED at %s", url)
	}
	f.current = url
	return nil
}

func (f *fakeSession) Lookup(ctx context.Context, role, name string) ([]Element, error) {
	defer f.enter(fmt.Sprintf("lookup %s %s", role, name))()
	p := f.page()
	switch role {
	case "link":
		target, ok := p.links[name]
		if !ok {
			return nil, nil
		}
		n := 1
		if d := p.dupLinks[name]; d > 1 {
			n = d
		}
		els := make([]Element, 0, n)
		for i := 0; i < n; i++ {
			els = append(els, &fakeElement{session: f, name: name, target: target, err: f.clickErr})
		}
		return els, nil
	case HeadingRole:
		visible, ok := p.headings[name]
		if !ok {
			return nil, nil
		}
		n := 1
		if d := p.dupHeads[name]; d > 1 {
			n = d
		}
		els := make([]Element, 0, n)
		for i := 0; i < n; i++ {
			els = append(els, &fakeElement{session: f, name: name, visible: visible})
		}
		return els, nil
	}
	return nil, nil
}

func (f *fakeSession) Title(ctx context.Context) (string, error) {
	defer f.enter("title")()
	return f.page().title, nil
}

func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	defer f.enter("screenshot")()
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return []byte("PNG:" + f.current), nil
}

func (f *fakeSession) HTML(ctx context.Context) (string, error) {
	if f.html == "" {
		return "", errors.New("no document")
	}
	return f.html, nil
}

func (f *fakeSession) URL(ctx context.Context) (string, error) {
	return f.current, nil
}

type fakeElement struct {
	session *fakeSession
	name    string
	target  string
	visible bool
	err     error
}

func (e *fakeElement) Click(ctx context.Context) error {
	defer e.session.enter("click " + e.name)()
	if e.err != nil {
		return e.err
	}
	if e.target != "" {
		e.session.current = e.target
	}
	return nil
}

func (e *fakeElement) Visible(ctx context.Context) (bool, error) {
	defer e.session.enter("visible " + e.name)()
	return e.visible, nil
}

const (
	enURL = "http://localhost:3000/en"
	enDoc = "http://localhost:3000/en/features/generating-modules"
	faDoc = "http://localhost:3000/fa/features/generating-modules"
)

func docsSite() map[string]*fakePage {
	return map[string]*fakePage{
		enURL: {
			title: "Laravel Module Generator",
			links: map[string]string{"Generating Modules": enDoc},
		},
		enDoc: {
			title:    "Generating Modules · Laravel Module Generator",
			links:    map[string]string{"فارسی": faDoc, "Generating Modules": enDoc},
			headings: map[string]bool{"Generating Modules": true, "Options": false},
		},
		faDoc: {
			title:    "تولید ماژول‌ها · Laravel Module Generator",
			links:    map[string]string{"English": enDoc},
			headings: map[string]bool{"تولید ماژول‌ها": true},
		},
	}
}

func docsSteps(dir string) []Step {
	return []Step{
		Goto(enURL),
		ClickByRoleName("link", "Generating Modules"),
		AssertTitle("Generating Modules · Laravel Module Generator"),
		AssertHeadingVisible("Generating Modules"),
		CaptureScreenshot(filepath.Join(dir, "docs-screenshot-en.png")),
		ClickByRoleName("link", "فارسی"),
		AssertTitle("تولید ماژول‌ها · Laravel Module Generator"),
		AssertHeadingVisible("تولید ماژول‌ها"),
		CaptureScreenshot(filepath.Join(dir, "docs-screenshot-fa.png")),
	}
}

func testConfig() Config {
	return Config{
		StepTimeout:   time.Second,
		AssertTimeout: 0,
		PollInterval:  5 * time.Millisecond,
	}
}

func TestRun_DocsScenarioPasses(t *testing.T) {
	dir := t.TempDir()
	sess := newFakeSession(docsSite())

	run := New(testConfig()).Run(context.Background(), sess, docsSteps(dir))

	require.True(t, run.Passed(), "run failed: %v", run.Err())
	assert.NoError(t, run.Err())
	assert.Equal(t, "Passed", run.Result.String())
	assert.Equal(t, -1, run.Result.FailedIndex)
	assert.Len(t, run.Records, 9)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	en, err := os.ReadFile(filepath.Join(dir, "docs-screenshot-en.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG:"+enDoc, string(en))
	fa, err := os.ReadFile(filepath.Join(dir, "docs-screenshot-fa.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG:"+faDoc, string(fa))
}

func TestRun_StepsExecuteInOrder(t *testing.T) {
	sess := newFakeSession(docsSite())
	var seen []int
	obs := func(ctx context.Context, rec StepRecord) {
		seen = append(seen, rec.Index)
	}

	run := New(testConfig(), WithObserver(obs)).Run(context.Background(), sess, docsSteps(t.TempDir()))
	require.True(t, run.Passed(), "run failed: %v", run.Err())

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, seen)
	assert.Equal(t, []string{
		"navigate " + enURL,
		"lookup link Generating Modules",
		"click Generating Modules",
		"title",
		"lookup heading Generating Modules",
		"visible Generating Modules",
		"screenshot",
		"lookup link فارسی",
		"click فارسی",
		"title",
		"lookup heading تولید ماژول‌ها",
		"visible تولید ماژول‌ها",
		"screenshot",
	}, sess.calls)
}

func TestRun_FailFast(t *testing.T) {
	dir := t.TempDir()
	sess := newFakeSession(docsSite())
	steps := []Step{
		Goto(enURL),
		AssertTitle("Wrong Title"),
		CaptureScreenshot(filepath.Join(dir, "never.png")),
		Goto(enDoc),
	}
	var observed int
	v := New(testConfig(), WithObserver(func(ctx context.Context, rec StepRecord) { observed++ }))

	run := v.Run(context.Background(), sess, steps)

	require.False(t, run.Passed())
	assert.Equal(t, 1, run.Result.FailedIndex)
	assert.Equal(t, "Failed(1, AssertionError)", run.Result.String())
	assert.Len(t, run.Records, 2)
	assert.Equal(t, 2, observed)
	assert.Equal(t, []string{"navigate " + enURL, "title"}, sess.calls)
	_, err := os.Stat(filepath.Join(dir, "never.png"))
	assert.True(t, os.IsNotExist(err), "screenshot after the failing step was written")
}

func TestRun_AssertTitleIsExact(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		pass     bool
	}{
		{"exact", "Generating Modules · Laravel Module Generator", true},
		{"case", "generating modules · laravel module generator", false},
		{"trailing space", "Generating Modules · Laravel Module Generator ", false},
		{"prefix", "Generating Modules", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession(docsSite())
			run := New(testConfig()).Run(context.Background(), sess, []Step{Goto(enDoc), AssertTitle(tt.expected)})
			assert.Equal(t, tt.pass, run.Passed())
			if tt.pass {
				return
			}
			var serr *StepError
			require.ErrorAs(t, run.Err(), &serr)
			assert.Equal(t, AssertionError, serr.Kind)
			assert.Equal(t, tt.expected, serr.Expected)
			assert.Equal(t, "Generating Modules · Laravel Module Generator", serr.Actual)
			assert.ErrorIs(t, run.Err(), ErrAssertion)
		})
	}
}

func TestRun_ScreenshotOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shots", "same.png")
	sess := newFakeSession(docsSite())
	steps := []Step{
		Goto(enURL),
		CaptureScreenshot(path),
		Goto(enDoc),
		CaptureScreenshot(path),
	}

	run := New(testConfig()).Run(context.Background(), sess, steps)
	require.True(t, run.Passed(), "run failed: %v", run.Err())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PNG:"+enDoc, string(data))
}

func TestRun_ScreenshotIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	sess := newFakeSession(docsSite())
	run := New(testConfig()).Run(context.Background(), sess, []Step{
		Goto(enURL),
		CaptureScreenshot(filepath.Join(blocker, "shot.png")),
	})

	require.False(t, run.Passed())
	assert.Equal(t, 1, run.Result.FailedIndex)
	assert.ErrorIs(t, run.Err(), ErrIO)

	sess = newFakeSession(docsSite())
	sess.shotErr = errors.New("target closed")
	run = New(testConfig()).Run(context.Background(), sess, []Step{Goto(enURL), CaptureScreenshot(filepath.Join(dir, "a.png"))})
	assert.ErrorIs(t, run.Err(), ErrIO)
}

func TestRun_AmbiguousLookup(t *testing.T) {
	site := docsSite()
	site[enURL].dupLinks = map[string]int{"Generating Modules": 2}
	sess := newFakeSession(site)

	run := New(testConfig()).Run(context.Background(), sess, []Step{
		Goto(enURL),
		ClickByRoleName("link", "Generating Modules"),
	})

	require.False(t, run.Passed())
	var serr *StepError
	require.ErrorAs(t, run.Err(), &serr)
	assert.Equal(t, ElementNotFoundError, serr.Kind)
	assert.Equal(t, 2, serr.Matches)
	assert.ErrorIs(t, run.Err(), ErrElementNotFound)
	assert.NotContains(t, sess.calls, "click Generating Modules")
	assert.Equal(t, enURL, sess.current)
}

func TestRun_ElementNotFoundAfterTimeout(t *testing.T) {
	sess := newFakeSession(docsSite())
	cfg := testConfig()
	cfg.StepTimeout = 50 * time.Millisecond

	start := time.Now()
	run := New(cfg).Run(context.Background(), sess, []Step{
		Goto(enURL),
		ClickByRoleName("link", "Missing"),
	})

	require.False(t, run.Passed())
	assert.ErrorIs(t, run.Err(), ErrElementNotFound)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_NavigationError(t *testing.T) {
	sess := newFakeSession(docsSite())
	run := New(testConfig()).Run(context.Background(), sess, []Step{Goto("http://localhost:3999/")})

	require.False(t, run.Passed())
	assert.Equal(t, 0, run.Result.FailedIndex)
	assert.ErrorIs(t, run.Err(), ErrNavigation)
	assert.Contains(t, run.Err().Error(), "ERR_CONNECTION_REFUSED")
}

func TestRun_HeadingVisibility(t *testing.T) {
	tests := []struct {
		name    string
		heading string
		actual  string
	}{
		{"hidden", "Options", "hidden"},
		{"absent", "Nope", "absent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession(docsSite())
			run := New(testConfig()).Run(context.Background(), sess, []Step{Goto(enDoc), AssertHeadingVisible(tt.heading)})

			var serr *StepError
			require.ErrorAs(t, run.Err(), &serr)
			assert.Equal(t, AssertionError, serr.Kind)
			assert.Equal(t, "visible", serr.Expected)
			assert.Equal(t, tt.actual, serr.Actual)
		})
	}
}

func TestRun_AmbiguousHeading(t *testing.T) {
	site := docsSite()
	site[enDoc].dupHeads = map[string]int{"Generating Modules": 2}
	sess := newFakeSession(site)

	run := New(testConfig()).Run(context.Background(), sess, []Step{
		Goto(enDoc),
		AssertHeadingVisible("Generating Modules"),
		CaptureScreenshot(filepath.Join(t.TempDir(), "never.png")),
	})

	require.False(t, run.Passed())
	assert.Equal(t, 1, run.Result.FailedIndex)
	var serr *StepError
	require.ErrorAs(t, run.Err(), &serr)
	assert.Equal(t, ElementNotFoundError, serr.Kind)
	assert.Equal(t, 2, serr.Matches)
	assert.ErrorIs(t, run.Err(), ErrElementNotFound)
	assert.NotContains(t, sess.calls, "screenshot")
}

func TestRun_ClickFailureIsNavigationError(t *testing.T) {
	sess := newFakeSession(docsSite())
	sess.clickErr = errors.New("target closed")

	run := New(testConfig()).Run(context.Background(), sess, []Step{
		Goto(enURL),
		ClickByRoleName("link", "Generating Modules"),
		AssertTitle("never checked"),
	})

	require.False(t, run.Passed())
	assert.Equal(t, 1, run.Result.FailedIndex)
	assert.ErrorIs(t, run.Err(), ErrNavigation)
	assert.Contains(t, run.Err().Error(), "target closed")
	assert.Contains(t, sess.calls, "click Generating Modules")
	assert.NotContains(t, sess.calls, "title")
	assert.Equal(t, enURL, sess.current)
}

type denyAll struct{}

func (denyAll) Evaluate(ctx context.Context, req governance.Request) (governance.Result, error) {
	return governance.Result{Effect: governance.EffectDeny, Reason: "offline"}, nil
}

func TestRun_PolicyBlocksNavigation(t *testing.T) {
	sess := newFakeSession(docsSite())
	run := New(testConfig(), WithPolicy(denyAll{})).Run(context.Background(), sess, []Step{Goto(enURL)})

	assert.ErrorIs(t, run.Err(), ErrNavigation)
	assert.Contains(t, run.Err().Error(), "blocked by policy")
	assert.Empty(t, sess.calls)
}

func TestRun_SnapshotOnFailure(t *testing.T) {
	sess := newFakeSession(docsSite())
	sess.html = `<html><head><title>Generating Modules</title></head><body><article>
<h1>Generating Modules</h1><p>The module generator scaffolds controllers, models and migrations
for every new module, and registers the module with the application automatically.</p>
<p>Stubs can be published and customised before generating the first module.</p></article></body></html>`

	run := New(testConfig(), WithSnapshots(true)).Run(context.Background(), sess, []Step{
		Goto(enDoc),
		AssertTitle("Something Else"),
	})

	require.False(t, run.Passed())
	require.NotNil(t, run.Snapshot)
	assert.Equal(t, enDoc, run.Snapshot.URL)
	assert.Contains(t, run.Snapshot.Text, "scaffolds controllers")

	passed := New(testConfig(), WithSnapshots(true)).Run(context.Background(), newFakeSession(docsSite()), []Step{Goto(enDoc)})
	assert.Nil(t, passed.Snapshot)
}

func TestRun_EmptyAndInvalidSteps(t *testing.T) {
	sess := newFakeSession(docsSite())
	run := New(testConfig()).Run(context.Background(), sess, nil)
	assert.True(t, run.Passed())

	run = New(testConfig()).Run(context.Background(), sess, []Step{{Kind: "hover"}})
	require.False(t, run.Passed())
	assert.Equal(t, 0, run.Result.FailedIndex)
	assert.Contains(t, run.Err().Error(), "unknown step kind")
}

func TestRun_StepsAreCopied(t *testing.T) {
	steps := []Step{Goto(enURL)}
	run := New(testConfig()).Run(context.Background(), newFakeSession(docsSite()), steps)
	steps[0].URL = "http://elsewhere/"
	assert.Equal(t, enURL, run.Steps[0].URL)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := New(testConfig()).Run(ctx, newFakeSession(docsSite()), []Step{Goto(enURL)})
	assert.ErrorIs(t, run.Err(), ErrNavigation)
	assert.ErrorIs(t, run.Err(), context.Canceled)
}

type slowTitleSession struct {
	*fakeSession
	readyAt time.Time
}

func (s *slowTitleSession) Title(ctx context.Context) (string, error) {
	if time.Now().Before(s.readyAt) {
		return "Loading…", nil
	}
	return s.fakeSession.Title(ctx)
}

func TestRun_AssertWindowAllowsLateTitle(t *testing.T) {
	sess := &slowTitleSession{fakeSession: newFakeSession(docsSite())}
	cfg := testConfig()
	cfg.AssertTimeout = time.Second

	steps := []Step{Goto(enDoc), AssertTitle("Generating Modules · Laravel Module Generator")}
	sess.readyAt = time.Now().Add(50 * time.Millisecond)
	run := New(cfg).Run(context.Background(), sess, steps)
	assert.True(t, run.Passed(), "run failed: %v", run.Err())

	cfg.AssertTimeout = 0
	sess.readyAt = time.Now().Add(time.Hour)
	run = New(cfg).Run(context.Background(), sess, steps)
	var serr *StepError
	require.ErrorAs(t, run.Err(), &serr)
	assert.Equal(t, "Loading…", serr.Actual)
}
