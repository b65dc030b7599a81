package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rahul/navcheck/internal/verify"
)

const visibleJS = `function() {
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	return r.width > 0 && r.height > 0 && s.visibility !== "hidden";
}`

// ChromeSession drives one Chrome tab over the DevTools protocol. It is not
// safe for concurrent use.
type ChromeSession struct {
	cfg           Config
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// OpenChrome launches Chrome and opens a blank tab.
func OpenChrome(ctx context.Context, cfg Config) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	s := &ChromeSession{cfg: cfg}
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)

	// The first Run allocates the browser and must not use a context that
	// ends before the session does.
	err := chromedp.Run(s.browserCtx, chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return s, nil
}

// derive returns a context on the tab that also ends when ctx ends.
func (s *ChromeSession) derive(ctx context.Context) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithCancel(s.browserCtx)
	if dl, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		actx, dcancel = context.WithDeadline(actx, dl)
		inner := cancel
		cancel = func() {
			dcancel()
			inner()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return actx, func() {
		stop()
		cancel()
	}
}

func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancel := s.derive(ctx)
	defer cancel()
	return chromedp.Run(actx, actions...)
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Lookup queries the accessibility tree for nodes with the given computed
// role and exact accessible name. Nodes ignored for accessibility are not
// returned.
func (s *ChromeSession) Lookup(ctx context.Context, role, name string) ([]verify.Element, error) {
	var nodes []*accessibility.Node
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, exc, err := runtime.Evaluate("document").Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		defer runtime.ReleaseObject(doc.ObjectID).Do(ctx)

		nodes, err = accessibility.QueryAXTree().
			WithObjectID(doc.ObjectID).
			WithAccessibleName(name).
			WithRole(role).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("query accessibility tree: %w", err)
	}

	var els []verify.Element
	seen := make(map[cdp.BackendNodeID]bool)
	for _, n := range nodes {
		if n.Ignored || n.BackendDOMNodeID == 0 || seen[n.BackendDOMNodeID] {
			continue
		}
		seen[n.BackendDOMNodeID] = true
		els = append(els, &chromeElement{session: s, id: n.BackendDOMNodeID})
	}
	return els, nil
}

func (s *ChromeSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (s *ChromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return html, nil
}

func (s *ChromeSession) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (s *ChromeSession) Close() error {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.allocCtx = nil
	return nil
}

type chromeElement struct {
	session *ChromeSession
	id      cdp.BackendNodeID
}

// navSignals collects the page events a click can trigger.
type navSignals struct {
	requested chan struct{}
	navigated chan struct{}
	sameDoc   chan struct{}
	loaded    chan struct{}
}

func newNavSignals() *navSignals {
	return &navSignals{
		requested: make(chan struct{}, 1),
		navigated: make(chan struct{}, 1),
		sameDoc:   make(chan struct{}, 1),
		loaded:    make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (n *navSignals) listen(ev any) {
	switch ev := ev.(type) {
	case *page.EventFrameRequestedNavigation:
		signal(n.requested)
	case *page.EventFrameNavigated:
		if ev.Frame != nil && ev.Frame.ParentID == "" {
			signal(n.navigated)
		}
	case *page.EventNavigatedWithinDocument:
		signal(n.sameDoc)
	case *page.EventLoadEventFired:
		signal(n.loaded)
	}
}

// Click dispatches a trusted mouse click at the centre of the element and
// waits for whatever navigation it starts to finish loading.
func (e *chromeElement) Click(ctx context.Context) error {
	s := e.session
	actx, cancel := s.derive(ctx)
	defer cancel()

	sig := newNavSignals()
	chromedp.ListenTarget(actx, sig.listen)

	err := chromedp.Run(actx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(e.id).Do(ctx); err != nil {
			return fmt.Errorf("scroll into view: %w", err)
		}
		quads, err := dom.GetContentQuads().WithBackendNodeID(e.id).Do(ctx)
		if err != nil {
			return fmt.Errorf("element has no layout: %w", err)
		}
		x, y, ok := quadCenter(quads)
		if !ok {
			return errors.New("element is not rendered")
		}
		return chromedp.MouseClickXY(x, y).Do(ctx)
	}))
	if err != nil {
		return err
	}
	return s.settle(actx, sig)
}

// settle waits up to the settle window for a navigation to begin. A
// same-document navigation settles immediately; a document navigation
// settles once the new document has loaded.
func (s *ChromeSession) settle(ctx context.Context, sig *navSignals) error {
	window := time.NewTimer(s.cfg.SettleWindow)
	defer window.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for navigation: %w", ctx.Err())
		case <-sig.sameDoc:
			return nil
		case <-sig.requested:
			pending = true
		case <-window.C:
			if !pending {
				return nil
			}
		case <-sig.navigated:
			select {
			case <-sig.loaded:
			case <-ctx.Done():
				return fmt.Errorf("waiting for page load: %w", ctx.Err())
			}
			return chromedp.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
		}
	}
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.id).Do(ctx)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(obj.ObjectID).Do(ctx)

		res, exc, err := runtime.CallFunctionOn(visibleJS).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		visible = string(res.Value) == "true"
		return nil
	}))
	if err != nil {
		return false, fmt.Errorf("visibility check failed: %w", err)
	}
	return visible, nil
}

func quadCenter(quads []dom.Quad) (x, y float64, ok bool) {
	for _, q := range quads {
		if len(q) != 8 {
			continue
		}
		x = (q[0] + q[2] + q[4] + q[6]) / 4
		y = (q[1] + q[3] + q[5] + q[7]) / 4
		return x, y, true
	}
	return 0, 0, false
}
