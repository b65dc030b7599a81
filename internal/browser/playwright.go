package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rahul/navcheck/internal/verify"
)

// defaultPlaywrightTimeout applies when the caller's context has no deadline.
const defaultPlaywrightTimeout = 30 * time.Second

// PlaywrightSession drives one Chromium page through playwright-go. The
// Playwright driver must be installed (`playwright install chromium`).
type PlaywrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

func OpenPlaywright(ctx context.Context, cfg Config) (Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	}
	if cfg.ExecPath != "" {
		launch.ExecutablePath = playwright.String(cfg.ExecPath)
	}
	b, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}

	pageOpts := playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
	}
	if cfg.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(cfg.UserAgent)
	}
	pg, err := b.NewPage(pageOpts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	return &PlaywrightSession{pw: pw, browser: b, page: pg}, nil
}

// timeoutMS converts the context deadline into a Playwright timeout.
func timeoutMS(ctx context.Context) *float64 {
	d := defaultPlaywrightTimeout
	if dl, ok := ctx.Deadline(); ok {
		d = time.Until(dl)
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMS(ctx),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *PlaywrightSession) Lookup(ctx context.Context, role, name string) ([]verify.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := p.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{
		Name:  name,
		Exact: playwright.Bool(true),
	})
	n, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("count %s %q: %w", role, name, err)
	}
	els := make([]verify.Element, 0, n)
	for i := 0; i < n; i++ {
		els = append(els, &playwrightElement{page: p.page, loc: loc.Nth(i)})
	}
	return els, nil
}

func (p *PlaywrightSession) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *PlaywrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  timeoutMS(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *PlaywrightSession) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *PlaywrightSession) URL(ctx context.Context) (string, error) {
	return p.page.URL(), nil
}

func (p *PlaywrightSession) Close() error {
	var firstErr error
	if err := p.browser.Close(); err != nil {
		firstErr = fmt.Errorf("close browser: %w", err)
	}
	if err := p.pw.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("stop playwright: %w", err)
	}
	return firstErr
}

type playwrightElement struct {
	page playwright.Page
	loc  playwright.Locator
}

// Click uses Playwright's actionability checks and then waits for the load
// state of whatever document the page ends up on.
func (e *playwrightElement) Click(ctx context.Context) error {
	if err := e.loc.Click(playwright.LocatorClickOptions{Timeout: timeoutMS(ctx)}); err != nil {
		return err
	}
	return e.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: timeoutMS(ctx),
	})
}

func (e *playwrightElement) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsVisible()
}
