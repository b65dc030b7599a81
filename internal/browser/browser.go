// Package browser provides verify.Session implementations backed by real
// browsers.
package browser

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rahul/navcheck/internal/verify"
)

const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// Config selects and tunes a browser driver.
type Config struct {
	Driver         string
	Headless       bool
	ExecPath       string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	// SettleWindow is how long a click waits for a navigation to begin
	// before it treats the click as settled.
	SettleWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Driver:         DriverChromedp,
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
		SettleWindow:   time.Second,
	}
}

// Browser is an open page. Close releases the page and the browser process.
type Browser interface {
	verify.Session
	verify.PageSource
	Close() error
}

// Driver opens a Browser for cfg.
type Driver func(ctx context.Context, cfg Config) (Browser, error)

var drivers = map[string]Driver{
	DriverChromedp:   OpenChrome,
	DriverPlaywright: OpenPlaywright,
}

// Drivers lists the registered driver names.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open starts the driver named by cfg.Driver, chromedp when empty.
func Open(ctx context.Context, cfg Config) (Browser, error) {
	name := cfg.Driver
	if name == "" {
		name = DriverChromedp
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown browser driver %q (available: %v)", name, Drivers())
	}
	def := DefaultConfig()
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = def.SettleWindow
	}
	return open(ctx, cfg)
}
