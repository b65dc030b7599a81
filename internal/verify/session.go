package verify

import "context"

// Session is a single browser page bound to a reachable server. A run owns its
// session exclusively until it returns.
type Session interface {
	// Navigate loads url and returns once the load has completed.
	Navigate(ctx context.Context, url string) error

	// Lookup returns every element whose accessible role is role and whose
	// accessible name equals name exactly. An empty result is not an error.
	Lookup(ctx context.Context, role, name string) ([]Element, error)

	// Title returns the current document title.
	Title(ctx context.Context) (string, error)

	// Screenshot renders the whole page as a PNG image.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a located node on the session's current page.
type Element interface {
	// Click dispatches a click and returns once any resulting navigation or
	// DOM settlement has completed.
	Click(ctx context.Context) error

	// Visible reports whether the element is rendered with a non-empty box
	// and is not hidden by style.
	Visible(ctx context.Context) (bool, error)
}

// PageSource is implemented by sessions that can hand back the current page
// for failure diagnostics.
type PageSource interface {
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}
