// Package browser drives a headless browser and exposes one isolated page
// per analysis request. The Driver interface keeps the orchestrator and the
// auditor testable with a fake implementation returning canned findings.
package browser

import (
	"context"
	"time"
)

// Page is a loaded document inside an isolated browsing context.
type Page interface {
	// URL returns the final URL after navigation and redirects.
	URL() string
	// Title resolves the document title.
	Title(ctx context.Context) (string, error)
	// HTML returns the serialized document for metadata fallbacks.
	HTML(ctx context.Context) (string, error)
	// InjectScript evaluates src (a full script source) in the document.
	InjectScript(ctx context.Context, src string) error
	// Evaluate runs expr in the document and unmarshals the result into out.
	// Promise results are awaited.
	Evaluate(ctx context.Context, expr string, out any) error
	// Close releases the browsing context. Idempotent; must be called on
	// every exit path.
	Close()
}

// OpenOptions bounds a single navigation.
type OpenOptions struct {
	// NavigationTimeout caps navigation plus network quiescence. Zero means
	// the driver default (30s).
	NavigationTimeout time.Duration
	// DOMReadyTimeout caps the wait for a minimal DOM-ready signal. Zero
	// means the driver default (15s).
	DOMReadyTimeout time.Duration
}

// Driver opens fresh, isolated pages. Implementations bound concurrent
// contexts; contexts are never shared or reused between requests.
type Driver interface {
	Open(ctx context.Context, url string, opts OpenOptions) (Page, error)
	Close() error
}
