// Package fetch retrieves module source text by URL.
//
// Fetchers are the resolver's only window onto the outside world: an HTTP
// fetcher for remote module hosts, a file fetcher for plugins installed on
// disk, and a Router that picks between them by URL scheme.
package fetch

import (
	"context"
	"errors"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrNotFound reports that the module does not exist at the URL.
	ErrNotFound = errors.New("module source not found")
	// ErrBinaryContent reports a response body that is not text.
	ErrBinaryContent = errors.New("module source is not text")
	// ErrUnsupportedScheme reports a URL scheme no fetcher handles.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Fetcher retrieves the source text stored at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Outcome classifies a fetch error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

// isText reports whether body is textual. Empty bodies count as text.
func isText(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	for m := mimetype.Detect(body); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
