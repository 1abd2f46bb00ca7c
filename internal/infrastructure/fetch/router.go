package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Router dispatches fetches by URL scheme.
// http and https go to HTTP; file URLs and bare paths go to File.
type Router struct {
	HTTP Fetcher
	File Fetcher
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := r.route(rawURL)
	if err != nil {
		return "", err
	}
	return target.Fetch(ctx, rawURL)
}

func (r *Router) route(rawURL string) (Fetcher, error) {
	scheme := ""
	if u, err := url.Parse(rawURL); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	var target Fetcher
	switch scheme {
	case "http", "https":
		target = r.HTTP
	case "file", "":
		target = r.File
	default:
		// drive letters parse as one-letter schemes
		if len(scheme) == 1 {
			target = r.File
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
	}
	return target, nil
}
