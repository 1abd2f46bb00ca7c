package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// FileFetcher reads module sources from the local filesystem.
// Relative paths are resolved against Root.
type FileFetcher struct {
	Root string
}

// NewFile creates a file fetcher rooted at root.
func NewFile(root string) *FileFetcher {
	return &FileFetcher{Root: root}
}

// Fetch reads the file named by rawURL, which is either a file:// URL or a path.
func (f *FileFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := f.path(rawURL)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !isText(data) {
		return "", fmt.Errorf("%w: %s", ErrBinaryContent, path)
	}
	return string(data), nil
}

func (f *FileFetcher) path(rawURL string) (string, error) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		path = u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + u.Path
		}
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}

	path = filepath.FromSlash(path)
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	return filepath.Clean(path), nil
}
