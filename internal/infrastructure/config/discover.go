package config

import (
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover returns the sorted names of plugins under root whose files match
// pattern. The plugin name is the first path segment of each match, so
// "*/require.config.json" finds every directory carrying a loader config.
func Discover(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid discovery pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("discover plugins in %s: %w", root, err)
	}

	var names []string
	for _, match := range matches {
		name, _, found := strings.Cut(path.Clean(match), "/")
		if !found || name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
