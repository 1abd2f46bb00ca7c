package sandbox

import (
	"net/url"
	"path"
	"strings"
)

// Locator maps module names to source URLs the way RequireJS does. Names
// that end in .js, carry a query, or are absolute are used verbatim.
// Otherwise the longest matching Paths prefix is substituted, the name gets
// a .js extension and is joined to BaseURL unless the substitution made it
// absolute.
type Locator struct {
	BaseURL string
	Paths   map[string]string
}

// Locate returns the URL of the named module.
func (l Locator) Locate(name string) string {
	if isLiteral(name) {
		return name
	}

	name = l.substitute(name)
	if !strings.HasSuffix(name, ".js") {
		name += ".js"
	}
	if isAbsolute(name) {
		return name
	}
	return join(l.BaseURL, name)
}

func (l Locator) substitute(name string) string {
	best := ""
	for prefix := range l.Paths {
		if (name == prefix || strings.HasPrefix(name, prefix+"/")) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return name
	}
	return l.Paths[best] + strings.TrimPrefix(name, best)
}

// isLiteral reports names that are already URLs or script paths.
func isLiteral(name string) bool {
	return strings.HasSuffix(name, ".js") || strings.Contains(name, "?") || isAbsolute(name)
}

func isAbsolute(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	u, err := url.Parse(name)
	return err == nil && u.Scheme != "" && len(u.Scheme) > 1
}

func join(base, name string) string {
	if base == "" {
		return path.Clean(name)
	}
	if u, err := url.Parse(base); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		u.Path = path.Join(u.Path, name)
		return u.String()
	}
	return path.Join(base, name)
}
