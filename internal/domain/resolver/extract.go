package resolver

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnparsableSource reports module source without a define([...]) declaration.
var ErrUnparsableSource = errors.New("no dependency declaration in module source")

// declPattern matches the first dependency list of an AMD define call,
// optionally preceded by a module name literal.
var declPattern = regexp.MustCompile(`(?s)define\(\s*(?:["'][^"']*["']\s*,\s*)?\[(.*?)\]`)

var ignorable = map[string]struct{}{
	"module":  {},
	"require": {},
	"exports": {},
}

// IsIgnorable reports whether name is a loader-provided pseudo-dependency.
func IsIgnorable(name string) bool {
	_, ok := ignorable[name]
	return ok
}

// ExtractDependencies returns the names declared in the first define([...])
// call of source, in declaration order. require() calls inside function
// bodies are not discovered.
func ExtractDependencies(source string) ([]string, error) {
	m := declPattern.FindStringSubmatch(source)
	if m == nil {
		return nil, ErrUnparsableSource
	}

	var deps []string
	for _, part := range strings.Split(m[1], ",") {
		dep := strings.Trim(strings.TrimSpace(part), "\"'`")
		if dep != "" {
			deps = append(deps, dep)
		}
	}
	return deps, nil
}
