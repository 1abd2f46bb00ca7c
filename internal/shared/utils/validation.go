// Package utils holds small validation helpers shared across the host.
package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String length limits
const (
	MaxPluginNameLength = 128
	MaxModuleNameLength = 512
)

var (
	// PluginNamePattern allows alphanumeric, dots, hyphens, underscores
	PluginNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidatePluginName checks that name is usable as a single path segment.
func ValidatePluginName(name string) error {
	if err := ValidateString(name, "plugin name", 1, MaxPluginNameLength, true); err != nil {
		return err
	}
	if !PluginNamePattern.MatchString(name) {
		return fmt.Errorf("plugin name %q contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("plugin name %q must not start with a dot", name)
	}
	return nil
}

// ValidateModuleName checks a module name published in the global namespace.
func ValidateModuleName(name string) error {
	if err := ValidateString(name, "module name", 1, MaxModuleNameLength, true); err != nil {
		return err
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("module name %q must not have surrounding whitespace", name)
	}
	return nil
}
