package plugin

import "strings"

// DefaultEntryModuleName is the entry module used when none is configured.
const DefaultEntryModuleName = "main"

// EntryModuleStrategy names the entry module of a plugin.
type EntryModuleStrategy interface {
	EntryModule(plugin string) string
}

// ContextPathStrategy names the base location of a plugin's modules.
type ContextPathStrategy interface {
	ContextPath(plugin string) string
}

// EntryModuleFunc adapts a function to EntryModuleStrategy.
type EntryModuleFunc func(plugin string) string

// EntryModule calls f.
func (f EntryModuleFunc) EntryModule(plugin string) string { return f(plugin) }

// ContextPathFunc adapts a function to ContextPathStrategy.
type ContextPathFunc func(plugin string) string

// ContextPath calls f.
func (f ContextPathFunc) ContextPath(plugin string) string { return f(plugin) }

// DefaultEntryModule gives every plugin the same entry module.
type DefaultEntryModule struct {
	Name string
}

// EntryModule returns Name, or DefaultEntryModuleName when Name is empty.
func (d DefaultEntryModule) EntryModule(string) string {
	if d.Name == "" {
		return DefaultEntryModuleName
	}
	return d.Name
}

// BaseURLContextPath places each plugin in a directory named after it under BaseURL.
type BaseURLContextPath struct {
	BaseURL string
}

// ContextPath returns BaseURL joined with the plugin name.
func (b BaseURLContextPath) ContextPath(plugin string) string {
	base := strings.TrimSuffix(b.BaseURL, "/")
	if base == "" {
		return plugin
	}
	return base + "/" + plugin
}

// MapEntryModule uses per-plugin overrides and falls back to Fallback.
type MapEntryModule struct {
	Overrides map[string]string
	Fallback  EntryModuleStrategy
}

// EntryModule returns the override for plugin, else the fallback's choice.
func (m MapEntryModule) EntryModule(plugin string) string {
	if entry, ok := m.Overrides[plugin]; ok && entry != "" {
		return entry
	}
	if m.Fallback == nil {
		return DefaultEntryModuleName
	}
	return m.Fallback.EntryModule(plugin)
}

// MapContextPath uses per-plugin overrides and falls back to Fallback.
type MapContextPath struct {
	Overrides map[string]string
	Fallback  ContextPathStrategy
}

// ContextPath returns the override for plugin, else the fallback's choice.
func (m MapContextPath) ContextPath(plugin string) string {
	if path, ok := m.Overrides[plugin]; ok && path != "" {
		return path
	}
	if m.Fallback == nil {
		return BaseURLContextPath{}.ContextPath(plugin)
	}
	return m.Fallback.ContextPath(plugin)
}
