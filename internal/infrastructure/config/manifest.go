package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Manifest is the optional plugin manifest file. The format is chosen by
// extension: .json, .yaml/.yml or .toml.
type Manifest struct {
	Plugins      []string          `json:"plugins" yaml:"plugins" toml:"plugins"`
	EntryModules map[string]string `json:"entryModules" yaml:"entryModules" toml:"entryModules"`
	ContextPaths map[string]string `json:"contextPaths" yaml:"contextPaths" toml:"contextPaths"`
	// Shared holds static data modules defined in the global namespace.
	Shared map[string]any `json:"shared" yaml:"shared" toml:"shared"`
}

// LoadManifest reads and decodes the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = sonic.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("manifest %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Apply merges the manifest into the plugin configuration.
// Values already set from the environment take precedence.
func (p *PluginConfig) Apply(m *Manifest) {
	if m == nil {
		return
	}
	p.Names = mergeNames(p.Names, m.Plugins)
	p.EntryOverrides = mergeMap(p.EntryOverrides, m.EntryModules)
	p.ContextOverrides = mergeMap(p.ContextOverrides, m.ContextPaths)
}

func mergeNames(names, extra []string) []string {
	for _, name := range extra {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func mergeMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}
