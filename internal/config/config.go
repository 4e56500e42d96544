// Package config holds the target configuration: which executable to use
// per tool, whether to mirror output to the console, and the USB invocation
// delay. The file format is YAML; consumers read it through a flat,
// string-keyed attribute view with dotted keys ("avrdude.command",
// "usbdelay"), falling back to per-tool defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TargetConfig is one named hardware setup. The zero value is not usable;
// construct with New or Load.
type TargetConfig struct {
	attrs    map[string]string
	defaults map[string]string
}

// New returns an empty configuration backed by the given defaults.
func New(defaults map[string]string) *TargetConfig {
	return &TargetConfig{
		attrs:    make(map[string]string),
		defaults: defaults,
	}
}

// DefaultConfigDir returns the default config directory (~/.avrbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".avrbridge"
	}
	return filepath.Join(home, ".avrbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a YAML configuration file, expands ${VAR} / ${VAR:-default}
// references, and flattens the document into dotted attribute keys.
func Load(path string, defaults map[string]string) (*TargetConfig, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	data = []byte(ExpandEnvVars(string(data)))

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg := New(defaults)
	flatten("", doc, cfg.attrs)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Attribute returns the configured value for key, or the default, or the
// empty string. Absent attributes are not an error.
func (c *TargetConfig) Attribute(key string) string {
	if value, ok := c.attrs[key]; ok {
		return value
	}
	return c.defaults[key]
}

// BoolAttribute parses the attribute as a boolean; absent or malformed
// values are false.
func (c *TargetConfig) BoolAttribute(key string) bool {
	b, err := strconv.ParseBool(c.Attribute(key))
	if err != nil {
		return false
	}
	return b
}

// Set stores an explicit attribute value, shadowing any default.
func (c *TargetConfig) Set(key, value string) {
	c.attrs[key] = value
}

// Attributes returns the merged view of defaults and explicit values,
// keyed by dotted attribute name.
func (c *TargetConfig) Attributes() map[string]string {
	merged := make(map[string]string, len(c.defaults)+len(c.attrs))
	for key, value := range c.defaults {
		merged[key] = value
	}
	for key, value := range c.attrs {
		merged[key] = value
	}
	return merged
}

// Keys returns the merged attribute keys in sorted order.
func (c *TargetConfig) Keys() []string {
	merged := c.Attributes()
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the explicit attributes (not the defaults) back as a nested
// YAML document.
func (c *TargetConfig) Save(path string) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(nest(c.attrs))
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the values the invoker cannot tolerate being malformed.
func Validate(c *TargetConfig) error {
	var errs []string

	if delay := c.Attribute("usbdelay"); delay != "" {
		n, err := strconv.Atoi(delay)
		if err != nil {
			errs = append(errs, fmt.Sprintf("usbdelay %q is not a number", delay))
		} else if n < 0 {
			errs = append(errs, "usbdelay must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// flatten turns a nested YAML document into dotted string attributes.
// Scalars are rendered to their string form; the attribute consumers parse
// what they need themselves.
func flatten(prefix string, m map[string]any, out map[string]string) {
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(path, v, out)
		case nil:
			out[path] = ""
		default:
			out[path] = fmt.Sprintf("%v", v)
		}
	}
}

// nest rebuilds a nested document from dotted attributes for saving.
func nest(attrs map[string]string) map[string]any {
	doc := make(map[string]any)
	for key, value := range attrs {
		parts := strings.Split(key, ".")
		node := doc
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return doc
}
