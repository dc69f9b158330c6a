package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "search.maxCount").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. String values are
// decoded as YAML scalars, so "false", "50" and "30s" land as the right types.
func SetByPath(cfg *Config, path string, value string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, p := range parts[:len(parts)-1] {
		child, ok := parent[p]
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot traverse into %T at %s", child, p)
		}
		parent = childMap
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	parent[parts[len(parts)-1]] = parsed

	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	next := Defaults()
	if err := yaml.Unmarshal(data, next); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = *next
	return nil
}

// Sanitize returns a copy of the config with credentials masked.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	cp.Slack.WebToken = maskString(cp.Slack.WebToken)
	cp.Slack.CookieToken = maskString(cp.Slack.CookieToken)
	cp.Writes.AllowChannels = append([]string(nil), cfg.Writes.AllowChannels...)
	cp.Writes.DenyChannels = append([]string(nil), cfg.Writes.DenyChannels...)
	return &cp
}

// maskString shows the first and last 4 chars, masks the rest.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 12 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns all config paths with their current values, sorted.
func ListPaths(cfg *Config) []PathValue {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flattenMap("", m, result)

	out := make([]PathValue, 0, len(result))
	for k, v := range result {
		out = append(out, PathValue{Path: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

type PathValue struct {
	Path  string
	Value any
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenMap(path, val, result)
		default:
			result[path] = val
		}
	}
}
