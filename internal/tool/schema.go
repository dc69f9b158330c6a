package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"slackmcp/internal/domain"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// SkipLogParam is accepted by every tool. When true the call leaves no
// audit record.
const SkipLogParam = "skip_log"

// Param describes a single tool argument. Numbers above Max are clamped;
// numbers below Min are rejected.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Enum        []string
	Min         *float64
	Max         *float64
}

func bound(v float64) *float64 { return &v }

// Schema is a tool's full argument list.
type Schema []Param

func (s Schema) lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Validate checks raw against the schema and returns typed arguments with
// defaults applied. Nothing reaches the network before this succeeds.
func (s Schema) Validate(raw map[string]any) (Args, error) {
	var unknown []string
	for key := range raw {
		if _, ok := s.lookup(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, domain.Errorf(domain.KindInvalidArgument, "unknown argument(s): %s", strings.Join(unknown, ", "))
	}

	args := Args{}
	for _, p := range s {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, domain.Errorf(domain.KindInvalidArgument, "missing required argument %q", p.Name)
			}
			if p.Default != nil {
				args[p.Name] = p.Default
			}
			continue
		}
		typed, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		if p.Required && p.Type == TypeString && typed.(string) == "" {
			return nil, domain.Errorf(domain.KindInvalidArgument, "argument %q must not be empty", p.Name)
		}
		args[p.Name] = typed
	}
	return args, nil
}

func coerce(p Param, v any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mistyped(p, v)
		}
		s = strings.TrimSpace(s)
		if len(p.Enum) > 0 && s != "" {
			lower := strings.ToLower(s)
			if !slices.Contains(p.Enum, lower) {
				return nil, domain.Errorf(domain.KindInvalidArgument,
					"argument %q must be one of %s, got %q", p.Name, strings.Join(p.Enum, ", "), s)
			}
			s = lower
		}
		return s, nil

	case TypeNumber:
		n, ok := toFloat(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, mistyped(p, v)
		}
		if p.Min != nil && n < *p.Min {
			return nil, domain.Errorf(domain.KindInvalidArgument,
				"argument %q must be at least %g, got %g", p.Name, *p.Min, n)
		}
		if p.Max != nil && n > *p.Max {
			n = *p.Max
		}
		return n, nil

	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, mistyped(p, v)
			}
			return parsed, nil
		}
		return nil, mistyped(p, v)
	}
	return nil, fmt.Errorf("argument %q: unsupported schema type %q", p.Name, p.Type)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func mistyped(p Param, v any) error {
	return domain.Errorf(domain.KindInvalidArgument, "argument %q must be a %s, got %T", p.Name, p.Type, v)
}

// JSONSchema renders the schema as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	var required []string
	for _, p := range s {
		prop := map[string]any{"type": string(p.Type), "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Args are validated arguments. Accessors return zero values for absent
// optional arguments.
type Args map[string]any

func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Args) Int(key string) int {
	f, _ := toFloat(a[key])
	return int(f)
}

func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}
