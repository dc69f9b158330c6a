// Package tool holds the tool catalog and the dispatcher that validates,
// executes and audits every invocation.
package tool

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Tool is one callable operation. Execute may return partial data together
// with an error.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Write() bool
	Execute(ctx context.Context, args Args) (any, error)
}

// Definition is what a transport advertises for a tool.
type Definition struct {
	Name        string
	Description string
	Schema      Schema
	Write       bool
}

// Registry holds all available tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", zap.String("name", t.Name()), zap.Bool("write", t.Write()))
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions lists every tool sorted by name, each schema carrying the
// common skip_log argument.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      withSkipLog(t.Schema()),
			Write:       t.Write(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func withSkipLog(s Schema) Schema {
	out := make(Schema, 0, len(s)+1)
	out = append(out, s...)
	return append(out, Param{
		Name:        SkipLogParam,
		Type:        TypeBoolean,
		Description: "Do not write an audit record for this call",
		Default:     false,
	})
}

// funcTool adapts a plain function to Tool.
type funcTool struct {
	name        string
	description string
	schema      Schema
	write       bool
	run         func(ctx context.Context, args Args) (any, error)
}

func (f *funcTool) Name() string        { return f.name }
func (f *funcTool) Description() string { return f.description }
func (f *funcTool) Schema() Schema      { return f.schema }
func (f *funcTool) Write() bool         { return f.write }

func (f *funcTool) Execute(ctx context.Context, args Args) (any, error) {
	return f.run(ctx, args)
}
