package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
	// AgentOnly marks functions that only make sense when a remote agent
	// session is active; they are declared but withheld from chat providers.
	AgentOnly bool `json:"-"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args map[string]any) (string, error)
}

type Registry struct {
	tools       map[string]Tool
	definitions []ToolDefinition
}

func NewRegistry(tools ...Tool) *Registry {
	bucket := make(map[string]Tool, len(tools))
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		bucket[def.Function.Name] = tool
		defs = append(defs, def)
	}
	return &Registry{tools: bucket, definitions: defs}
}

func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Run dispatches a named function with JSON-encoded arguments. It fails when
// the function is unknown or the arguments do not decode.
func (r *Registry) Run(ctx context.Context, name, argsJSON string) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown function %s", name)
	}
	args := map[string]any{}
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("parse arguments for %s: %w", name, err)
		}
	}
	return tool.Call(ctx, args)
}

// Options configures the default tool set.
type Options struct {
	WorkspaceRoot string
	ShellTimeout  time.Duration
	WebTimeout    time.Duration
}

// DefaultTools wires the builtin tool set against a workspace root.
func DefaultTools(opts Options) ([]Tool, error) {
	guard, err := newPathGuard(opts.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	shellTimeout := opts.ShellTimeout
	if shellTimeout <= 0 {
		shellTimeout = 60 * time.Second
	}
	return []Tool{
		ReadFileTool{guard: guard},
		ListFilesTool{guard: guard},
		MakeDirTool{guard: guard},
		&WriteFileTool{guard: guard},
		&PatchFileTool{guard: guard},
		SearchFilesTool{guard: guard},
		&ShellTool{guard: guard, timeout: shellTimeout},
		NewWebSearchTool(opts.WebTimeout),
		NewWebBrowseTool(opts.WebTimeout),
	}, nil
}

// pathGuard confines tool file access to the workspace root.
type pathGuard struct {
	root string
}

func newPathGuard(root string) (pathGuard, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return pathGuard{}, err
	}
	return pathGuard{root: abs}, nil
}

func (p pathGuard) Resolve(path string) (string, error) {
	var target string
	if path == "" {
		target = p.root
	} else if filepath.IsAbs(path) {
		target = path
	} else {
		target = filepath.Join(p.root, path)
	}
	cleaned, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(p.root, cleaned)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the workspace root", path)
	}
	return cleaned, nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	switch cast := val.(type) {
	case string:
		return cast, true
	default:
		return fmt.Sprintf("%v", cast), true
	}
}

func intArg(args map[string]any, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch cast := val.(type) {
	case int:
		return cast
	case float64:
		return int(cast)
	default:
		return defaultVal
	}
}

func boolArg(args map[string]any, key string, defaultVal bool) bool {
	val, ok := args[key]
	if !ok {
		return defaultVal
	}
	if cast, ok := val.(bool); ok {
		return cast
	}
	return defaultVal
}
