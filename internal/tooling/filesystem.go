package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errEntryLimit = errors.New("entry limit reached")

// ReadFileTool returns the contents of a text file inside the workspace.
type ReadFileTool struct {
	guard pathGuard
}

func (ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "read_file",
			Description: "Read the contents of a UTF-8 text file. The path must stay within the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to read, relative to the workspace root.",
					},
					"max_bytes": map[string]any{
						"type":        "integer",
						"description": "Maximum number of bytes to return (default 65536).",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (r ReadFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("path is required")
	}
	abs, err := r.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	maxBytes := intArg(args, "max_bytes", 64*1024)
	truncated := false
	if maxBytes > 0 && len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}
	payload := map[string]any{
		"path":      abs,
		"content":   string(data),
		"truncated": truncated,
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ListFilesTool lists directory entries within the workspace.
type ListFilesTool struct {
	guard pathGuard
}

func (ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "list_directory",
			Description: "List files within a directory, optionally recursively. All paths are constrained inside the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory path to list (default workspace root).",
					},
					"recursive": map[string]any{
						"type":        "boolean",
						"description": "Whether to walk subdirectories.",
					},
					"max_entries": map[string]any{
						"type":        "integer",
						"description": "Maximum number of entries to return (default 200).",
					},
				},
			},
		},
	}
}

func (l ListFilesTool) Call(ctx context.Context, args map[string]any) (string, error) {
	target := ""
	if provided, ok := stringArg(args, "path"); ok {
		target = provided
	}
	root, err := l.guard.Resolve(target)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	recursive := boolArg(args, "recursive", false)
	maxEntries := intArg(args, "max_entries", 200)
	if maxEntries <= 0 {
		maxEntries = 200
	}

	type entry struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	results := make([]entry, 0, maxEntries)
	truncated := false

	addEntry := func(path string, isDir bool) bool {
		if len(results) >= maxEntries {
			truncated = true
			return false
		}
		rel, relErr := filepath.Rel(l.guard.root, path)
		if relErr != nil {
			rel = path
		}
		if rel == "." {
			return true
		}
		results = append(results, entry{Path: rel, Type: typeOf(isDir)})
		return true
	}

	if recursive {
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if path == root {
				return nil
			}
			if !addEntry(path, d.IsDir()) {
				return errEntryLimit
			}
			return nil
		})
		if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, errEntryLimit) {
			return "", walkErr
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if !addEntry(filepath.Join(root, e.Name()), e.IsDir()) {
				break
			}
		}
	}

	payload := map[string]any{
		"path":      root,
		"entries":   results,
		"truncated": truncated,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func typeOf(isDir bool) string {
	if isDir {
		return "dir"
	}
	return "file"
}

// MakeDirTool creates directories inside the workspace.
type MakeDirTool struct {
	guard pathGuard
}

func (MakeDirTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "make_directory",
			Description: "Create a directory (including parents) inside the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the directory to create.",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (m MakeDirTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	path, ok := stringArg(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	abs, err := m.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"created": %q}`, abs), nil
}

// WriteFileTool writes the full contents of a file inside the workspace.
type WriteFileTool struct {
	guard pathGuard
}

func (*WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "write_file",
			Description: "Write text content to a file, replacing anything already there. Parent directories are created as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to write, relative to the workspace root.",
					},
					"contents": map[string]any{
						"type":        "string",
						"description": "The content to write to the file.",
					},
				},
				"required": []string{"path", "contents"},
			},
		},
	}
}

func (t *WriteFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	path, ok := stringArg(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	contents, ok := stringArg(args, "contents")
	if !ok {
		return "", errors.New("contents is required")
	}
	abs, err := t.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(contents), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"wrote": %d}`, len(contents)), nil
}

// PatchFileTool replaces the first occurrence of a search string in a file.
type PatchFileTool struct {
	guard pathGuard
}

func (*PatchFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "patch_file",
			Description: "Patch a file by replacing a search string with a replacement string. The search string must be present; only the first occurrence is replaced.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to patch.",
					},
					"search": map[string]any{
						"type":        "string",
						"description": "The string to search for.",
					},
					"replace": map[string]any{
						"type":        "string",
						"description": "The string to replace with.",
					},
				},
				"required": []string{"path", "search", "replace"},
			},
		},
	}
}

func (t *PatchFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("path is required")
	}
	search, ok := stringArg(args, "search")
	if !ok {
		return "", errors.New("search is required")
	}
	replace, ok := stringArg(args, "replace")
	if !ok {
		return "", errors.New("replace is required")
	}
	abs, err := t.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	content := string(data)
	if !strings.Contains(content, search) {
		return "", fmt.Errorf("search string not found in %s", path)
	}
	updated := strings.Replace(content, search, replace, 1)
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return "", err
	}
	return `{"success": true}`, nil
}

// SearchFilesTool scans files under a directory for a substring.
type SearchFilesTool struct {
	guard pathGuard
}

func (SearchFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "search_files",
			Description: "Search for text in files (substring search), optionally filtered by a filename substring.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory to search in.",
					},
					"text": map[string]any{
						"type":        "string",
						"description": "The text to search for.",
					},
					"file_pattern": map[string]any{
						"type":        "string",
						"description": "Substring match on filenames to narrow the scan.",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of matches to return (default 100).",
					},
				},
				"required": []string{"path", "text"},
			},
		},
	}
}

func (s SearchFilesTool) Call(ctx context.Context, args map[string]any) (string, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("path is required")
	}
	text, ok := stringArg(args, "text")
	if !ok || text == "" {
		return "", errors.New("text is required")
	}
	filePattern, _ := stringArg(args, "file_pattern")
	maxResults := intArg(args, "max_results", 100)
	if maxResults <= 0 {
		maxResults = 100
	}

	root, err := s.guard.Resolve(path)
	if err != nil {
		return "", err
	}

	var results []string
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}
		if filePattern != "" && !strings.Contains(p, filePattern) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), text) {
			rel, relErr := filepath.Rel(s.guard.root, p)
			if relErr != nil {
				rel = p
			}
			results = append(results, rel)
			if len(results) >= maxResults {
				return errEntryLimit
			}
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errEntryLimit) && !errors.Is(walkErr, context.Canceled) {
		return "", walkErr
	}

	payload := map[string]any{"results": results}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
