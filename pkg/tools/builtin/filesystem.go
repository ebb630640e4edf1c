package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/docker/local-rag-engine/pkg/tools"
)

// FilesystemTool exposes sandboxed file operations to agents. Every
// operation is confined to the allowed directories given at construction;
// paths outside them produce a tool error the model can read. The check is
// lexical (filepath.Abs, no symlink resolution), so a symbolic link inside
// an allowed directory is followed wherever it points.
type FilesystemTool struct {
	tools.BaseToolSet
	allowedDirectories []string
	allowedTools       []string
}

type FileSystemOpt func(*FilesystemTool)

// WithAllowedTools restricts the toolset to the named tools.
func WithAllowedTools(allowedTools []string) FileSystemOpt {
	return func(t *FilesystemTool) {
		t.allowedTools = allowedTools
	}
}

func NewFilesystemTool(allowedDirectories []string, opts ...FileSystemOpt) *FilesystemTool {
	t := &FilesystemTool{allowedDirectories: allowedDirectories}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FilesystemTool) Instructions() string {
	return `## Filesystem Tool Instructions

### Security Model

All operations are restricted to the allowed directories and their
subdirectories; use list_allowed_directories to see them.

- Check that a directory exists before creating files in it
- Use directory_tree (with max_depth) to explore unfamiliar structures
- Prefer read_multiple_files over repeated read_file calls
- Use search_files_content to find specific code or text
- Use exclude patterns to keep searches out of heavy directories`
}

// failf wraps a failure message as tool output so the model sees it as
// part of the conversation instead of an aborted call.
func failf(format string, a ...any) (*tools.ToolCallResult, error) {
	return &tools.ToolCallResult{Output: fmt.Sprintf(format, a...)}, nil
}

// decodeArgs parses a tool call's JSON arguments into args.
func decodeArgs(toolCall tools.ToolCall, args any) error {
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), args); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	return nil
}

func (t *FilesystemTool) Tools(context.Context) ([]tools.Tool, error) {
	tls := []tools.Tool{
		{
			Name:        "create_directory",
			Description: "Create a new directory or ensure a directory exists. Can create multiple nested directories in one operation.",
			Annotations: tools.ToolAnnotation{
				Title: "Create Directory",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to create",
					},
				},
				Required: []string{"path"},
			},
			Handler: t.handleCreateDirectory,
		},
		{
			Name:        "directory_tree",
			Description: "Get a recursive tree view of files and directories as a JSON structure.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "Directory Tree",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to traverse",
					},
					"max_depth": map[string]any{
						"type":        "number",
						"description": "Maximum depth to traverse (optional)",
					},
				},
				Required: []string{"path"},
			},
			Handler: t.handleDirectoryTree,
		},
		{
			Name:        "edit_file",
			Description: "Make line-based edits to a text file. Each edit replaces exact line sequences with new content.",
			Annotations: tools.ToolAnnotation{
				Title: "Edit File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file path to edit",
					},
					"edits": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"oldText": map[string]any{
									"type":        "string",
									"description": "The exact text to replace",
								},
								"newText": map[string]any{
									"type":        "string",
									"description": "The replacement text",
								},
							},
							"required": []string{"oldText", "newText"},
						},
						"description": "Array of edit operations",
					},
					"dryRun": map[string]any{
						"type":        "boolean",
						"description": "If true, preview changes without applying them",
					},
				},
				Required: []string{"path", "edits"},
			},
			Handler: t.handleEditFile,
		},
		{
			Name:        "get_file_info",
			Description: "Retrieve detailed metadata about a file or directory.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "Get File Info",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file or directory path to inspect",
					},
				},
				Required: []string{"path"},
			},
			Handler: t.handleGetFileInfo,
		},
		{
			Name:        "list_allowed_directories",
			Description: "Returns a list of directories that the server has permission to access. Don't call if you access only the current working directory. It's always allowed.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "List Allowed Directories",
			},
			Handler: t.handleListAllowedDirectories,
		},
		{
			Name:        "list_directory",
			Description: "Get a detailed listing of all files and directories in a specified path.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "List Directory",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to list",
					},
				},
				Required: []string{"path"},
			},
			Handler: t.handleListDirectory,
		},
		{
			Name:        "list_directory_with_sizes",
			Description: "Get a detailed listing of all files and directories in a specified path, including sizes.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "List Directory With Sizes",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to list",
					},
				},
				Required: []string{"path"},
			},
			Handler: t.handleListDirectoryWithSizes,
		},
		{
			Name:        "move_file",
			Description: "Move or rename files and directories.",
			Annotations: tools.ToolAnnotation{
				Title: "Move File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"source": map[string]any{
						"type":        "string",
						"description": "The source path",
					},
					"destination": map[string]any{
						"type":        "string",
						"description": "The destination path",
					},
				},
				Required: []string{"source", "destination"},
			},
			Handler: t.handleMoveFile,
		},
		{
			Name:        "read_file",
			Description: "Read the complete contents of a file from the file system.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "Read File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file path to read",
					},
				},
				Required: []string{"path"},
			},
			Handler: t.handleReadFile,
		},
		{
			Name:        "read_multiple_files",
			Description: "Read the contents of multiple files simultaneously.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "Read Multiple Files",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"paths": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "string",
						},
						"description": "Array of file paths to read",
					},
				},
				Required: []string{"paths"},
			},
			Handler: t.handleReadMultipleFiles,
		},
		{
			Name:        "search_files",
			Description: "Recursively search for files and directories matching a pattern. Prints the full paths of matching files and the total number of files found.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "Search Files",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The starting directory path",
					},
					"pattern": map[string]any{
						"type":        "string",
						"description": "The search pattern",
					},
					"excludePatterns": map[string]any{
						"type":        "array",
						"description": "Patterns to exclude from search",
						"items": map[string]any{
							"type": "string",
						},
					},
				},
				Required: []string{"path", "pattern"},
			},
			Handler: t.handleSearchFiles,
		},
		{
			Name:        "search_files_content",
			Description: "Searches for text or regex patterns in the content of every file under a directory that no exclude pattern matches; file names are not filtered by a glob.",
			Annotations: tools.ToolAnnotation{
				ReadOnlyHint: true,
				Title:        "Search Files Content",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The starting directory path",
					},
					"query": map[string]any{
						"type":        "string",
						"description": "The text or regex pattern to search for",
					},
					"is_regex": map[string]any{
						"type":        "boolean",
						"description": "If true, treat query as regex; otherwise literal text",
					},
					"excludePatterns": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "string",
						},
						"description": "Patterns to exclude from search",
					},
				},
				Required: []string{"path", "query"},
			},
			Handler: t.handleSearchFilesContent,
		},
		{
			Name:        "write_file",
			Description: "Create a new file or completely overwrite an existing file with new content.",
			Annotations: tools.ToolAnnotation{
				Title: "Write File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file path to write",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The content to write to the file",
					},
				},
				Required: []string{"path", "content"},
			},
			Handler: t.handleWriteFile,
		},
	}

	if len(t.allowedTools) == 0 {
		return tls, nil
	}

	filtered := make([]tools.Tool, 0, len(tls))
	for _, tool := range tls {
		if slices.Contains(t.allowedTools, tool.Name) {
			filtered = append(filtered, tool)
		}
	}
	return filtered, nil
}

// isPathAllowed confines path to the allowed directory roots.
func (t *FilesystemTool) isPathAllowed(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("unable to resolve absolute path: %w", err)
	}

	for _, allowedDir := range t.allowedDirectories {
		allowedAbs, err := filepath.Abs(allowedDir)
		if err != nil {
			continue
		}
		if absPath == allowedAbs || strings.HasPrefix(absPath, strings.TrimSuffix(allowedAbs, string(filepath.Separator))+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path %s is not within allowed directories", path)
}

// Handler implementations

func (t *FilesystemTool) handleCreateDirectory(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	if err := os.MkdirAll(args.Path, 0o755); err != nil {
		return failf("Error creating directory: %s", err)
	}
	return tools.ResultSuccess(fmt.Sprintf("Directory created successfully: %s", args.Path)), nil
}

// TreeNode is the JSON shape directory_tree renders.
type TreeNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`
}

func (t *FilesystemTool) handleDirectoryTree(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path     string `json:"path"`
		MaxDepth *int   `json:"max_depth"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	tree, err := t.buildDirectoryTree(args.Path, args.MaxDepth, 0)
	if err != nil {
		return failf("Error building directory tree: %s", err)
	}

	rendered, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return failf("Error formatting tree: %s", err)
	}
	return tools.ResultSuccess(string(rendered)), nil
}

func (t *FilesystemTool) buildDirectoryTree(path string, maxDepth *int, currentDepth int) (*TreeNode, error) {
	if maxDepth != nil && currentDepth >= *maxDepth {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	node := &TreeNode{Name: filepath.Base(path), Type: "file"}
	if !info.IsDir() {
		return node, nil
	}

	node.Type = "directory"
	node.Children = []*TreeNode{}
	entries, err := os.ReadDir(path)
	if err != nil {
		return node, nil //nolint:nilerr // partial tree on ReadDir failure
	}
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		if t.isPathAllowed(childPath) != nil {
			continue
		}
		childNode, err := t.buildDirectoryTree(childPath, maxDepth, currentDepth+1)
		if err != nil || childNode == nil {
			continue
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}

func (t *FilesystemTool) handleEditFile(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText string `json:"oldText"`
			NewText string `json:"newText"`
		} `json:"edits"`
		DryRun bool `json:"dryRun"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return failf("Error reading file: %s", err)
	}

	modified := string(content)
	var changes []string
	for i, edit := range args.Edits {
		if !strings.Contains(modified, edit.OldText) {
			return tools.ResultSuccess(fmt.Sprintf("Edit %d failed: old text not found", i+1)), nil
		}
		modified = strings.Replace(modified, edit.OldText, edit.NewText, 1)
		changes = append(changes, fmt.Sprintf("Edit %d: Replaced %d characters", i+1, len(edit.OldText)))
	}

	if args.DryRun {
		return tools.ResultSuccess(fmt.Sprintf("Dry run completed. Changes:\n%s", strings.Join(changes, "\n"))), nil
	}
	if err := os.WriteFile(args.Path, []byte(modified), 0o644); err != nil {
		return failf("Error writing file: %s", err)
	}
	return tools.ResultSuccess(fmt.Sprintf("File edited successfully. Changes:\n%s", strings.Join(changes, "\n"))), nil
}

func (t *FilesystemTool) handleGetFileInfo(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	info, err := os.Stat(args.Path)
	if err != nil {
		return failf("Error getting file info: %s", err)
	}

	rendered, err := json.MarshalIndent(map[string]any{
		"name":    info.Name(),
		"size":    info.Size(),
		"mode":    info.Mode().String(),
		"modTime": info.ModTime().Format(time.RFC3339),
		"isDir":   info.IsDir(),
	}, "", "  ")
	if err != nil {
		return failf("Error formatting file info: %s", err)
	}
	return tools.ResultSuccess(string(rendered)), nil
}

func (t *FilesystemTool) handleListAllowedDirectories(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
	rendered, err := json.MarshalIndent(t.allowedDirectories, "", "  ")
	if err != nil {
		return failf("Error formatting directories: %s", err)
	}
	return tools.ResultSuccess(string(rendered)), nil
}

func (t *FilesystemTool) handleListDirectory(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	return t.listDirectory(toolCall, false)
}

func (t *FilesystemTool) handleListDirectoryWithSizes(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	return t.listDirectory(toolCall, true)
}

// listDirectory renders one DIR/FILE line per entry, with byte sizes when
// asked for.
func (t *FilesystemTool) listDirectory(toolCall tools.ToolCall, withSizes bool) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	entries, err := os.ReadDir(args.Path)
	if err != nil {
		return failf("Error reading directory: %s", err)
	}

	var out strings.Builder
	for _, entry := range entries {
		switch {
		case entry.IsDir():
			fmt.Fprintf(&out, "DIR  %s\n", entry.Name())
		case withSizes:
			info, err := entry.Info()
			if err != nil {
				continue
			}
			fmt.Fprintf(&out, "FILE %s (%d bytes)\n", entry.Name(), info.Size())
		default:
			fmt.Fprintf(&out, "FILE %s\n", entry.Name())
		}
	}
	return tools.ResultSuccess(out.String()), nil
}

func (t *FilesystemTool) handleMoveFile(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Source); err != nil {
		return failf("Error (source): %s", err)
	}
	if err := t.isPathAllowed(args.Destination); err != nil {
		return failf("Error (destination): %s", err)
	}

	if _, err := os.Stat(args.Destination); err == nil {
		return tools.ResultError("destination already exists"), nil
	}
	if err := os.Rename(args.Source, args.Destination); err != nil {
		return failf("Error moving file: %s", err)
	}
	return tools.ResultSuccess(fmt.Sprintf("Successfully moved %s to %s", args.Source, args.Destination)), nil
}

func (t *FilesystemTool) handleReadFile(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return failf("Error reading file: %s", err)
	}
	return tools.ResultSuccess(string(content)), nil
}

func (t *FilesystemTool) handleReadMultipleFiles(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Paths []string `json:"paths"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}

	var out strings.Builder
	for _, path := range args.Paths {
		if err := t.isPathAllowed(path); err != nil {
			fmt.Fprintf(&out, "=== %s ===\nError: %s\n\n", path, err)
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(&out, "=== %s ===\nError reading file: %s\n\n", path, err)
			continue
		}
		fmt.Fprintf(&out, "=== %s ===\n%s\n\n", path, string(content))
	}
	return tools.ResultSuccess(out.String()), nil
}

// walkIncluded walks root, pruning disallowed paths and exclude-pattern
// matches, and calls visit for every surviving entry.
func (t *FilesystemTool) walkIncluded(root string, excludePatterns []string, visit func(path string, d fs.DirEntry)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors and continue
		}
		if t.isPathAllowed(path) != nil {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		for _, exclude := range excludePatterns {
			if matchExcludePattern(exclude, rel) {
				return nil
			}
		}

		visit(path, d)
		return nil
	})
}

func (t *FilesystemTool) handleSearchFiles(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path            string   `json:"path"`
		Pattern         string   `json:"pattern"`
		ExcludePatterns []string `json:"excludePatterns"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	pattern := strings.ToLower(args.Pattern)
	var matches []string
	err := t.walkIncluded(args.Path, args.ExcludePatterns, func(path string, _ fs.DirEntry) {
		if match(pattern, filepath.Base(path)) {
			matches = append(matches, path)
		}
	})
	if err != nil {
		return failf("Error searching files: %s", err)
	}

	if len(matches) == 0 {
		return tools.ResultSuccess("No files found"), nil
	}
	return tools.ResultSuccess(fmt.Sprintf("%d files found:\n%s", len(matches), strings.Join(matches, "\n"))), nil
}

func (t *FilesystemTool) handleSearchFilesContent(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path            string   `json:"path"`
		Query           string   `json:"query"`
		IsRegex         bool     `json:"is_regex"`
		ExcludePatterns []string `json:"excludePatterns"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	var regex *regexp.Regexp
	if args.IsRegex {
		var err error
		regex, err = regexp.Compile(args.Query)
		if err != nil {
			return failf("Invalid regex pattern: %s", err)
		}
	}

	// findInLine reports the match bounds in line, if any.
	findInLine := func(line string) (start, end int, ok bool) {
		if args.IsRegex {
			if loc := regex.FindStringIndex(line); loc != nil {
				return loc[0], loc[1], true
			}
			return 0, 0, false
		}
		if idx := strings.Index(line, args.Query); idx != -1 {
			return idx, idx + len(args.Query), true
		}
		return 0, 0, false
	}

	var results []string
	err := t.walkIncluded(args.Path, args.ExcludePatterns, func(path string, d fs.DirEntry) {
		if d.IsDir() {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return
		}
		for lineNum, line := range strings.Split(string(content), "\n") {
			start, end, ok := findInLine(line)
			if !ok {
				continue
			}
			preview := line
			if len(preview) > 100 {
				preview = preview[max(start-20, 0):min(end+20, len(preview))]
			}
			results = append(results, fmt.Sprintf("%s:%d:%d: %s", path, lineNum+1, start+1, preview))
		}
	})
	if err != nil {
		return failf("Error searching file contents: %s", err)
	}

	if len(results) == 0 {
		return tools.ResultSuccess("No results found"), nil
	}
	return tools.ResultSuccess(strings.Join(results, "\n")), nil
}

func (t *FilesystemTool) handleWriteFile(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeArgs(toolCall, &args); err != nil {
		return nil, err
	}
	if err := t.isPathAllowed(args.Path); err != nil {
		return failf("Error: %s", err)
	}

	if err := os.WriteFile(args.Path, []byte(args.Content), 0o644); err != nil {
		return failf("Error writing file: %s", err)
	}
	return tools.ResultSuccess(fmt.Sprintf("File written successfully: %s (%d bytes)", args.Path, len(args.Content))), nil
}

// match accepts either a glob match on name or a case-insensitive substring
// match, so bare words behave like the search the model expects.
func match(pattern, name string) bool {
	if matched, _ := filepath.Match(pattern, name); matched {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

// matchExcludePattern reports whether relPath is excluded by pattern. A
// trailing "/*" excludes the named directory and everything under it; other
// patterns are globbed against the full relative path, its base name, and
// each path component, so "node_modules" prunes the whole tree below it.
func matchExcludePattern(pattern, relPath string) bool {
	relPath = filepath.ToSlash(relPath)

	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
			return true
		}
	}

	if matched, _ := filepath.Match(pattern, relPath); matched {
		return true
	}
	for part := range strings.SplitSeq(relPath, "/") {
		if matched, _ := filepath.Match(pattern, part); matched {
			return true
		}
	}
	return false
}
