package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/local-rag-engine/pkg/tools"
)

const ToolNameExecuteCode = "execute_code"

// maxCodeOutput caps the combined stdout/stderr returned to the model.
const maxCodeOutput = 1 * 1024 * 1024

// defaultCodeTimeout bounds one execution's wall clock.
const defaultCodeTimeout = 30 * time.Second

// sensitiveEnvPrefixes are stripped from the child process environment so
// executed code never sees credentials the engine itself was started with.
var sensitiveEnvPrefixes = []string{
	"AWS_", "AZURE_", "GOOGLE_", "GCP_",
	"OPENAI_", "ANTHROPIC_", "GEMINI_",
	"GITHUB_", "GITLAB_",
	"API_KEY", "SECRET", "TOKEN", "PASSWORD", "CREDENTIAL",
	"SSH_AUTH_SOCK",
}

// codeLanguage describes one runnable language: the interpreter invocation
// and the static deny-list applied before anything runs.
type codeLanguage struct {
	cmd      string
	args     []string
	fileName string
	deny     []*regexp.Regexp
}

var codeLanguages = map[string]codeLanguage{
	"python": {
		cmd:      "python3",
		args:     []string{},
		fileName: "snippet.py",
		deny: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bos\.system\b`),
			regexp.MustCompile(`(?i)\bsubprocess\b`),
			regexp.MustCompile(`(?i)\bshutil\.rmtree\b`),
			regexp.MustCompile(`(?i)\b__import__\s*\(\s*['"]ctypes['"]`),
			regexp.MustCompile(`(?i)\bsocket\.`),
		},
	},
	"javascript": {
		cmd:      "node",
		args:     []string{},
		fileName: "snippet.js",
		deny: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bchild_process\b`),
			regexp.MustCompile(`(?i)\bprocess\.binding\b`),
			regexp.MustCompile(`(?i)\brequire\s*\(\s*['"]net['"]`),
			regexp.MustCompile(`(?i)\brequire\s*\(\s*['"]fs['"]\s*\)\s*\.\s*rm`),
		},
	},
	"bash": {
		cmd:      "bash",
		args:     []string{},
		fileName: "snippet.sh",
		deny: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f`),
			regexp.MustCompile(`(?i)\bmkfs\b`),
			regexp.MustCompile(`(?i)\bdd\s+if=`),
			regexp.MustCompile(`(?i):\(\)\s*\{\s*:\|:&\s*\}\s*;`),
			regexp.MustCompile(`(?i)\bcurl\b.*\|\s*(ba)?sh`),
		},
	},
}

// CodeExecTool runs short model-authored snippets in a scratch directory.
// Each execution gets a fresh temp dir as its working directory, a
// credential-stripped environment, a static safety pre-check, a wall-clock
// timeout, and output truncation.
type CodeExecTool struct {
	tools.BaseToolSet
	timeout time.Duration

	mu   sync.Mutex
	dirs []string
}

var _ tools.ToolSet = (*CodeExecTool)(nil)

type CodeExecOpt func(*CodeExecTool)

func WithCodeTimeout(d time.Duration) CodeExecOpt {
	return func(t *CodeExecTool) { t.timeout = d }
}

func NewCodeExecTool(opts ...CodeExecOpt) *CodeExecTool {
	t := &CodeExecTool{timeout: defaultCodeTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type ExecuteCodeArgs struct {
	Language string `json:"language" jsonschema:"Language to run: python, javascript or bash"`
	Code     string `json:"code" jsonschema:"Source code of the snippet to execute"`
	Timeout  int    `json:"timeout,omitempty" jsonschema:"Execution timeout in seconds (default: 30)"`
}

func (t *CodeExecTool) Instructions() string {
	return "Use " + ToolNameExecuteCode + " to run short python, javascript or bash snippets. " +
		"Each run starts in an empty scratch directory with no access to the engine's credentials; " +
		"code matching known destructive patterns is rejected before execution, and runs are stopped at the timeout."
}

func (t *CodeExecTool) Tools(context.Context) ([]tools.Tool, error) {
	return []tools.Tool{{
		Name:        ToolNameExecuteCode,
		Category:    "code",
		Description: "Execute a code snippet (python, javascript or bash) in an isolated scratch directory and return its combined output.",
		Parameters:  tools.MustSchemaFor[ExecuteCodeArgs](),
		Handler:     NewHandler(t.handleExecute),
		Annotations: tools.ToolAnnotation{
			Title: "Execute code",
		},
	}}, nil
}

// Stop removes the scratch directories accumulated by this tool instance.
func (t *CodeExecTool) Stop(context.Context) error {
	t.mu.Lock()
	dirs := t.dirs
	t.dirs = nil
	t.mu.Unlock()

	for _, dir := range dirs {
		_ = os.RemoveAll(dir)
	}
	return nil
}

func (t *CodeExecTool) handleExecute(ctx context.Context, args ExecuteCodeArgs) (*tools.ToolCallResult, error) {
	lang, ok := codeLanguages[strings.ToLower(args.Language)]
	if !ok {
		return tools.ResultError(fmt.Sprintf("unsupported language %q (supported: python, javascript, bash)", args.Language)), nil
	}
	if strings.TrimSpace(args.Code) == "" {
		return tools.ResultError("code must not be empty"), nil
	}
	if pattern := checkCodeSafety(lang, args.Code); pattern != "" {
		return tools.ResultError(fmt.Sprintf("code rejected by safety check: matches forbidden pattern %q", pattern)), nil
	}

	timeout := t.timeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}

	workDir, err := os.MkdirTemp("", "engine-exec-*")
	if err != nil {
		return tools.ResultError(fmt.Sprintf("creating scratch directory: %s", err)), nil
	}
	t.mu.Lock()
	t.dirs = append(t.dirs, workDir)
	t.mu.Unlock()

	scriptPath := filepath.Join(workDir, lang.fileName)
	if err := os.WriteFile(scriptPath, []byte(args.Code), 0o600); err != nil {
		return tools.ResultError(fmt.Sprintf("writing snippet: %s", err)), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, lang.cmd, append(lang.args, scriptPath)...)
	cmd.Dir = workDir
	cmd.Env = scrubEnv(os.Environ())

	var outBuf bytes.Buffer
	lw := &limitedWriter{buf: &outBuf, maxSize: maxCodeOutput}
	cmd.Stdout = lw
	cmd.Stderr = lw

	runErr := cmd.Run()

	output := outBuf.String()
	if lw.truncated() {
		output += "\n[output truncated at 1MB]"
	}

	switch {
	case timeoutCtx.Err() == context.DeadlineExceeded:
		return tools.ResultError(fmt.Sprintf("execution timed out after %s\n%s", timeout, output)), nil
	case runErr != nil:
		return tools.ResultError(fmt.Sprintf("execution failed: %s\n%s", runErr, output)), nil
	default:
		if output == "" {
			output = "(no output)"
		}
		return tools.ResultSuccess(output), nil
	}
}

// checkCodeSafety returns the first forbidden pattern the snippet matches,
// or "" when the static pre-check passes.
func checkCodeSafety(lang codeLanguage, code string) string {
	for _, re := range lang.deny {
		if re.MatchString(code) {
			return re.String()
		}
	}
	return ""
}

// scrubEnv drops every variable whose name starts with, or contains, one of
// the sensitive prefixes.
func scrubEnv(env []string) []string {
	kept := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(name)
		sensitive := false
		for _, prefix := range sensitiveEnvPrefixes {
			if strings.HasPrefix(upper, prefix) || strings.Contains(upper, prefix) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			kept = append(kept, kv)
		}
	}
	return kept
}

// limitedWriter stops retaining output after maxSize bytes while still
// reporting full writes, so the child process never blocks on a full pipe.
type limitedWriter struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	written int64
	maxSize int64
	clipped bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.written >= lw.maxSize {
		lw.clipped = true
		return len(p), nil
	}

	remaining := lw.maxSize - lw.written
	toWrite := min(int64(len(p)), remaining)

	n, err := lw.buf.Write(p[:toWrite])
	lw.written += int64(n)
	if int64(n) < int64(len(p)) {
		lw.clipped = true
	}
	if err == nil {
		return len(p), nil
	}
	return n, err
}

func (lw *limitedWriter) truncated() bool {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.clipped
}
