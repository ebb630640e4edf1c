// Package permissions decides whether an agent's tool call may run without
// user involvement, based on configurable allow/deny patterns.
package permissions

import (
	"fmt"
	"path/filepath"
	"strings"

	latest "github.com/docker/local-rag-engine/pkg/config"
)

// Decision is the outcome of a permission check.
type Decision int

const (
	// Ask means the tool requires user approval (the default).
	Ask Decision = iota
	// Allow means the tool is auto-approved without user confirmation.
	Allow
	// Deny means the tool is rejected and must not be executed.
	Deny
)

func (d Decision) String() string {
	switch d {
	case Ask:
		return "ask"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// rule is one configured pattern, parsed once at construction: a glob over
// the tool name plus zero or more globs over named arguments.
type rule struct {
	source      string
	toolPattern string
	argPatterns map[string]string
}

// matches reports whether the rule covers the call. Every argument pattern
// must match; a rule with argument conditions never matches an
// argument-less check.
func (r rule) matches(toolName string, args map[string]any) bool {
	if !matchGlob(r.toolPattern, toolName) {
		return false
	}
	if len(r.argPatterns) == 0 {
		return true
	}
	if args == nil {
		return false
	}
	for argName, argPattern := range r.argPatterns {
		argValue, exists := args[argName]
		if !exists || !matchGlob(argPattern, argToString(argValue)) {
			return false
		}
	}
	return true
}

// Checker evaluates tool calls against the configured rules. Deny rules
// always win over allow rules; anything unmatched falls through to Ask.
type Checker struct {
	allow []rule
	deny  []rule
}

// NewChecker compiles the config's patterns. A nil config yields a checker
// that answers Ask for everything.
func NewChecker(cfg *latest.PermissionsConfig) *Checker {
	if cfg == nil {
		return &Checker{}
	}
	return &Checker{
		allow: compile(cfg.Allow),
		deny:  compile(cfg.Deny),
	}
}

func compile(patterns []string) []rule {
	rules := make([]rule, 0, len(patterns))
	for _, pattern := range patterns {
		toolPattern, argPatterns := parsePattern(pattern)
		rules = append(rules, rule{source: pattern, toolPattern: toolPattern, argPatterns: argPatterns})
	}
	return rules
}

// Check evaluates a tool call without arguments.
func (c *Checker) Check(toolName string) Decision {
	return c.CheckWithArgs(toolName, nil)
}

// CheckWithArgs evaluates a tool call with its decoded arguments. toolName
// may be qualified ("mcp:github:create_issue"); patterns may constrain
// arguments ("shell:cmd=ls*") and use globs in both positions.
func (c *Checker) CheckWithArgs(toolName string, args map[string]any) Decision {
	for _, r := range c.deny {
		if r.matches(toolName, args) {
			return Deny
		}
	}
	for _, r := range c.allow {
		if r.matches(toolName, args) {
			return Allow
		}
	}
	return Ask
}

// IsEmpty reports whether no rules are configured.
func (c *Checker) IsEmpty() bool {
	return len(c.allow) == 0 && len(c.deny) == 0
}

// AllowPatterns returns the configured allow patterns.
func (c *Checker) AllowPatterns() []string {
	return sources(c.allow)
}

// DenyPatterns returns the configured deny patterns.
func (c *Checker) DenyPatterns() []string {
	return sources(c.deny)
}

func sources(rules []rule) []string {
	if len(rules) == 0 {
		return nil
	}
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.source
	}
	return out
}

// parsePattern splits "toolname:arg1=val1:arg2=val2" into the tool-name
// glob and the argument globs. The split happens at the first ":key=value"
// segment, so tool names containing colons ("mcp:github:create_issue")
// stay intact.
func parsePattern(pattern string) (toolPattern string, argPatterns map[string]string) {
	argPatterns = make(map[string]string)

	parts := strings.Split(pattern, ":")
	toolParts := []string{parts[0]}
	for _, part := range parts[1:] {
		if key, value, found := strings.Cut(part, "="); found && key != "" {
			argPatterns[key] = value
		} else if len(argPatterns) == 0 {
			// No "=" and no argument seen yet: still part of the tool name.
			toolParts = append(toolParts, part)
		}
		// A "="-less part after the first argument is silently dropped.
	}

	return strings.Join(toolParts, ":"), argPatterns
}

// argToString renders a decoded JSON argument for glob matching. Whole
// float64s print as integers so "timeout=30" matches the number 30.
func argToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return fmt.Sprintf("%t", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int, int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// matchGlob matches value against a case-insensitive glob. A trailing "*"
// on an otherwise glob-free pattern is treated as a plain prefix match:
// filepath.Match's "*" stops at separators, but "sudo*" must match
// "sudo rm -rf /".
func matchGlob(pattern, value string) bool {
	pattern = strings.ToLower(pattern)
	value = strings.ToLower(value)

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok && !strings.HasSuffix(pattern, "\\*") {
		if !strings.ContainsAny(prefix, "*?[") {
			return strings.HasPrefix(value, prefix)
		}
	}

	matched, err := filepath.Match(pattern, value)
	return err == nil && matched
}
