package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/model/provider"
)

// Intent classifies a user message so the engine can decide whether to run
// retrieval at all, and how to shape it.
type Intent string

const (
	IntentSearch         Intent = "search"
	IntentCodeGeneration Intent = "code_generation"
	IntentGeneral        Intent = "general"
	IntentAgentCreation  Intent = "agent_creation"
	IntentToolAction     Intent = "tool_action"
)

// RouteResult is the router's verdict on a single message. RewrittenQuery is
// never empty: callers can always use it in place of the original.
type RouteResult struct {
	Intent         Intent
	RewrittenQuery string
	Variants       []string
	Reasoning      string
}

// Router classifies and rewrites the latest user message, trying an LLM
// first and falling back to deterministic rules when no LLM is configured
// or the LLM call fails or returns something unparsable. This mirrors the
// rule-based-fallback shape of pkg/model/provider/rulebased, generalised
// from model selection to query routing.
type Router struct {
	llm    provider.Provider
	logger *slog.Logger
}

// NewRouter builds a Router. llm may be nil, in which case routing always
// uses the rule-based path.
func NewRouter(llm provider.Provider, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{llm: llm, logger: logger}
}

// Route classifies query in the context of history (most recent last).
func (r *Router) Route(ctx context.Context, history []chat.Message, query string) RouteResult {
	if r.llm != nil {
		if res, ok := r.routeWithLLM(ctx, history, query); ok {
			return res
		}
		r.logger.Debug("llm router unavailable, falling back to rule-based router")
	}
	return r.routeWithRules(history, query)
}

const routerSystemPrompt = `You classify a user's message into exactly one of: search, code_generation, general, agent_creation, tool_action.
You also resolve pronouns against the recent conversation and, for "search" intent, produce 1 to 3 rewritten query variants suitable for a retrieval system.
Respond with a single JSON object: {"intent": "...", "rewritten_query": "...", "variants": ["..."], "reasoning": "..."}.
rewritten_query must never be empty; if nothing needs rewriting, repeat the original message.`

type routerLLMResponse struct {
	Intent         string   `json:"intent"`
	RewrittenQuery string   `json:"rewritten_query"`
	Variants       []string `json:"variants"`
	Reasoning      string   `json:"reasoning"`
}

func (r *Router) routeWithLLM(ctx context.Context, history []chat.Message, query string) (RouteResult, bool) {
	messages := make([]chat.Message, 0, len(history)+2)
	messages = append(messages, chat.Message{Role: chat.MessageRoleSystem, Content: routerSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: query})

	raw, err := r.llm.CreateChatCompletion(ctx, messages)
	if err != nil {
		r.logger.Warn("router LLM call failed", "error", err)
		return RouteResult{}, false
	}

	raw = extractJSONObject(raw)
	var parsed routerLLMResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.logger.Warn("router LLM response unparsable", "error", err)
		return RouteResult{}, false
	}

	intent := Intent(parsed.Intent)
	if !intent.valid() {
		return RouteResult{}, false
	}
	rewritten := parsed.RewrittenQuery
	if rewritten == "" {
		rewritten = query
	}
	return RouteResult{
		Intent:         intent,
		RewrittenQuery: rewritten,
		Variants:       dedupeNonEmpty(append([]string{rewritten}, parsed.Variants...)),
		Reasoning:      parsed.Reasoning,
	}, true
}

func (i Intent) valid() bool {
	switch i {
	case IntentSearch, IntentCodeGeneration, IntentGeneral, IntentAgentCreation, IntentToolAction:
		return true
	}
	return false
}

// extractJSONObject trims leading/trailing prose some models wrap JSON in.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

var (
	codeVerbs  = regexp.MustCompile(`(?i)\b(write|generate|implement|refactor|fix|debug)\b.*\b(function|code|class|script|bug|test)\b`)
	agentVerbs = regexp.MustCompile(`(?i)\b(create|build|define|make)\b.*\bagent\b`)
	toolVerbs  = regexp.MustCompile(`(?i)\b(run|execute|call|invoke)\b`)
	questionRe = regexp.MustCompile(`(?i)\b(what|who|where|when|why|how|which)\b|\?\s*$`)
)

func (r *Router) routeWithRules(history []chat.Message, query string) RouteResult {
	rewritten := resolvePronouns(history, query)

	var intent Intent
	var reasoning string
	switch {
	case agentVerbs.MatchString(query):
		intent, reasoning = IntentAgentCreation, "matched agent-creation verb pattern"
	case codeVerbs.MatchString(query):
		intent, reasoning = IntentCodeGeneration, "matched code-generation verb pattern"
	case toolVerbs.MatchString(query):
		intent, reasoning = IntentToolAction, "matched tool-action verb pattern"
	case questionRe.MatchString(query):
		intent, reasoning = IntentSearch, "matched question/search pattern"
	default:
		intent, reasoning = IntentGeneral, "no pattern matched, defaulting to general"
	}

	result := RouteResult{Intent: intent, RewrittenQuery: rewritten, Reasoning: reasoning}
	if intent == IntentSearch {
		result.Variants = searchVariants(rewritten)
	}
	return result
}

var pronouns = map[string]bool{
	"he": true, "him": true, "his": true, "she": true, "her": true, "hers": true,
	"it": true, "its": true, "they": true, "them": true, "their": true, "this": true, "that": true,
}

// resolvePronouns replaces pronouns in query with the first capitalised word
// (lowercased) of the most recent user message in history, naively
// approximating coreference resolution for follow-up questions. A
// capitalised sentence-initial word counts as that word as well.
func resolvePronouns(history []chat.Message, query string) string {
	entity := lastCapitalizedEntity(history)
	if entity == "" {
		return query
	}

	words := strings.Fields(query)
	changed := false
	for i, w := range words {
		bare := strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !isLetter(r) }))
		if pronouns[bare] {
			words[i] = entity
			changed = true
		}
	}
	if !changed {
		return query
	}
	return strings.TrimRight(strings.Join(words, " "), "?! ")
}

func lastCapitalizedEntity(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != chat.MessageRoleUser {
			continue
		}
		for _, w := range strings.Fields(history[i].Content) {
			trimmed := strings.TrimFunc(w, func(r rune) bool { return !isLetter(r) })
			if len(trimmed) > 1 && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
				return strings.ToLower(trimmed)
			}
		}
	}
	return ""
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// searchVariants produces one or two query variants: the rewritten query
// itself, plus a content-word-only variant when it differs.
func searchVariants(query string) []string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []string{query}
	}
	condensed := strings.Join(tokens, " ")
	return dedupeNonEmpty([]string{query, condensed})
}

func dedupeNonEmpty(variants []string) []string {
	seen := make(map[string]bool, len(variants))
	var out []string
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == 3 {
			break
		}
	}
	return out
}
