package memory

import (
	"regexp"
	"time"
)

// RetrievalMode selects how retrieve(query) ranks candidate Memories.
type RetrievalMode string

const (
	RetrieveSimilarity  RetrievalMode = "similarity"
	RetrieveTemporal    RetrievalMode = "temporal"
	RetrieveCausal      RetrievalMode = "causal"
	RetrieveAssociative RetrievalMode = "associative"
	RetrieveHybrid      RetrievalMode = "hybrid"
)

// ForgetCriteria is the evaluated form of a forget(criteria) call: any
// combination of the three named predicates may be set, and a Memory is
// forgotten when it matches all of them.
type ForgetCriteria struct {
	olderThan     time.Duration
	hasOlderThan  bool
	importanceMax float64
	hasImportance bool
	pattern       *regexp.Regexp
}

// ForgetOption sets one predicate on a ForgetCriteria, mirroring the
// functional-options style pkg/agent.AgentOpt uses for Agent construction.
type ForgetOption func(*ForgetCriteria)

// OlderThan matches memories created more than the given number of days ago.
func OlderThan(days int) ForgetOption {
	d := time.Duration(days) * 24 * time.Hour
	return func(c *ForgetCriteria) {
		c.olderThan = d
		c.hasOlderThan = true
	}
}

// LowImportance matches memories whose importance score is below threshold.
func LowImportance(threshold float64) ForgetOption {
	return func(c *ForgetCriteria) {
		c.importanceMax = threshold
		c.hasImportance = true
	}
}

// Pattern matches memories whose content satisfies the given regular
// expression. An invalid expr is silently ignored, leaving the pattern
// predicate unset, rather than panicking inside a functional option.
func Pattern(expr string) ForgetOption {
	re, err := regexp.Compile(expr)
	return func(c *ForgetCriteria) {
		if err == nil {
			c.pattern = re
		}
	}
}

// NewForgetCriteria evaluates a set of ForgetOptions into a ForgetCriteria.
func NewForgetCriteria(opts ...ForgetOption) ForgetCriteria {
	var c ForgetCriteria
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// matches reports whether m satisfies every predicate set on c. A
// ForgetCriteria with no predicates set matches nothing, so an empty
// forget() call is a no-op rather than wiping every memory.
func (c ForgetCriteria) matches(m Memory, now time.Time) bool {
	matched := false
	if c.hasOlderThan {
		if now.Sub(m.CreatedAt) < c.olderThan {
			return false
		}
		matched = true
	}
	if c.hasImportance {
		if m.Importance >= c.importanceMax {
			return false
		}
		matched = true
	}
	if c.pattern != nil {
		if !c.pattern.MatchString(m.Experience.Content) {
			return false
		}
		matched = true
	}
	return matched
}
