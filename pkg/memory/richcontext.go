package memory

import "time"

// ConversationAxis captures the conversational facet of a RichContext: what
// the exchange is about, what was just said, and what the agent currently
// believes the user wants.
type ConversationAxis struct {
	Topic         string
	LastMessages  []string
	Entities      []string
	ActiveIntents []string
}

// RichContext is the multi-axis context record attached
// to an Experience: one field per facet the memory system reasons over,
// plus a parent link so contexts can nest (a sub-task's context pointing
// back at the task that spawned it) and an optional embedding for
// similarity-mode retrieval.
type RichContext struct {
	Conversation ConversationAxis
	User         map[string]string
	Project      map[string]string
	Temporal     time.Time
	Semantic     map[string]string
	Code         map[string]string
	Document     map[string]string
	Environment  map[string]string

	// ParentID references another Experience's MemoryId rather than
	// embedding the parent directly, so contexts nest without the cyclic
	// ownership cycle a direct pointer would risk.
	ParentID  MemoryID
	Embedding []float64
	DecayRate float64
}
