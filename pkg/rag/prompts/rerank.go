// Package prompts builds the prompt pair for LLM-based reranking.
package prompts

import (
	"fmt"
	"strings"

	"github.com/docker/local-rag-engine/pkg/rag/types"
)

// BuildRerankDocumentsPrompt lays out the query and the numbered candidate
// documents, annotating each with its source path and metadata so the model
// can weigh context, not just text.
func BuildRerankDocumentsPrompt(query string, documents []types.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query:\n%s\n\nDocuments:\n", query)

	for i, doc := range documents {
		fmt.Fprintf(&b, "[%d]", i)
		if annotation := describeDocument(doc); annotation != "" {
			fmt.Fprintf(&b, " (%s)", annotation)
		}
		fmt.Fprintf(&b, ":\n%s\n\n", doc.Content)
	}
	return b.String()
}

func describeDocument(doc types.Document) string {
	var parts []string
	if doc.SourcePath != "" {
		parts = append(parts, "source: "+doc.SourcePath)
	}
	for key, value := range doc.Metadata {
		parts = append(parts, key+": "+value)
	}
	return strings.Join(parts, ", ")
}

// BuildRerankSystemPrompt assembles the scoring instructions: the base
// prompt, any caller criteria, and the provider's JSON format instruction.
// ProviderOpts["rerank_prompt"] replaces the whole thing when set.
func BuildRerankSystemPrompt(documents []types.Document, criteria string, providerOpts map[string]any, jsonFormatInstruction string) string {
	if override, ok := providerOpts["rerank_prompt"].(string); ok && strings.TrimSpace(override) != "" {
		return override
	}

	var b strings.Builder
	b.WriteString(`You are a reranking model.
Given a search query and a list of documents, you assign each document a relevance score between 0 and 1.
Higher scores mean more relevant.`)

	if criteria != "" {
		b.WriteString("\n\n" + criteria)
	}

	fmt.Fprintf(&b, `

You MUST carefully evaluate each document's relevance and assign DIFFERENT scores to reflect varying degrees of relevance.
Not all documents are equally relevant - differentiate between them.
%s

IMPORTANT: You have been given %d documents, so you MUST return exactly %d scores in the "scores" array.
Each score must be a number between 0 and 1, where 1 is most relevant.`,
		jsonFormatInstruction, len(documents), len(documents))

	return b.String()
}
