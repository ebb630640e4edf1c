package retrieval

import (
	"sort"
	"strings"

	"github.com/docker/local-rag-engine/pkg/store"
)

// tokenize splits s into lowercase word tokens longer than two characters,
// stripped of non-alphanumeric runes.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if len(lower) > 2 {
			out = append(out, lower)
		}
	}
	return out
}

// ContentBoost re-scores hits by counting query-token occurrences in chunk
// text and in file-path metadata, then re-sorts descending with a stable
// tie-break, so a chunk cannot win solely by matching the query in its file
// path rather than its content.
func ContentBoost(query string, hits []store.Hit) []store.Hit {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return hits
	}

	boosted := make([]store.Hit, len(hits))
	copy(boosted, hits)

	for i, h := range boosted {
		text := strings.ToLower(h.Chunk.Text)
		path := strings.ToLower(h.Chunk.Metadata["file_path"])

		var textHits, pathOnlyHits int
		for _, tok := range tokens {
			inText := strings.Contains(text, tok)
			inPath := strings.Contains(path, tok)
			if inText {
				textHits++
			}
			if inPath && !inText {
				pathOnlyHits++
			}
		}
		boosted[i].Score += 0.5*float64(textHits) + 0.05*float64(pathOnlyHits)
	}

	sort.SliceStable(boosted, func(i, j int) bool { return boosted[i].Score > boosted[j].Score })
	return boosted
}
