package store

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/engineerr"
)

// TextIndex is the lexical inverted index over chunk ContextualizedText,
// built on bleve (the same index already backing the rule-based router)
// rather than a hand-rolled BM25 implementation.
type TextIndex struct {
	mu  sync.Mutex
	idx bleve.Index
}

type indexedDoc struct {
	DocID      string `json:"doc_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// OpenTextIndex builds an empty in-memory bleve index. The index is not
// persisted and is not repopulated from the vector store when the engine
// starts: it holds only the chunks indexed since the process started.
func OpenTextIndex() (*TextIndex, error) {
	idx, err := bleve.NewMemOnly(newTextIndexMapping())
	if err != nil {
		return nil, &engineerr.IndexFailedError{Reason: err.Error()}
	}
	return &TextIndex{idx: idx}, nil
}

// newTextIndexMapping maps indexedDoc for search: bleve names fields after
// the json tags, and doc_id must be a keyword field so DeleteByDoc matches
// ids exactly instead of through the standard analyzer.
func newTextIndexMapping() mapping.IndexMapping {
	docID := bleve.NewKeywordFieldMapping()
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("doc_id", docID)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index adds or replaces a chunk's contextualized text in the index.
func (t *TextIndex) Index(c chunk.Chunk) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc := indexedDoc{DocID: c.DocID, ChunkIndex: c.ChunkIndex, Text: c.ContextualizedText}
	if err := t.idx.Index(c.ID, doc); err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	return nil
}

// IndexBatch indexes many chunks, stopping at the first failure (batches
// are small relative to bleve's own internal batching so no partial-commit
// guarantee is needed beyond "index what succeeded so far").
func (t *TextIndex) IndexBatch(chunks []chunk.Chunk) error {
	for _, c := range chunks {
		if err := t.Index(c); err != nil {
			return err
		}
	}
	return nil
}

// TextHit is one lexical search result.
type TextHit struct {
	ID    string
	Score float64
}

// Search runs a match query against contextualized text, returning up to k
// hits ordered by score descending, ties broken by insertion order (bleve's
// default docID tiebreak, which is stable for equal scores).
func (t *TextIndex) Search(q string, k int) ([]TextHit, error) {
	if q == "" {
		return nil, nil
	}
	mq := bleve.NewMatchQuery(q)
	return t.runQuery(mq, k)
}

// SearchPhrase runs an exact phrase query.
func (t *TextIndex) SearchPhrase(phrase string, k int) ([]TextHit, error) {
	pq := bleve.NewMatchPhraseQuery(phrase)
	return t.runQuery(pq, k)
}

// SearchPrefix runs a prefix query against the text field.
func (t *TextIndex) SearchPrefix(prefix string, k int) ([]TextHit, error) {
	pq := bleve.NewPrefixQuery(prefix)
	pq.SetField("text")
	return t.runQuery(pq, k)
}

func (t *TextIndex) runQuery(q query.Query, k int) ([]TextHit, error) {
	if k <= 0 {
		k = 10
	}
	req := bleve.NewSearchRequestOptions(q, k, 0, false)

	t.mu.Lock()
	res, err := t.idx.Search(req)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("text index search: %w", err)
	}

	hits := make([]TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, TextHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// DeleteByDoc removes every indexed chunk belonging to docID.
func (t *TextIndex) DeleteByDoc(docID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := bleve.NewTermQuery(docID)
	q.SetField("doc_id")
	req := bleve.NewSearchRequestOptions(q, 10000, 0, false)
	res, err := t.idx.Search(req)
	if err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	for _, h := range res.Hits {
		if err := t.idx.Delete(h.ID); err != nil {
			return &engineerr.IndexFailedError{Reason: err.Error()}
		}
	}
	return nil
}

// Clear removes every document from the index by rebuilding it empty.
func (t *TextIndex) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.idx.Close(); err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	idx, err := bleve.NewMemOnly(newTextIndexMapping())
	if err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	t.idx = idx
	return nil
}

// Close releases index resources.
func (t *TextIndex) Close() error { return t.idx.Close() }
