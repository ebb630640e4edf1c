// Package store persists chunks with their embeddings and serves the
// approximate-nearest-neighbour and filtered-scan queries the retrieval
// engine issues, built as a sqlite-backed vector store
// (pkg/rag/strategy/chunked_embeddings_database.go) but implemented against
// pkg/chunk.Chunk directly. doc_id and space_id are indexed columns; the
// remaining metadata (file_path, page_number, ...) and the citation line
// range are stored as JSON text and filtered in Go by Predicate.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/engineerr"
	"github.com/docker/local-rag-engine/pkg/sqliteutil"
)

// Hit is one scored result from Search, List, or Neighbours.
type Hit struct {
	Chunk chunk.Chunk
	Score float64 // cosine similarity in [0,1]; 0 for non-vector queries
}

// Predicate filters rows by recognised metadata keys. A zero-value field is
// not applied. This gives callers SQL-like metadata filtering without a
// full expression language: space_id plus the recognised metadata keys are
// the only fields a caller can filter on, and nothing in the engine needs
// user-authored filter expressions.
type Predicate struct {
	SpaceID      string
	DocID        string
	FileType     string
	FileExtension string
}

func (p Predicate) matches(c chunk.Chunk) bool {
	if p.SpaceID != "" && c.SpaceID != p.SpaceID {
		return false
	}
	if p.DocID != "" && c.DocID != p.DocID {
		return false
	}
	if p.FileType != "" && c.Metadata["file_type"] != p.FileType {
		return false
	}
	if p.FileExtension != "" && c.Metadata["file_extension"] != p.FileExtension {
		return false
	}
	return true
}

// annThreshold is the row count above which Search consults the in-memory
// flat index cached by scan instead of re-reading SQLite. Both
// paths are exact nearest-neighbour and return identical results; the
// threshold only decides when keeping the warm in-memory copy is worth the
// rebuild cost on writes.
const annThreshold = 1000

// Store is the vector store: persistent chunk rows behind a
// reader/writer lock, with an optional in-memory flat index once the row
// count crosses annThreshold.
type Store struct {
	db  *sql.DB
	dim int

	mu    sync.RWMutex
	index []indexedChunk // built lazily once count() >= annThreshold
}

type indexedChunk struct {
	chunk.Chunk
	vector []float64
}

// Open opens or creates a vector store at path with the declared embedding dimension.
func Open(path string, dim int) (*Store, error) {
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	s := &Store{db: db, dim: dim}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	contextualized_text TEXT NOT NULL,
	title TEXT,
	source TEXT,
	heading TEXT,
	space_id TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	citation TEXT NOT NULL DEFAULT '{}',
	vector BLOB NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_chunks_space ON chunks(space_id);
`)
	return err
}

// Upsert inserts or replaces a batch of chunks atomically: either every row
// lands or none does, and a vector whose length doesn't match the store's
// declared dimension fails the whole batch.
func (s *Store) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	for _, c := range chunks {
		if v := c.Vector; v != nil && s.dim != 0 && len(v) != s.dim {
			return &engineerr.IndexFailedError{Reason: fmt.Sprintf("chunk %s: vector length %d != store dimension %d", c.ID, len(v), s.dim)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, doc_id, chunk_index, text, contextualized_text, title, source, heading, space_id, metadata, citation, vector, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	doc_id=excluded.doc_id, chunk_index=excluded.chunk_index, text=excluded.text,
	contextualized_text=excluded.contextualized_text, title=excluded.title, source=excluded.source,
	heading=excluded.heading, space_id=excluded.space_id, metadata=excluded.metadata,
	citation=excluded.citation, vector=excluded.vector, created_at=excluded.created_at
`)
	if err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	defer stmt.Close()

	for _, c := range chunks {
		metaJSON, _ := json.Marshal(c.Metadata)
		citJSON, _ := json.Marshal(c.Citation)
		vecBytes := encodeVector(c.Vector)
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.ChunkIndex, c.Text, c.ContextualizedText,
			c.Title, c.Source, c.Heading, c.SpaceID, string(metaJSON), string(citJSON), vecBytes,
			createdAt.Format(time.RFC3339Nano)); err != nil {
			return &engineerr.IndexFailedError{Reason: err.Error()}
		}
	}

	if err := tx.Commit(); err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}

	s.mu.Lock()
	s.index = nil // invalidate; rebuilt lazily on next Search past the threshold
	s.mu.Unlock()
	return nil
}

// Search returns up to k hits ranked by cosine similarity descending,
// scored as 1-distance clipped to [0,1], optionally restricted by predicate.
func (s *Store) Search(ctx context.Context, vector []float64, k int, pred Predicate) ([]Hit, error) {
	rows, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		if !pred.matches(r.Chunk) {
			continue
		}
		if r.vector == nil {
			continue
		}
		hits = append(hits, Hit{Chunk: r.Chunk, Score: cosineScore(vector, r.vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return dedupeByID(hits), nil
}

// List scans by predicate without a vector, honouring limit (0 = unbounded).
func (s *Store) List(ctx context.Context, pred Predicate, limit int) ([]Hit, error) {
	rows, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	for _, r := range rows {
		if pred.matches(r.Chunk) {
			hits = append(hits, Hit{Chunk: r.Chunk})
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Neighbours returns chunks from the same document within window positions
// of chunkIndex, excluding the centre, sorted by chunk index ascending.
func (s *Store) Neighbours(ctx context.Context, docID string, chunkIndex, window int) ([]Hit, error) {
	rows, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	for _, r := range rows {
		if r.DocID != docID || r.ChunkIndex == chunkIndex {
			continue
		}
		if abs(r.ChunkIndex-chunkIndex) <= window {
			hits = append(hits, Hit{Chunk: r.Chunk})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Chunk.ChunkIndex < hits[j].Chunk.ChunkIndex })
	return hits, nil
}

// DeleteByDoc removes every chunk with the given doc_id.
func (s *Store) DeleteByDoc(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
	return nil
}

// DeleteBySpace removes every chunk belonging to spaceID.
func (s *Store) DeleteBySpace(ctx context.Context, spaceID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE space_id = ?", spaceID); err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
	return nil
}

// Clear removes every chunk.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return &engineerr.IndexFailedError{Reason: err.Error()}
	}
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
	return nil
}

// Count returns the total row count.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountDocuments returns the number of distinct doc_ids.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT doc_id) FROM chunks").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountSpaces returns the number of distinct non-empty space_ids.
func (s *Store) CountSpaces(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT space_id) FROM chunks WHERE space_id != ''").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// scan returns every row, using the cached in-memory index once the table
// is large enough to amortise rebuilding it (see annThreshold); below the
// threshold it re-reads SQLite directly so writes are visible immediately.
func (s *Store) scan(ctx context.Context) ([]indexedChunk, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n < annThreshold {
		return s.readAll(ctx)
	}

	s.mu.RLock()
	cached := s.index
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.index = rows
	s.mu.Unlock()
	return rows, nil
}

func (s *Store) readAll(ctx context.Context) ([]indexedChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, doc_id, chunk_index, text, contextualized_text, title, source, heading, space_id, metadata, citation, vector, created_at
FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []indexedChunk
	for rows.Next() {
		var (
			c                        chunk.Chunk
			metaJSON, citJSON        string
			vecBytes                 []byte
			createdAt                string
		)
		if err := rows.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.Text, &c.ContextualizedText,
			&c.Title, &c.Source, &c.Heading, &c.SpaceID, &metaJSON, &citJSON, &vecBytes, &createdAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
		_ = json.Unmarshal([]byte(citJSON), &c.Citation)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			c.CreatedAt = t
		}
		out = append(out, indexedChunk{Chunk: c, vector: decodeVector(vecBytes)})
	}
	return out, rows.Err()
}

func dedupeByID(hits []Hit) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Chunk.ID]; ok {
			continue
		}
		seen[h.Chunk.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}

func cosineScore(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// distance = 1-cos; score = 1-distance = cos, clipped to [0,1].
	switch {
	case cos < 0:
		return 0
	case cos > 1:
		return 1
	default:
		return cos
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func encodeVector(v []float64) []byte {
	if v == nil {
		return nil
	}
	b := make([]byte, len(v)*8)
	for i, f := range v {
		bits := math.Float64bits(f)
		for j := 0; j < 8; j++ {
			b[i*8+j] = byte(bits >> (8 * j))
		}
	}
	return b
}

func decodeVector(b []byte) []float64 {
	if len(b) == 0 || len(b)%8 != 0 {
		return nil
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		var bits uint64
		for j := 0; j < 8; j++ {
			bits |= uint64(b[i*8+j]) << (8 * j)
		}
		v[i] = math.Float64frombits(bits)
	}
	return v
}
