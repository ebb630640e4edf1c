// Package indexing implements the ingestion pipeline: walking a folder, parsing and chunking
// each file, embedding chunks in passage mode, and upserting the result
// into the vector store and lexical index, with pause/resume/cancel and
// throttled progress events for long-running folder runs.
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/docparse"
	"github.com/docker/local-rag-engine/pkg/engineerr"
	"github.com/docker/local-rag-engine/pkg/fsx"
	"github.com/docker/local-rag-engine/pkg/rag/embed"
	"github.com/docker/local-rag-engine/pkg/store"
)

// progressInterval is the throttle period for ProgressEvent emission.
const progressInterval = 100 * time.Millisecond

// pausePollInterval is how often the folder scheduler re-checks a paused
// State before resuming work.
const pausePollInterval = 100 * time.Millisecond

// Pipeline wires parse -> chunk -> embed (passage mode) ->
// vector upsert + lexical index, the full ingestion data flow.
type Pipeline struct {
	parsers   *docparse.Registry
	chunker   *chunk.Chunker
	embedder  *embed.Embedder
	store     *store.Store
	textIndex *store.TextIndex
}

// New builds a Pipeline from already-constructed components.
func New(parsers *docparse.Registry, chunker *chunk.Chunker, embedder *embed.Embedder, vecStore *store.Store, textIndex *store.TextIndex) *Pipeline {
	return &Pipeline{parsers: parsers, chunker: chunker, embedder: embedder, store: vecStore, textIndex: textIndex}
}

// PreviewResult is a cheap, read-only summary of what index_folder would process.
type PreviewResult struct {
	TotalFiles  int
	FilesByType map[string]int
	Sample      []string
}

const previewSampleSize = 10

// Preview walks folder without parsing or embedding anything, bucketing
// files by extension and returning a small sample for the caller to show
// before committing to a full index_folder run.
func Preview(folder string) (PreviewResult, error) {
	files, err := fsx.CollectFiles([]string{folder}, nil)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("preview: %w", err)
	}

	byType := make(map[string]int)
	for _, f := range files {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f), "."))
		if ext == "" {
			ext = "unknown"
		}
		byType[ext]++
	}

	sample := files
	if len(sample) > previewSampleSize {
		sample = sample[:previewSampleSize]
	}

	return PreviewResult{TotalFiles: len(files), FilesByType: byType, Sample: sample}, nil
}

// FileResult is the outcome of indexing a single file.
type FileResult struct {
	ChunksCreated int
	DurationMS    int64
}

// IndexFile parses, chunks, embeds (passage mode) and upserts one file into
// the vector store and lexical index, in that order. docID is derived
// deterministically from the absolute path so re-indexing the same file
// replaces its chunks rather than duplicating them.
func (p *Pipeline) IndexFile(ctx context.Context, path, spaceID string) (FileResult, error) {
	start := time.Now()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	parser, err := p.parsers.Get(absPath)
	if err != nil {
		return FileResult{}, err
	}
	parsed, err := p.parsers.Parse(ctx, absPath)
	if err != nil {
		return FileResult{}, err
	}

	title := parsed.Metadata.Title
	if title == "" {
		title = filepath.Base(absPath)
	}

	var chunks []chunk.Chunk
	if _, isCode := parser.(*docparse.CodeParser); isCode && len(parsed.Sections) == 1 {
		chunks = p.chunker.ChunkCode(absPath, []byte(parsed.Sections[0].Text), title, absPath)
	} else {
		chunks = p.chunker.ChunkStructured(parsed.Sections, title, absPath)
	}
	if len(chunks) == 0 {
		return FileResult{DurationMS: time.Since(start).Milliseconds()}, nil
	}

	docID := absPath
	fileType := fileTypeFor(parser)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	now := time.Now()

	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].ID = chunk.NewID(docID, i)
		chunks[i].DocID = docID
		chunks[i].ChunkIndex = i
		chunks[i].SpaceID = spaceID
		chunks[i].CreatedAt = now
		enrichMetadata(&chunks[i], absPath, fileType, ext, spaceID)
		texts[i] = "passage: " + chunks[i].ContextualizedText
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return FileResult{}, &engineerr.InferenceFailedError{Reason: err.Error()}
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if err := p.store.Upsert(ctx, chunks); err != nil {
		return FileResult{}, err
	}
	if err := p.textIndex.IndexBatch(chunks); err != nil {
		return FileResult{}, err
	}

	return FileResult{ChunksCreated: len(chunks), DurationMS: time.Since(start).Milliseconds()}, nil
}

// fileTypeFor classifies a file by the parser that handles it, populating
// the recognised metadata["file_type"] key.
func fileTypeFor(p docparse.Parser) string {
	switch p.(type) {
	case *docparse.PDFParser:
		return "pdf"
	case *docparse.DOCXParser:
		return "document"
	case *docparse.XLSXParser:
		return "spreadsheet"
	case *docparse.PPTXParser:
		return "presentation"
	case *docparse.CodeParser:
		return "code"
	default:
		return "text"
	}
}

func enrichMetadata(c *chunk.Chunk, path, fileType, ext, spaceID string) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string, 6)
	}
	c.Metadata["file_path"] = path
	c.Metadata["file_type"] = fileType
	c.Metadata["file_extension"] = ext
	c.Metadata["space_id"] = spaceID
	if c.Citation.Page != nil {
		c.Metadata["page_number"] = strconv.Itoa(*c.Citation.Page)
	}
	if c.Citation.LineStart != nil {
		c.Metadata["line_start"] = strconv.Itoa(*c.Citation.LineStart)
	}
	if c.Citation.LineEnd != nil {
		c.Metadata["line_end"] = strconv.Itoa(*c.Citation.LineEnd)
	}
}

// FailedFile is one file index_folder could not process, captured instead
// of aborting the run.
type FailedFile struct {
	Path   string
	Reason string
}

// Options tunes which files a folder run visits.
type Options struct {
	// Exclude skips any path matching one of these glob patterns (see
	// pkg/fsx.Matches for the matching rules).
	Exclude []string

	// RespectGitignore, when true, additionally skips any path ignored by
	// the root's .gitignore rules (and any nested .git directory), via
	// pkg/fsx.NewVCSMatcher. Folders outside a git worktree are unaffected.
	RespectGitignore bool
}

// FolderResult is the outcome of one index_folder run, possibly partial
// when cancelled or when the context was done early.
type FolderResult struct {
	FilesProcessed int
	TotalChunks    int
	FailedFiles    []FailedFile
	DurationMS     int64
}

// ProgressEvent mirrors the `indexing-progress` event contract,
// throttled to one emission per progressInterval.
type ProgressEvent struct {
	CurrentFile    string
	ProcessedFiles int
	TotalFiles     int
	Percentage     float64
	CurrentAction  string
}

// State is the shared pause/cancel flag pair for long folder runs: a
// plain mutex, since the critical sections it guards are O(1).
type State struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
}

// NewState returns a State in the running, non-cancelled state.
func NewState() *State { return &State{} }

func (s *State) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *State) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *State) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *State) ShouldCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// IndexFolder walks root, indexing every file fsx.CollectFiles turns up
// (minus opts.Exclude), in deterministic order. state is polled every
// pausePollInterval while paused and checked for cancellation before each
// file; a panic while indexing one file is recovered and recorded as a
// FailedFile rather than aborting the run. sink may be nil.
func (p *Pipeline) IndexFolder(ctx context.Context, root, spaceID string, opts Options, state *State, sink chan<- ProgressEvent) (FolderResult, error) {
	start := time.Now()
	if state == nil {
		state = NewState()
	}

	var vcs *fsx.VCSMatcher
	if opts.RespectGitignore {
		var verr error
		vcs, verr = fsx.NewVCSMatcher(root)
		if verr != nil {
			slog.Default().Warn("index_folder: gitignore lookup failed, indexing without it", "root", root, "error", verr)
		}
	}

	files, err := fsx.CollectFiles([]string{root}, func(path string) bool {
		if skip, _ := fsx.Matches(path, opts.Exclude); skip {
			return true
		}
		return vcs.ShouldIgnore(path)
	})
	if err != nil {
		return FolderResult{}, fmt.Errorf("index_folder: %w", err)
	}

	var result FolderResult
	lastEmit := time.Time{}

	emit := func(current string, action string, force bool) {
		if sink == nil {
			return
		}
		if !force && time.Since(lastEmit) < progressInterval {
			return
		}
		lastEmit = time.Now()
		total := len(files)
		processed := result.FilesProcessed + len(result.FailedFiles)
		pct := 0.0
		if total > 0 {
			pct = float64(processed) / float64(total) * 100
		}
		sink <- ProgressEvent{CurrentFile: current, ProcessedFiles: processed, TotalFiles: total, Percentage: pct, CurrentAction: action}
	}

	for i, path := range files {
		for state.IsPaused() {
			if state.ShouldCancel() {
				result.DurationMS = time.Since(start).Milliseconds()
				return result, &engineerr.CancelledError{Operation: "index_folder"}
			}
			select {
			case <-ctx.Done():
				result.DurationMS = time.Since(start).Milliseconds()
				return result, ctx.Err()
			case <-time.After(pausePollInterval):
			}
		}

		if state.ShouldCancel() {
			result.DurationMS = time.Since(start).Milliseconds()
			return result, &engineerr.CancelledError{Operation: "index_folder"}
		}
		if err := ctx.Err(); err != nil {
			result.DurationMS = time.Since(start).Milliseconds()
			return result, err
		}

		emit(path, "indexing", false)

		fileResult, fileErr := p.indexFileRecovered(ctx, path, spaceID)
		if fileErr != nil {
			result.FailedFiles = append(result.FailedFiles, FailedFile{Path: path, Reason: fileErr.Error()})
		} else {
			result.FilesProcessed++
			result.TotalChunks += fileResult.ChunksCreated
		}

		emit(path, "indexing", i == len(files)-1)
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// indexFileRecovered wraps IndexFile so a panic deep in a parser (a
// malformed PDF's object table, say) surfaces as a FailedFile instead of
// crashing the whole folder run.
func (p *Pipeline) indexFileRecovered(ctx context.Context, path, spaceID string) (result FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic indexing %s: %v", path, r)
		}
	}()
	return p.IndexFile(ctx, path, spaceID)
}
