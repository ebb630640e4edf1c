package docparse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/local-rag-engine/pkg/engineerr"
)

// Registry dispatches Parse calls to the Parser registered for a file's extension.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a registry with every built-in parser registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		NewPDFParser(),
		NewDOCXParser(),
		NewXLSXParser(),
		NewPPTXParser(),
		NewPlainTextParser(),
		NewCodeParser(),
	} {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the parser handling each of p's supported formats.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.SupportedFormats() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// Get returns the parser registered for the extension of path.
func (r *Registry) Get(path string) (Parser, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	p, ok := r.parsers[ext]
	if !ok {
		return nil, &engineerr.UnsupportedFormatError{Format: ext}
	}
	return p, nil
}

// Parse looks up the parser for path's extension and runs it.
func (r *Registry) Parse(ctx context.Context, path string) (*ParseResult, error) {
	p, err := r.Get(path)
	if err != nil {
		return nil, err
	}
	res, err := p.Parse(ctx, path)
	if err != nil {
		return nil, &engineerr.ParseFailedError{Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	return res, nil
}
