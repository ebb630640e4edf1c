package docparse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/local-rag-engine/pkg/filesystem"
)

// PlainTextParser handles plain prose formats whose structure is already
// close to what the chunker wants: txt, md, html, csv, tsv, json, rst and
// tex are all treated as a single text section holding the file's raw
// content (html markup is not stripped), since none
// of them carry a form/table/relationship structure the chunker needs to
// preserve atomically the way PDFs and office tables do.
type PlainTextParser struct {
	fs filesystem.FS
}

func NewPlainTextParser() *PlainTextParser { return &PlainTextParser{fs: filesystem.AllowAll} }

func (p *PlainTextParser) SupportedFormats() []string {
	return []string{"txt", "md", "markdown", "html", "htm", "csv", "tsv", "json", "rst", "tex"}
}

func (p *PlainTextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return &ParseResult{}, nil
	}
	return &ParseResult{
		Sections: []Section{{Type: SectionText, Heading: filepath.Base(path), Text: content}},
	}, nil
}

// CodeParser handles source files for common languages. Splitting by
// syntax (function/class boundaries) is the chunker's job (tree-sitter
// aware chunking, see pkg/chunk); the parser's contribution is simply
// surfacing the whole file as one text section headed with its file name.
type CodeParser struct {
	fs filesystem.FS
}

func NewCodeParser() *CodeParser { return &CodeParser{fs: filesystem.AllowAll} }

var codeExtensions = []string{
	"go", "py", "js", "ts", "tsx", "jsx", "java", "c", "h", "cpp", "hpp", "cc",
	"rs", "rb", "php", "cs", "kt", "swift", "scala", "sh", "sql", "yaml", "yml", "toml",
}

func (p *CodeParser) SupportedFormats() []string { return codeExtensions }

func (p *CodeParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return &ParseResult{}, nil
	}
	return &ParseResult{
		Sections: []Section{{Type: SectionText, Heading: filepath.Base(path), Text: content}},
	}, nil
}
