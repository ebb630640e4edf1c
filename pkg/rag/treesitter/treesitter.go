// Package treesitter chunks source files along syntax-tree boundaries so a
// chunk holds whole functions (with their doc comments) instead of whatever
// a sliding window happens to cut. Go is the wired grammar; other
// extensions fall back to plain text chunking.
package treesitter

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/docker/local-rag-engine/pkg/rag/chunk"
)

// DocumentProcessor implements chunk.DocumentProcessor over a syntax tree.
// A fresh parser is created per Process call: the underlying tree-sitter C
// library is not thread-safe, the Go wrapper types are cheap.
type DocumentProcessor struct {
	chunkSize    int
	chunkOverlap int
	langByExt    map[string]*sitter.Language
	functionNode map[string]func(*sitter.Node) bool
	textFallback *chunk.TextDocumentProcessor
}

// NewDocumentProcessor builds a processor with the Go grammar wired; the
// language tables leave room for more grammars.
func NewDocumentProcessor(chunkSize, chunkOverlap int, respectWordBoundaries bool) *DocumentProcessor {
	return &DocumentProcessor{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		langByExt: map[string]*sitter.Language{
			".go": golang.GetLanguage(),
		},
		functionNode: map[string]func(*sitter.Node) bool{
			".go": isGoFunctionLike,
		},
		textFallback: chunk.NewTextDocumentProcessor(chunkSize, chunkOverlap, respectWordBoundaries),
	}
}

// Process parses content and groups function-like nodes into chunks under
// the size budget, never splitting one function across chunks. Anything
// that can't be parsed as a supported language falls back to the plain
// text chunker.
func (p *DocumentProcessor) Process(path string, content []byte) ([]chunk.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := p.langByExt[ext]
	fnFilter := p.functionNode[ext]
	if !ok || fnFilter == nil {
		return p.textFallback.Process(path, content)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil || tree.RootNode() == nil {
		return p.textFallback.Process(path, content)
	}

	root := tree.RootNode()
	funcNodes := collectFunctionNodes(root, fnFilter)
	if len(funcNodes) == 0 {
		return p.textFallback.Process(path, content)
	}

	chunks := p.groupIntoChunks(funcNodes, content, extractPackageName(root, content))
	if len(chunks) == 0 {
		return p.textFallback.Process(path, content)
	}
	return chunks, nil
}

// collectFunctionNodes walks the tree and returns the function-like nodes,
// without descending into them.
func collectFunctionNodes(root *sitter.Node, isFunction func(*sitter.Node) bool) []*sitter.Node {
	var nodes []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if isFunction(n) {
			nodes = append(nodes, n)
			return
		}
		for i := range int(n.ChildCount()) {
			if child := n.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return nodes
}

// groupIntoChunks packs functions (each with its preceding doc comments)
// into chunks up to chunkSize runes. A function larger than the budget gets
// a chunk of its own rather than being split.
func (p *DocumentProcessor) groupIntoChunks(funcNodes []*sitter.Node, content []byte, packageName string) []chunk.Chunk {
	text := string(content)
	var out []chunk.Chunk
	index := 0

	var buf strings.Builder
	currentLen := 0
	var bufFunctions []functionMetadata

	flush := func() {
		c := strings.TrimSpace(buf.String())
		buf.Reset()
		currentLen = 0
		if c == "" {
			bufFunctions = nil
			return
		}
		out = append(out, chunk.Chunk{
			Index:    index,
			Content:  c,
			Metadata: buildChunkMetadata(bufFunctions),
		})
		index++
		bufFunctions = nil
	}

	for _, fn := range funcNodes {
		start := int(findPrecedingComments(fn, content))
		end := int(fn.EndByte())
		if start < 0 || end <= start || end > len(text) {
			continue
		}

		fnText := strings.TrimSpace(text[start:end])
		if fnText == "" {
			continue
		}
		fnLen := utf8.RuneCountInString(fnText)

		docText := ""
		if funcStart := int(fn.StartByte()); start < funcStart && funcStart <= len(content) {
			docText = string(content[start:funcStart])
		}
		meta := buildFunctionMetadata(fn, content, packageName, docText)

		// An oversized function becomes a dedicated chunk.
		if p.chunkSize > 0 && fnLen > p.chunkSize {
			flush()
			out = append(out, chunk.Chunk{
				Index:    index,
				Content:  fnText,
				Metadata: buildChunkMetadata([]functionMetadata{meta}),
			})
			index++
			continue
		}

		if p.chunkSize > 0 && currentLen > 0 && currentLen+fnLen > p.chunkSize {
			flush()
		}

		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(fnText)
		currentLen += fnLen
		bufFunctions = append(bufFunctions, meta)
	}
	flush()

	return out
}

// isGoFunctionLike matches the golang grammar's top-level function nodes.
func isGoFunctionLike(n *sitter.Node) bool {
	switch n.Type() {
	case "function_declaration", "method_declaration":
		return true
	default:
		return false
	}
}

// findPrecedingComments returns the start byte of the comment block
// directly above fn, or fn's own start when there is none. A gap of more
// than one blank line detaches the comments from the function.
func findPrecedingComments(fn *sitter.Node, content []byte) uint32 {
	startByte := fn.StartByte()
	parent := fn.Parent()
	if parent == nil {
		return startByte
	}

	fnIndex := -1
	for i := range int(parent.ChildCount()) {
		if parent.Child(i) == fn {
			fnIndex = i
			break
		}
	}
	if fnIndex <= 0 {
		return startByte
	}

	var comments []*sitter.Node
	for i := fnIndex - 1; i >= 0; i-- {
		sibling := parent.Child(i)
		if sibling == nil {
			break
		}
		if sibling.Type() == "comment" {
			comments = append([]*sitter.Node{sibling}, comments...)
			continue
		}
		nodeStart, nodeEnd := int(sibling.StartByte()), int(sibling.EndByte())
		if nodeStart >= 0 && nodeEnd <= len(content) && nodeEnd > nodeStart {
			if strings.TrimSpace(string(content[nodeStart:nodeEnd])) != "" {
				break
			}
		}
	}
	if len(comments) == 0 {
		return startByte
	}

	lastComment := comments[len(comments)-1]
	commentEnd := int(lastComment.EndByte())
	functionStart := int(fn.StartByte())
	if commentEnd < functionStart && functionStart <= len(content) {
		// 1 newline = adjacent, 2 = one blank line; anything more detaches.
		if strings.Count(string(content[commentEnd:functionStart]), "\n") > 2 {
			return startByte
		}
	}
	return comments[0].StartByte()
}

type functionMetadata struct {
	Name      string
	Kind      string
	Receiver  string
	Signature string
	Doc       string
	Package   string
	StartLine int
	EndLine   int
}

// buildChunkMetadata flattens the chunk's functions into string metadata:
// the first function is the primary symbol, the rest are listed by name.
func buildChunkMetadata(functions []functionMetadata) map[string]string {
	if len(functions) == 0 {
		return nil
	}

	primary := functions[0]
	meta := map[string]string{"symbol_count": strconv.Itoa(len(functions))}
	set := func(key, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	set("symbol_name", primary.Name)
	set("symbol_kind", primary.Kind)
	set("receiver", primary.Receiver)
	set("signature", primary.Signature)
	set("doc", primary.Doc)
	set("package", primary.Package)
	if primary.StartLine > 0 {
		meta["start_line"] = strconv.Itoa(primary.StartLine)
	}
	if primary.EndLine > 0 {
		meta["end_line"] = strconv.Itoa(primary.EndLine)
	}

	var extra []string
	for _, fn := range functions[1:] {
		if fn.Name != "" {
			extra = append(extra, fn.Name)
		}
	}
	set("additional_symbols", strings.Join(extra, ", "))

	return meta
}

func buildFunctionMetadata(fn *sitter.Node, content []byte, pkgName, docText string) functionMetadata {
	kind := "function"
	if fn.Type() == "method_declaration" {
		kind = "method"
	}
	return functionMetadata{
		Name:      strings.TrimSpace(nodeText(content, fn.ChildByFieldName("name"))),
		Kind:      kind,
		Receiver:  strings.TrimSpace(nodeText(content, fn.ChildByFieldName("receiver"))),
		Signature: buildGoSignature(content, fn),
		Doc:       truncateMetadataValue(strings.TrimSpace(docText), 400),
		Package:   pkgName,
		StartLine: int(fn.StartPoint().Row) + 1,
		EndLine:   int(fn.EndPoint().Row) + 1,
	}
}

// buildGoSignature keeps the declaration line up to the opening brace.
func buildGoSignature(content []byte, fn *sitter.Node) string {
	if fn == nil {
		return ""
	}
	text := strings.TrimSpace(string(content[fn.StartByte():fn.EndByte()]))
	if braceIdx := strings.Index(text, "{"); braceIdx != -1 {
		text = strings.TrimSpace(text[:braceIdx])
	}
	if newlineIdx := strings.Index(text, "\n"); newlineIdx != -1 {
		text = strings.TrimSpace(text[:newlineIdx])
	}
	return truncateMetadataValue(text, 240)
}

func truncateMetadataValue(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}

// extractPackageName reads the package clause, falling back to a line scan
// when the tree is missing one (partial parses).
func extractPackageName(root *sitter.Node, content []byte) string {
	if root == nil {
		return ""
	}
	for i := range int(root.ChildCount()) {
		child := root.Child(i)
		if child == nil || child.Type() != "package_clause" {
			continue
		}
		if name := child.ChildByFieldName("name"); name != nil {
			return strings.TrimSpace(nodeText(content, name))
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "package ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "package "))
		}
	}
	return ""
}

func nodeText(content []byte, node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if end <= start || int(end) > len(content) {
		return ""
	}
	return string(content[start:end])
}
