package retrieval

import (
	"regexp"

	"github.com/docker/local-rag-engine/pkg/store"
)

// citationWithLine matches a file reference followed by a line number, e.g.
// "report.pdf:12". citationBare matches a bare file reference such as
// "report.pdf". Both patterns are taken from the original Rust citation
// validator (rag/citation_validator.rs) unchanged.
var (
	citationWithLine = regexp.MustCompile(`([A-Za-z0-9_\-./]+\.[A-Za-z0-9]+):(\d+)`)
	citationBare     = regexp.MustCompile(`([A-Za-z0-9_\-./]+\.[A-Za-z0-9]+)`)
)

// Citation is one reference extracted from a generated answer.
type Citation struct {
	Source string
	Line   int // 0 when no line number was given
	Valid  bool
}

// CitationReport is the result of validating every citation found in an
// answer against the chunks that were actually retrieved for it.
type CitationReport struct {
	Citations  []Citation
	Confidence float64 // valid / total; 1.0 when no citations were found
	Warnings   []string
}

// ValidateCitations parses answer for "path.ext:line" and bare "path.ext"
// references and accepts each one iff its file appears among hits, and, when
// a line number is present, iff that line falls within some retrieved
// chunk's line range for that file.
func ValidateCitations(answer string, hits []store.Hit) CitationReport {
	seen := make(map[string]bool)
	var citations []Citation

	for _, m := range citationWithLine.FindAllStringSubmatch(answer, -1) {
		key := m[0]
		if seen[key] {
			continue
		}
		seen[key] = true
		seen[m[1]] = true // the bare-filename pass below must not re-count this file
		line := atoiOrZero(m[2])
		citations = append(citations, Citation{Source: m[1], Line: line, Valid: lineInRange(m[1], line, hits)})
	}

	for _, m := range citationBare.FindAllStringSubmatch(answer, -1) {
		key := m[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, Citation{Source: m[1], Valid: fileInHits(m[1], hits)})
	}

	report := CitationReport{Citations: citations, Confidence: 1.0}
	if len(citations) == 0 {
		return report
	}

	valid := 0
	for _, c := range citations {
		if c.Valid {
			valid++
		} else {
			report.Warnings = append(report.Warnings, "unverified citation: "+c.Source)
		}
	}
	report.Confidence = float64(valid) / float64(len(citations))
	return report
}

func fileInHits(source string, hits []store.Hit) bool {
	for _, h := range hits {
		if h.Chunk.Citation.Source == source || h.Chunk.Source == source {
			return true
		}
	}
	return false
}

func lineInRange(source string, line int, hits []store.Hit) bool {
	for _, h := range hits {
		c := h.Chunk.Citation
		if c.Source != source && h.Chunk.Source != source {
			continue
		}
		if c.LineStart == nil || c.LineEnd == nil {
			continue
		}
		if line >= *c.LineStart && line <= *c.LineEnd {
			return true
		}
	}
	return false
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
