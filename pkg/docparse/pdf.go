package docparse

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts text, headings, tables and AcroForm field values from
// PDF files.
type PDFParser struct{}

func NewPDFParser() *PDFParser { return &PDFParser{} }

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var sections []Section
	seenFields := map[string]bool{}

	// Widget annotations carry a real page; walk them first so the global
	// AcroForm pass below only adds fields the annotations missed.
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if fields := extractPageAnnotations(page, seenFields); len(fields) > 0 {
			sections = append(sections, Section{Type: SectionFormFields, Fields: fields, Page: i, Heading: "Form Fields"})
		}
	}

	if formSections := extractAcroFormFields(reader, seenFields); len(formSections) > 0 {
		sections = append(sections, formSections...)
	}

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	sections = fixRunningHeaders(sections, totalPages)

	meta := Metadata{}
	if title, author, ok := resolveInfoDict(reader); ok {
		meta.Title = title
		meta.Author = author
	}

	if len(sections) == 0 {
		sections = []Section{{Type: SectionText, Text: "", Page: 1}}
	}

	return &ParseResult{Sections: sections, Metadata: meta}, nil
}

// resolveInfoDict walks the trailer to the Info dictionary for title/author,
// tolerating PDFs with no Info entry.
func resolveInfoDict(reader *pdf.Reader) (title, author string, ok bool) {
	trailer := reader.Trailer()
	if trailer.IsNull() {
		return "", "", false
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return "", "", false
	}
	title = decodePDFString(info.Key("Title"))
	author = decodePDFString(info.Key("Author"))
	return title, author, title != "" || author != ""
}

// decodePDFString decodes a pdf.Value string, handling the library's own
// unescaping; strings coming back as UTF-16 (BOM, or null-byte parity
// suggesting every other byte is 0x00) are re-decoded accordingly.
func decodePDFString(v pdf.Value) string {
	s := v.Text()
	if s == "" {
		s = v.RawString()
	}
	return decodeUTF16IfNeeded(s)
}

func decodeUTF16IfNeeded(s string) string {
	b := []byte(s)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return utf16BEToString(b[2:])
	}
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return utf16LEToString(b[2:])
	}
	if looksLikeUTF16BE(b) {
		return utf16BEToString(b)
	}
	return s
}

// looksLikeUTF16BE applies a null-byte parity heuristic: in UTF-16BE-encoded
// ASCII text every even-indexed byte (the high byte) is zero.
func looksLikeUTF16BE(b []byte) bool {
	if len(b) < 4 || len(b)%2 != 0 {
		return false
	}
	zeros := 0
	for i := 0; i < len(b); i += 2 {
		if b[i] == 0x00 {
			zeros++
		}
	}
	return zeros*2 >= len(b) // every high byte is zero
}

func utf16BEToString(b []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(b); i += 2 {
		r := rune(b[i])<<8 | rune(b[i+1])
		sb.WriteRune(r)
	}
	return sb.String()
}

func utf16LEToString(b []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(b); i += 2 {
		r := rune(b[i+1])<<8 | rune(b[i])
		sb.WriteRune(r)
	}
	return sb.String()
}

// extractPageAnnotations reads one page's Annots array, taking T (or TU as
// the display fallback) as the field name and V (or Contents) as the value.
// Fields landed here carry the page they were found on.
func extractPageAnnotations(page pdf.Page, seen map[string]bool) []FormField {
	annots := page.V.Key("Annots")
	if annots.IsNull() {
		return nil
	}

	var fields []FormField
	for i := 0; i < annots.Len(); i++ {
		annot := annots.Index(i)
		if annot.IsNull() {
			continue
		}
		name := decodePDFString(annot.Key("T"))
		if name == "" {
			name = decodePDFString(annot.Key("TU"))
		}
		if name == "" {
			continue
		}
		value := decodePDFString(annot.Key("V"))
		if value == "" {
			value = decodePDFString(annot.Key("Contents"))
		}
		key := name + "\x00" + value
		if seen[key] {
			continue
		}
		seen[key] = true
		fields = append(fields, FormField{Label: name, Value: value})
	}
	return fields
}

// extractAcroFormFields walks the document's AcroForm field tree recursively
// through Kids, falling back to the parent's V when a field has no value of
// its own. The field tree is document-global and carries no page, so the
// section is emitted page-less rather than guessing one.
func extractAcroFormFields(reader *pdf.Reader, seen map[string]bool) []Section {
	root := reader.Trailer().Key("Root")
	if root.IsNull() {
		return nil
	}
	acroForm := root.Key("AcroForm")
	if acroForm.IsNull() {
		return nil
	}
	fieldsArr := acroForm.Key("Fields")
	if fieldsArr.IsNull() {
		return nil
	}

	var fields []FormField
	for i := 0; i < fieldsArr.Len(); i++ {
		walkFormField(fieldsArr.Index(i), "", &fields, seen)
	}
	if len(fields) == 0 {
		return nil
	}
	return []Section{{Type: SectionFormFields, Fields: fields, Heading: "Form Fields"}}
}

func walkFormField(field pdf.Value, parentValue string, out *[]FormField, seen map[string]bool) {
	if field.IsNull() {
		return
	}

	name := decodePDFString(field.Key("T"))
	value := decodePDFString(field.Key("V"))
	if value == "" {
		value = parentValue
	}

	kids := field.Key("Kids")
	if !kids.IsNull() && kids.Len() > 0 {
		for i := 0; i < kids.Len(); i++ {
			walkFormField(kids.Index(i), value, out, seen)
		}
		return
	}

	if name == "" {
		return
	}
	key := name + "\x00" + value
	if seen[key] {
		return
	}
	seen[key] = true
	*out = append(*out, FormField{Label: name, Value: value})
}

// extractPageTextOrdered groups page Content() text elements into visual
// lines by Y proximity and sorts those lines top-to-bottom, since PDF
// content streams do not guarantee visual order.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// splitPageIntoSections breaks one page's ordered text into heading-delimited
// Sections, merging headings that have no body of their own into the
// following sub-section so co-located labels survive.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var body strings.Builder
	var heading string
	level := 0

	flush := func() {
		if body.Len() > 0 || heading != "" {
			sections = append(sections, Section{
				Heading: heading,
				Text:    strings.TrimSpace(body.String()),
				Page:    pageNum,
				Type:    classifySectionType(heading, body.String()),
			})
			body.Reset()
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
			level = detectHeadingLevel(trimmed)
		} else {
			if body.Len() > 0 {
				body.WriteString("\n")
			}
			body.WriteString(trimmed)
		}
	}
	flush()

	for i := len(sections) - 2; i >= 0; i-- {
		if sections[i].Text == "" && sections[i].Heading != "" && i+1 < len(sections) {
			if sections[i+1].Heading != "" {
				sections[i+1].Heading = sections[i].Heading + " — " + sections[i+1].Heading
			} else {
				sections[i+1].Heading = sections[i].Heading
			}
			sections = append(sections[:i], sections[i+1:]...)
		}
	}
	_ = level

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = []Section{{Text: text, Page: pageNum, Type: SectionText}}
	}
	return sections
}

func isLikelyHeading(line string) bool {
	if len(line) < 100 && line == strings.ToUpper(line) && len(line) > 2 {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	if len(line) > 0 && line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return true
	}
	lower := strings.ToLower(line)
	prefixes := []string{
		"section ", "article ", "chapter ", "part ",
		"sección ", "seccion ", "capítulo ", "capitulo ", "anexo ",
		"seção ", "secao ", "artigo ",
		"chapitre ", "partie ", "annexe ",
	}
	for _, pre := range prefixes {
		if strings.HasPrefix(lower, pre) {
			return true
		}
	}
	for _, pre := range []string{"tabla ", "tabela ", "tableau ", "figura ", "figure ", "cuadro ", "quadro ", "gráfico ", "graphique "} {
		if strings.HasPrefix(lower, pre) && len(lower) > len(pre) && lower[len(pre)] >= '0' && lower[len(pre)] <= '9' {
			return true
		}
	}
	return false
}

func detectHeadingLevel(heading string) int {
	parts := strings.SplitN(heading, " ", 2)
	if len(parts) > 0 {
		if dots := strings.Count(parts[0], "."); dots > 0 {
			return dots
		}
	}
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}

func classifySectionType(heading, content string) SectionType {
	headingLower := strings.ToLower(heading)
	contentLower := strings.ToLower(content)

	switch {
	case containsAny(headingLower, "table", "tabla"):
		return SectionTable
	case strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3:
		return SectionTable
	case containsAny(headingLower, "definition", "definición", "glosario", "glossary") || containsAny(contentLower, "definition", "definición"):
		return SectionText
	default:
		return SectionText
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// fixRunningHeaders replaces headings that repeat more often than a quarter
// of the document's page count, and more than three times in any case (a
// running header/footer), with the last distinct
// heading seen, so the repeated boilerplate doesn't mask real structure.
func fixRunningHeaders(sections []Section, totalPages int) []Section {
	if totalPages == 0 {
		return sections
	}
	counts := map[string]int{}
	for _, s := range sections {
		if s.Heading != "" {
			counts[normalizeHeading(s.Heading)]++
		}
	}
	threshold := totalPages / 4
	if threshold < 3 {
		threshold = 3
	}

	lastReal := ""
	for i := range sections {
		h := sections[i].Heading
		if h == "" {
			continue
		}
		if counts[normalizeHeading(h)] > threshold {
			sections[i].Heading = lastReal
		} else {
			lastReal = h
		}
	}
	return sections
}

func normalizeHeading(h string) string {
	return strings.TrimFunc(h, func(r rune) bool {
		return r > 127 || r == '\uf0d2' || r == '\ufffd'
	})
}
