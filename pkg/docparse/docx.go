package docparse

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXParser extracts paragraphs and tables from the WordprocessingML body,
// reading the zip package directly since no dedicated third-party docx
// library appears in the example pack (richardlehane/mscfb/msoleps target
// the legacy OLE .doc format, not the modern zip/XML .docx container).
type DOCXParser struct{}

func NewDOCXParser() *DOCXParser { return &DOCXParser{} }

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

type docxRun struct {
	Text []string `xml:"t"`
}

type docxParaProps struct {
	Style *struct {
		Val string `xml:"val,attr"`
	} `xml:"pStyle"`
}

type docxPara struct {
	PPr *docxParaProps `xml:"pPr"`
	Run []docxRun      `xml:"r"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxBody struct {
	Paras  []docxPara  `xml:"p"`
	Tables []docxTable `xml:"tbl"`
}

type docxDocument struct {
	Body docxBody `xml:"body"`
}

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	var sections []Section
	var body strings.Builder
	var heading string

	flush := func() {
		if body.Len() > 0 || heading != "" {
			sections = append(sections, Section{Type: SectionText, Heading: heading, Text: strings.TrimSpace(body.String())})
			body.Reset()
		}
	}

	for _, para := range doc.Body.Paras {
		text := extractParaText(para)
		if text == "" {
			continue
		}
		style := ""
		if para.PPr != nil && para.PPr.Style != nil {
			style = para.PPr.Style.Val
		}
		if isHeadingStyle(style) {
			flush()
			heading = text
		} else {
			if body.Len() > 0 {
				body.WriteString("\n")
			}
			body.WriteString(text)
		}
	}
	flush()

	for _, tbl := range doc.Body.Tables {
		sec := Section{Type: SectionTable}
		for i, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var cellText strings.Builder
				for _, para := range cell.Paras {
					if cellText.Len() > 0 {
						cellText.WriteString(" ")
					}
					cellText.WriteString(extractParaText(para))
				}
				cells = append(cells, cellText.String())
			}
			if i == 0 {
				sec.Table.Header = cells
			} else {
				sec.Table.Rows = append(sec.Table.Rows, cells)
			}
		}
		sections = append(sections, sec)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no content found in DOCX")
	}
	return &ParseResult{Sections: sections}, nil
}

func extractParaText(para docxPara) string {
	var sb strings.Builder
	for _, run := range para.Run {
		for _, t := range run.Text {
			sb.WriteString(t)
		}
	}
	return sb.String()
}

func isHeadingStyle(style string) bool {
	lower := strings.ToLower(style)
	return strings.HasPrefix(lower, "heading") || strings.HasPrefix(lower, "title")
}
