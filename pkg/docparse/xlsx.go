package docparse

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXParser extracts each sheet of a spreadsheet as a Table section.
type XLSXParser struct{}

func NewXLSXParser() *XLSXParser { return &XLSXParser{} }

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		sec := Section{Type: SectionTable, Heading: sheet}
		sec.Table.Header = rows[0]
		if len(rows) > 1 {
			sec.Table.Rows = rows[1:]
		}
		sections = append(sections, sec)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	return &ParseResult{Sections: sections}, nil
}
