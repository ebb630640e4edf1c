package docparse

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PPTXParser extracts slide text as one section per slide.
type PPTXParser struct{}

func NewPPTXParser() *PPTXParser { return &PPTXParser{} }

func (p *PPTXParser) SupportedFormats() []string { return []string{"pptx"} }

type pptxRun struct {
	Text string `xml:"t"`
}

type pptxPara struct {
	Runs []pptxRun `xml:"r"`
}

type pptxTxBody struct {
	Paras []pptxPara `xml:"p"`
}

type pptxShape struct {
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxSpTree struct {
	SPs []pptxShape `xml:"sp"`
}

type pptxCSld struct {
	SpTree pptxSpTree `xml:"spTree"`
}

type pptxSlide struct {
	CSld pptxCSld `xml:"cSld"`
}

func (p *PPTXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer r.Close()

	slideFiles := make(map[int]*zip.File)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := extractSlideNumber(f.Name); num > 0 {
				slideFiles[num] = f
			}
		}
	}
	nums := make([]int, 0, len(slideFiles))
	for n := range slideFiles {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var sections []Section
	for _, num := range nums {
		rc, err := slideFiles[num].Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text := extractPPTXSlideText(data)
		if text == "" {
			continue
		}
		sections = append(sections, Section{
			Heading: fmt.Sprintf("Slide %d", num),
			Text:    text,
			Page:    num,
			Type:    SectionText,
		})
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no text found in PPTX")
	}
	return &ParseResult{Sections: sections}, nil
}

func extractPPTXSlideText(data []byte) string {
	var slide pptxSlide
	if err := xml.Unmarshal(data, &slide); err != nil {
		return ""
	}
	var parts []string
	for _, sp := range slide.CSld.SpTree.SPs {
		if sp.TxBody == nil {
			continue
		}
		for _, para := range sp.TxBody.Paras {
			var line strings.Builder
			for _, run := range para.Runs {
				line.WriteString(run.Text)
			}
			if t := strings.TrimSpace(line.String()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func extractSlideNumber(name string) int {
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	num, _ := strconv.Atoi(name)
	return num
}
