// Package docparse extracts typed sections (text, form fields, tables,
// relationships) and document-level metadata from heterogeneous files.
package docparse

import "context"

// SectionType classifies a DocumentSection.
type SectionType string

const (
	SectionText         SectionType = "text"
	SectionFormFields   SectionType = "form_fields"
	SectionTable        SectionType = "table"
	SectionRelationship SectionType = "relationship"
)

// FormField is one ordered (label, value) pair extracted from an AcroForm
// field or an office-document form control.
type FormField struct {
	Label string
	Value string
}

// Table is a parsed table with an optional header row.
type Table struct {
	Header  []string
	Rows    [][]string
	Caption string
}

// Section is a typed result of parsing one logical region of a document.
// Exactly one of the type-specific fields is populated, selected by Type,
// with one exception: a PDF section classified as SectionTable carries its
// content in Text and leaves Table empty.
type Section struct {
	Type    SectionType
	Page    int // 1-based; 0 when not applicable
	Heading string

	// SectionText
	Text string

	// SectionFormFields
	Fields []FormField

	// SectionTable
	Table Table

	// SectionRelationship
	RelationKey   string
	RelationValue string
}

// Metadata carries document-level facts discovered while parsing.
type Metadata struct {
	Title  string
	Author string
}

// ParseResult is the full output of parsing one file.
type ParseResult struct {
	Sections []Section
	Metadata Metadata
}

// Parser extracts sections from one file format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
