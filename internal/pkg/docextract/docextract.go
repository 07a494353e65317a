// Package docextract turns uploaded document bytes into ordered page texts.
package docextract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type Type string

const (
	TypePDF  Type = "pdf"
	TypeDOCX Type = "docx"
	TypeText Type = "text"
)

var (
	ErrUnsupportedType       = errors.New("unsupported document type")
	ErrCapabilityUnavailable = errors.New("document decoder unavailable")
)

// ParseError reports an upload that could not be decoded as its declared type.
type ParseError struct {
	File string
	Type Type
	Err  error
}

func (e *ParseError) Error() string {
	name := e.File
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf("failed to read %s: %s", strings.ToUpper(string(e.Type)), name)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Unit is one page worth of extracted text. Page numbers start at 1.
type Unit struct {
	Text string
	Page int
}

// DOCXDecoder returns the paragraph texts of a .docx payload in document order.
type DOCXDecoder func(raw []byte) ([]string, error)

var extensions = map[string]Type{
	".pdf":  TypePDF,
	".docx": TypeDOCX,
	".txt":  TypeText,
	".md":   TypeText,
}

// TypeFromFilename maps an upload's extension to its parser.
func TypeFromFilename(name string) (Type, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	t, ok := extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s is not a supported type (PDF/DOCX/TXT/MD)", ErrUnsupportedType, displayName(name))
	}
	return t, nil
}

type Extractor struct {
	// DOCX is nil when no .docx decoder is available.
	DOCX DOCXDecoder
}

func New() *Extractor {
	return &Extractor{DOCX: DecodeDOCX}
}

// Extract decodes raw as kind and returns its non-empty page texts in order.
func (e *Extractor) Extract(raw []byte, kind Type, name string) ([]Unit, error) {
	switch kind {
	case TypePDF:
		return extractPDF(raw, name)
	case TypeDOCX:
		if e.DOCX == nil {
			return nil, fmt.Errorf("%w: DOCX support missing", ErrCapabilityUnavailable)
		}
		paragraphs, err := e.DOCX(raw)
		if err != nil {
			return nil, &ParseError{File: name, Type: TypeDOCX, Err: err}
		}
		return singlePage(joinNonEmpty(paragraphs)), nil
	case TypeText:
		return singlePage(decodeText(raw)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, kind)
	}
}

func singlePage(text string) []Unit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Unit{{Text: text, Page: 1}}
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown"
	}
	return name
}
