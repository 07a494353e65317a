package docextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxBodyPart = "word/document.xml"

	nsWordTransitional = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsWordStrict       = "http://purl.oclc.org/ooxml/wordprocessingml/main"
)

var errMissingBody = errors.New("missing " + docxBodyPart)

// DecodeDOCX reads the main document part of an Office Open XML package and
// returns its paragraph texts, including empty ones, in document order.
func DecodeDOCX(raw []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive failed: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBodyPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s failed: %w", docxBodyPart, err)
		}
		defer rc.Close()
		return readParagraphs(rc)
	}
	return nil, errMissingBody
}

// wordprocessingML reports whether name belongs to the transitional or
// strict WordprocessingML namespace. DrawingML shapes reuse the local names
// p and t and are skipped.
func wordprocessingML(name xml.Name) bool {
	return name.Space == nsWordTransitional || name.Space == nsWordStrict
}

// readParagraphs keeps one builder per open paragraph so that paragraphs
// nested in text boxes do not disturb the enclosing one. Each paragraph keeps
// the slot of its start tag, so an outer paragraph precedes its text boxes.
func readParagraphs(r io.Reader) ([]string, error) {
	type openParagraph struct {
		slot int
		text strings.Builder
	}
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		stack      []*openParagraph
		textDepth  int
	)
	top := func() *openParagraph {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s failed: %w", docxBodyPart, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !wordprocessingML(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "p":
				stack = append(stack, &openParagraph{slot: len(paragraphs)})
				paragraphs = append(paragraphs, "")
			case "t":
				textDepth++
			case "tab":
				if p := top(); p != nil {
					p.text.WriteByte('\t')
				}
			case "br", "cr":
				if p := top(); p != nil {
					p.text.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if !wordprocessingML(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "p":
				if p := top(); p != nil {
					paragraphs[p.slot] = p.text.String()
					stack = stack[:len(stack)-1]
				}
			case "t":
				if textDepth > 0 {
					textDepth--
				}
			}
		case xml.CharData:
			if p := top(); p != nil && textDepth > 0 {
				p.text.Write(t)
			}
		}
	}
	return paragraphs, nil
}
