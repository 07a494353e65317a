package docextract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func extractPDF(raw []byte, name string) (units []Unit, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = &ParseError{File: name, Type: TypePDF, Err: fmt.Errorf("%v", r)}
		}
	}()

	if len(raw) == 0 {
		return nil, &ParseError{File: name, Type: TypePDF, Err: fmt.Errorf("empty file")}
	}
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, &ParseError{File: name, Type: TypePDF, Err: err}
	}

	total := reader.NumPage()
	for num := 1; num <= total; num++ {
		text := pageText(reader, num)
		if text == "" {
			continue
		}
		units = append(units, Unit{Text: text, Page: num})
	}
	return units, nil
}

// pageText returns the trimmed text of one page; a page that fails to decode
// counts as empty.
func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	plain, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(plain)
}
