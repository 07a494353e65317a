package docextract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal uncompressed PDF. An empty page string produces a
// page without a content stream.
func buildPDF(pages []string) []byte {
	var objects []string
	kids := make([]string, len(pages))
	fontObj := 3 + len(pages)
	nextContent := fontObj + 1
	pageObjs := make([]string, len(pages))
	var contents []string
	for i, text := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
		if text == "" {
			pageObjs[i] = "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>"
			continue
		}
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		pageObjs[i] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, nextContent)
		contents = append(contents, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		nextContent++
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
	)
	objects = append(objects, pageObjs...)
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	objects = append(objects, contents...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(docxBodyPart)
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"` +
		` xmlns:v="urn:schemas-microsoft-com:vml"` +
		` xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><w:body>` + body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestTypeFromFilename(t *testing.T) {
	cases := map[string]Type{
		"report.pdf":   TypePDF,
		"Report.PDF":   TypePDF,
		"notes.docx":   TypeDOCX,
		"readme.md":    TypeText,
		" plain.txt  ": TypeText,
	}
	for name, want := range cases {
		got, err := TypeFromFilename(name)
		if err != nil || got != want {
			t.Fatalf("TypeFromFilename(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	for _, name := range []string{"image.png", "archive.doc", "noext", ""} {
		if _, err := TypeFromFilename(name); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("TypeFromFilename(%q) err = %v, want ErrUnsupportedType", name, err)
		}
	}
}

func TestExtractPDFSkipsEmptyPages(t *testing.T) {
	raw := buildPDF([]string{"", "Refunds are accepted within thirty days.", ""})
	units, err := New().Extract(raw, TypePDF, "policy.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d: %+v", len(units), units)
	}
	if units[0].Page != 2 {
		t.Fatalf("page = %d, want 2", units[0].Page)
	}
	if !strings.Contains(units[0].Text, "Refunds are accepted within thirty days.") {
		t.Fatalf("unexpected text %q", units[0].Text)
	}
}

func TestExtractPDFMalformed(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("not a pdf at all"), []byte("%PDF-1.4\n" + strings.Repeat("garbage ", 40))} {
		_, err := New().Extract(raw, TypePDF, "broken.pdf")
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("err = %v, want ParseError", err)
		}
		if perr.File != "broken.pdf" || !strings.Contains(perr.Error(), "broken.pdf") {
			t.Fatalf("parse error does not name the file: %v", perr)
		}
	}
}

func TestExtractDOCX(t *testing.T) {
	raw := buildDOCX(t, `<w:p><w:r><w:t>Refund policy</w:t></w:r></w:p>`+
		`<w:p></w:p>`+
		`<w:p><w:r><w:t xml:space="preserve">Returns within </w:t></w:r><w:r><w:t>30 days.</w:t></w:r></w:p>`)
	units, err := New().Extract(raw, TypeDOCX, "policy.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(units) != 1 || units[0].Page != 1 {
		t.Fatalf("unexpected units %+v", units)
	}
	if want := "Refund policy\nReturns within 30 days."; units[0].Text != want {
		t.Fatalf("text = %q, want %q", units[0].Text, want)
	}
}

func TestExtractDOCXNestedParagraphs(t *testing.T) {
	raw := buildDOCX(t, `<w:p><w:r><w:t>Refunds take thirty days.</w:t></w:r>`+
		`<w:r><w:pict><v:textbox><w:txbxContent><w:p><w:r><w:t>Boxed note</w:t></w:r></w:p></w:txbxContent></v:textbox></w:pict></w:r>`+
		`<w:r><w:t xml:space="preserve"> Contact support for exceptions.</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>Before</w:t></w:r>`+
		`<w:r><w:drawing><a:p><a:r><a:t>Shape label</a:t></a:r></a:p></w:drawing></w:r>`+
		`<w:r><w:t xml:space="preserve"> after</w:t></w:r></w:p>`)
	units, err := New().Extract(raw, TypeDOCX, "boxed.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Refunds take thirty days. Contact support for exceptions.\nBoxed note\nBefore after"
	if len(units) != 1 || units[0].Text != want {
		t.Fatalf("units = %+v, want text %q", units, want)
	}
}

func TestExtractDOCXErrors(t *testing.T) {
	_, err := New().Extract([]byte("PK not really"), TypeDOCX, "bad.docx")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ParseError", err)
	}

	noDecoder := &Extractor{}
	_, err = noDecoder.Extract(buildDOCX(t, ""), TypeDOCX, "ok.docx")
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("err = %v, want ErrCapabilityUnavailable", err)
	}
	if errors.As(err, &perr) {
		t.Fatal("capability error must not be a parse error")
	}
}

func TestExtractTextNeverFails(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want string
	}{
		{name: "utf8", raw: []byte("hello world"), want: "hello world"},
		{name: "invalid bytes", raw: []byte{'a', 0xff, 0xfe, 'b'}, want: "a\uFFFD\uFFFDb"},
		{name: "utf8 bom", raw: append([]byte{0xEF, 0xBB, 0xBF}, "bom"...), want: "bom"},
		{name: "utf16le bom", raw: []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, want: "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			units, err := New().Extract(tc.raw, TypeText, "notes.txt")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(units) != 1 || units[0].Text != tc.want {
				t.Fatalf("units = %+v, want %q", units, tc.want)
			}
		})
	}

	units, err := New().Extract([]byte("   \n\t"), TypeText, "blank.md")
	if err != nil || len(units) != 0 {
		t.Fatalf("blank text: units=%v err=%v", units, err)
	}
}
