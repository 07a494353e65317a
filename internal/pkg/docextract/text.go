package docextract

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText never fails: a leading BOM selects UTF-8 or UTF-16, everything
// else is read as UTF-8 and ill-formed sequences become U+FFFD.
func decodeText(raw []byte) string {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(decoded)
}
