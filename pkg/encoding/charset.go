package encoding

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// CharsetReader resolves the encoding declared in an XML prolog (e.g. ISO-8859-1,
// windows-1252) and returns a reader that yields UTF-8. It matches the signature
// expected by xml.Decoder.CharsetReader.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return input, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported feed charset %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// EnsureUTF8 returns the body untouched when it already is valid UTF-8. Anything else
// is assumed to be Windows-1252, the encoding legacy feed exporters fall back to.
func EnsureUTF8(b []byte) []byte {
	if len(b) == 0 || utf8.Valid(b) {
		return b
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return b
	}
	return decoded
}
