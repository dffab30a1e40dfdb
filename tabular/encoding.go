package tabular

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LookupEncoding resolves an IANA character set name such as "UTF-8",
// "ISO-8859-1" or "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	switch strings.ToLower(n) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, name)
	}
	return enc, nil
}

// decode converts r from enc to UTF-8. A leading byte order mark selects the
// matching Unicode decoder and is dropped.
func decode(r io.Reader, enc encoding.Encoding) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))
}
