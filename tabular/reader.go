// Package tabular reads delimited text files in any dialect and rewrites them
// into a canonical, identifier sorted form.
package tabular

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nao1215/dwca/domain/model"
)

// readBufferSize is the bufio size used for every input file.
const readBufferSize = 64 * 1024

var errUnterminatedQuote = fmt.Errorf("%w: unterminated quoted field", ErrMalformedRow)

// Reader splits delimited text into rows according to a Dialect. Quoted
// fields may contain the delimiter, the quote (doubled) and the line
// terminator. The returned slice is reused by the next call to Read.
type Reader struct {
	br      *bufio.Reader
	dialect model.Dialect

	term  []byte
	last  byte
	quote string
	qb    []byte
	delim string
	db    []byte

	buf    []byte
	fields []string
	line   int64
	eof    bool
}

// NewReader creates a Reader decoding r from the dialect's encoding.
func NewReader(r io.Reader, d model.Dialect) (*Reader, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	enc, err := LookupEncoding(d.Encoding)
	if err != nil {
		return nil, err
	}
	rd := &Reader{
		br:      bufio.NewReaderSize(decode(r, enc), readBufferSize),
		dialect: d,
		term:    []byte(d.LineTerminator),
		delim:   string(d.Delimiter),
	}
	rd.db = []byte(rd.delim)
	rd.last = rd.term[len(rd.term)-1]
	if d.Quote != 0 {
		rd.quote = string(d.Quote)
		rd.qb = []byte(rd.quote)
	}
	return rd, nil
}

// Line returns the number of non-blank logical rows consumed so far, header
// rows included.
func (r *Reader) Line() int64 {
	return r.line
}

// Read returns the next data row. Blank rows are skipped and do not count
// toward the header rows.
// A *RowError is returned for a row that cannot be split; reading may
// continue after it. io.EOF marks the end of input; any other error is an
// I/O failure.
func (r *Reader) Read() ([]string, error) {
	for {
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		r.line++
		if r.line <= int64(r.dialect.HeaderLines) {
			continue
		}
		fields, err := r.split(string(rec))
		if err != nil {
			return nil, &RowError{Line: r.line, Err: err}
		}
		return fields, nil
	}
}

// readRecord returns the bytes of one logical row without its terminator.
// A terminator inside an open quote does not end the row.
func (r *Reader) readRecord() ([]byte, error) {
	if r.eof {
		return nil, io.EOF
	}
	r.buf = r.buf[:0]
	st := quoteState{fieldStart: true}
	scanned := 0
	for {
		chunk, err := r.br.ReadSlice(r.last)
		r.buf = append(r.buf, chunk...)
		switch {
		case err == nil:
			if !bytes.HasSuffix(r.buf, r.term) {
				continue
			}
			end := len(r.buf) - len(r.term)
			if r.quote == "" {
				return r.trim(r.buf[:end]), nil
			}
			r.scanQuotes(r.buf[min(scanned, end):end], &st)
			if !st.inQuote {
				return r.trim(r.buf[:end]), nil
			}
			r.scanQuotes(r.buf[end:], &st)
			scanned = len(r.buf)
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			r.eof = true
			if len(r.buf) == 0 {
				return nil, io.EOF
			}
			return r.trim(r.buf), nil
		default:
			return nil, err
		}
	}
}

// quoteState tracks enclosures while a row is being read.
type quoteState struct {
	inQuote     bool
	quotedField bool
	fieldStart  bool
}

// scanQuotes advances st over b. Only a quote at the start of a field opens
// an enclosure, so a quote inside an unquoted field is literal text. Inside
// a quoted field a doubled quote reopens the enclosure.
func (r *Reader) scanQuotes(b []byte, st *quoteState) {
	for i := 0; i < len(b); {
		switch {
		case st.inQuote:
			if bytes.HasPrefix(b[i:], r.qb) {
				st.inQuote = false
				i += len(r.qb)
				continue
			}
		case bytes.HasPrefix(b[i:], r.db):
			st.fieldStart = true
			st.quotedField = false
			i += len(r.db)
			continue
		case (st.fieldStart || st.quotedField) && bytes.HasPrefix(b[i:], r.qb):
			st.inQuote = true
			st.quotedField = true
			st.fieldStart = false
			i += len(r.qb)
			continue
		default:
			st.fieldStart = false
		}
		i++
	}
}

// trim drops a carriage return left by CRLF files read with a "\n"
// terminator.
func (r *Reader) trim(rec []byte) []byte {
	if r.dialect.LineTerminator == "\n" && len(rec) > 0 && rec[len(rec)-1] == '\r' {
		return rec[:len(rec)-1]
	}
	return rec
}

// split cuts one row into fields.
func (r *Reader) split(s string) ([]string, error) {
	r.fields = r.fields[:0]
	for {
		if r.quote != "" && strings.HasPrefix(s, r.quote) {
			value, rest, err := r.quoted(s[len(r.quote):])
			if err != nil {
				return nil, err
			}
			r.fields = append(r.fields, value)
			if rest == "" {
				return r.fields, nil
			}
			if !strings.HasPrefix(rest, r.delim) {
				return nil, fmt.Errorf("%w: text after closing quote", ErrMalformedRow)
			}
			s = rest[len(r.delim):]
			continue
		}
		i := strings.Index(s, r.delim)
		if i < 0 {
			r.fields = append(r.fields, s)
			return r.fields, nil
		}
		r.fields = append(r.fields, s[:i])
		s = s[i+len(r.delim):]
	}
}

// quoted reads a quoted field body up to its closing quote and returns the
// unescaped value and the remainder after the quote.
func (r *Reader) quoted(s string) (string, string, error) {
	i := strings.Index(s, r.quote)
	if i < 0 {
		return "", "", errUnterminatedQuote
	}
	// common case: no escaped quotes
	if !strings.HasPrefix(s[i+len(r.quote):], r.quote) {
		return s[:i], s[i+len(r.quote):], nil
	}
	var sb strings.Builder
	for {
		i := strings.Index(s, r.quote)
		if i < 0 {
			return "", "", errUnterminatedQuote
		}
		sb.WriteString(s[:i])
		s = s[i+len(r.quote):]
		if strings.HasPrefix(s, r.quote) {
			sb.WriteString(r.quote)
			s = s[len(r.quote):]
			continue
		}
		return sb.String(), s, nil
	}
}

// FileReader is a Reader over one file on disk.
type FileReader struct {
	*Reader
	path  string
	close func() error
}

// Open opens path for reading in dialect d. Compressed files are
// decompressed based on their extension.
func Open(path string, d model.Dialect) (*FileReader, error) {
	f, err := os.Open(path) //nolint:gosec // archive locations are caller provided
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	adviseSequential(f)

	handler := NewCompressionHandler(DetectCompression(path))
	reader, cleanup, err := handler.CreateReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rd, err := NewReader(reader, d)
	if err != nil {
		_ = cleanup()
		_ = f.Close()
		return nil, err
	}
	return &FileReader{
		Reader: rd,
		path:   path,
		close: func() error {
			return errors.Join(cleanup(), f.Close())
		},
	}, nil
}

// Path returns the file being read.
func (f *FileReader) Path() string {
	return f.path
}

// Close releases the file. It is safe to call more than once.
func (f *FileReader) Close() error {
	if f.close == nil {
		return nil
	}
	closeFn := f.close
	f.close = nil
	return closeFn()
}

// canonicalField replaces characters that cannot appear inside a field of
// the canonical form.
func canonicalField(v string) string {
	if !strings.ContainsAny(v, "\t\n\r") {
		return v
	}
	return strings.Map(func(c rune) rune {
		switch c {
		case '\t', '\n', '\r':
			return ' '
		}
		return c
	}, v)
}

// CanonicalLine renders fields in the canonical dialect without the
// terminator. Fields are rewritten in place.
func CanonicalLine(fields []string) string {
	for i, v := range fields {
		fields[i] = canonicalField(v)
	}
	return strings.Join(fields, string(model.DefaultDelimiter))
}

// columnAt returns fields[i] or "" when the row is too narrow.
func columnAt(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// keyOfLine extracts column i of a canonical line.
func keyOfLine(line string, i int) string {
	for n := 0; ; n++ {
		j := strings.IndexByte(line, model.DefaultDelimiter)
		if n == i {
			if j < 0 {
				return line
			}
			return line[:j]
		}
		if j < 0 {
			return ""
		}
		line = line[j+1:]
	}
}
