package tabular

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/dwca/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readAll collects every row, recording row errors instead of stopping.
func readAll(t *testing.T, r *Reader) (rows [][]string, rowErrs []error) {
	t.Helper()
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, rowErrs
		}
		if IsRowError(err) {
			rowErrs = append(rowErrs, err)
			continue
		}
		require.NoError(t, err)
		rows = append(rows, append([]string(nil), fields...))
	}
}

func TestReader(t *testing.T) {
	t.Parallel()

	crlf := model.DefaultDialect()
	crlf.LineTerminator = "\r\n"

	latin1 := model.DefaultDialect().WithEncoding("ISO-8859-1")

	tests := []struct {
		name    string
		input   string
		dialect model.Dialect
		want    [][]string
	}{
		{
			name:    "tab separated with blank rows",
			input:   "1\tQuercus alba\n\n2\tQuercus rubra\n",
			dialect: model.DefaultDialect(),
			want:    [][]string{{"1", "Quercus alba"}, {"2", "Quercus rubra"}},
		},
		{
			name:    "missing final terminator",
			input:   "1\ta\n2\tb",
			dialect: model.DefaultDialect(),
			want:    [][]string{{"1", "a"}, {"2", "b"}},
		},
		{
			name:    "crlf read with newline terminator",
			input:   "1\ta\r\n2\tb\r\n",
			dialect: model.DefaultDialect(),
			want:    [][]string{{"1", "a"}, {"2", "b"}},
		},
		{
			name:    "multi character terminator keeps bare newlines",
			input:   "1\tline one\nline two\r\n2\tb\r\n",
			dialect: crlf,
			want:    [][]string{{"1", "line one\nline two"}, {"2", "b"}},
		},
		{
			name:    "quoted csv with header",
			input:   "id,name\n1,\"Quercus, alba\"\n2,\"say \"\"hi\"\"\"\n3,\"multi\nline\"\n",
			dialect: model.CSVDialect(),
			want: [][]string{
				{"1", "Quercus, alba"},
				{"2", `say "hi"`},
				{"3", "multi\nline"},
			},
		},
		{
			name:    "empty quoted field",
			input:   "id,name\n1,\"\"\n",
			dialect: model.CSVDialect(),
			want:    [][]string{{"1", ""}},
		},
		{
			name:    "several header lines",
			input:   "# exported\nid\tname\n1\ta\n",
			dialect: model.DefaultDialect().WithHeaderLines(2),
			want:    [][]string{{"1", "a"}},
		},
		{
			name:    "latin1 decoded to utf8",
			input:   "1\tQu\xe9bec\n",
			dialect: latin1,
			want:    [][]string{{"1", "Québec"}},
		},
		{
			name:    "byte order mark dropped",
			input:   "\xef\xbb\xbf1\ta\n",
			dialect: model.DefaultDialect(),
			want:    [][]string{{"1", "a"}},
		},
		{
			name:    "quote inside an unquoted field is literal",
			input:   "1,leaf 12\" long\n2,Quercus rubra\n3,\"Quercus \"\"alba\"\"\"\n",
			dialect: model.CSVDialect(),
			want: [][]string{
				{"1", `leaf 12" long`},
				{"2", "Quercus rubra"},
				{"3", `Quercus "alba"`},
			},
		},
		{
			name:    "odd quotes in unquoted fields across rows",
			input:   "1,5' 2\"\n2,b\"\n3,c\n",
			dialect: model.CSVDialect(),
			want:    [][]string{{"1", `5' 2"`}, {"2", `b"`}, {"3", "c"}},
		},
		{
			name:    "blank rows do not count as header lines",
			input:   "\n\nid\tname\n\n1\ta\n",
			dialect: model.DefaultDialect().WithHeaderLines(1),
			want:    [][]string{{"1", "a"}},
		},
		{
			name:    "trailing empty cells kept",
			input:   "1\t\t\n",
			dialect: model.DefaultDialect(),
			want:    [][]string{{"1", "", ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewReader(strings.NewReader(tt.input), tt.dialect)
			require.NoError(t, err)
			rows, rowErrs := readAll(t, r)
			assert.Empty(t, rowErrs)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestReaderMalformedRows(t *testing.T) {
	t.Parallel()

	t.Run("text after closing quote is skipped", func(t *testing.T) {
		t.Parallel()
		input := "id,name\n1,\"a\"x,b\n2,ok\n"
		r, err := NewReader(strings.NewReader(input), model.CSVDialect())
		require.NoError(t, err)

		rows, rowErrs := readAll(t, r)
		assert.Equal(t, [][]string{{"2", "ok"}}, rows)
		require.Len(t, rowErrs, 1)
		assert.ErrorIs(t, rowErrs[0], ErrMalformedRow)

		var rowErr *RowError
		require.ErrorAs(t, rowErrs[0], &rowErr)
		assert.Equal(t, int64(2), rowErr.Line)
	})

	t.Run("unterminated quote at end of input", func(t *testing.T) {
		t.Parallel()
		input := "id,name\n1,\"abc\n"
		r, err := NewReader(strings.NewReader(input), model.CSVDialect())
		require.NoError(t, err)

		rows, rowErrs := readAll(t, r)
		assert.Empty(t, rows)
		require.Len(t, rowErrs, 1)
		assert.ErrorIs(t, rowErrs[0], ErrMalformedRow)
	})
}

func TestNewReaderErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown encoding", func(t *testing.T) {
		t.Parallel()
		_, err := NewReader(strings.NewReader(""), model.DefaultDialect().WithEncoding("no-such-charset"))
		require.ErrorIs(t, err, ErrUnsupportedEncoding)
	})

	t.Run("invalid dialect", func(t *testing.T) {
		t.Parallel()
		d := model.DefaultDialect()
		d.LineTerminator = ""
		_, err := NewReader(strings.NewReader(""), d)
		require.ErrorIs(t, err, model.ErrInvalidDialect)
	})
}

func TestLookupEncoding(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "UTF-8", "utf8", "ISO-8859-1", "windows-1252"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			enc, err := LookupEncoding(name)
			require.NoError(t, err)
			assert.NotNil(t, enc)
		})
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("gzip compressed file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "taxon.txt.gz")
		f, err := os.Create(path)
		require.NoError(t, err)
		gw := gzip.NewWriter(f)
		_, err = gw.Write([]byte("id\tname\n1\tQuercus alba\n"))
		require.NoError(t, err)
		require.NoError(t, gw.Close())
		require.NoError(t, f.Close())

		r, err := Open(path, model.DefaultDialect().WithHeaderLines(1))
		require.NoError(t, err)
		assert.Equal(t, path, r.Path())

		rows, rowErrs := readAll(t, r.Reader)
		assert.Empty(t, rowErrs)
		assert.Equal(t, [][]string{{"1", "Quercus alba"}}, rows)
		require.NoError(t, r.Close())
		assert.NoError(t, r.Close())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Open(filepath.Join(t.TempDir(), "missing.txt"), model.DefaultDialect())
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestCanonicalLine(t *testing.T) {
	t.Parallel()

	fields := []string{"1", "multi\nline", "tab\there", "cr\rlf"}
	assert.Equal(t, "1\tmulti line\ttab here\tcr lf", CanonicalLine(fields))
}

func TestKeyOfLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		column int
		want   string
	}{
		{"a\tb\tc", 0, "a"},
		{"a\tb\tc", 1, "b"},
		{"a\tb\tc", 2, "c"},
		{"a\tb\tc", 3, ""},
		{"a", 0, "a"},
		{"\tb", 0, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, keyOfLine(tt.line, tt.column), "keyOfLine(%q, %d)", tt.line, tt.column)
		assert.Equal(t, tt.want, columnAt(strings.Split(tt.line, "\t"), tt.column), "columnAt(%q, %d)", tt.line, tt.column)
	}
}
