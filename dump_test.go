package dwca

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v18/parquet/file"
	"github.com/goccy/go-json"
	"github.com/nao1215/dwca/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newQuercusReader(t *testing.T) *Reader {
	t.Helper()
	r, err := NewReader(quercusArchive(t, t.TempDir()), quietOptions())
	require.NoError(t, err)
	return r
}

func TestDump_Delimited(t *testing.T) {
	t.Parallel()

	t.Run("csv quotes extension cells", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.csv")
		n, err := Dump(context.Background(), newQuercusReader(t), out, NewDumpOptions())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := os.ReadFile(out)
		require.NoError(t, err)
		want := "id,taxonID,scientificName,VernacularName\n" +
			`1,1,Quercus alba,"[{""vernacularName"":""common-name-en""}]"` + "\n" +
			"2,2,Quercus rubra,[]\n"
		assert.Equal(t, want, string(got))
	})

	t.Run("tsv", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.tsv")
		_, err := Dump(context.Background(), newQuercusReader(t), out, NewDumpOptions().WithFormat(OutputFormatTSV))
		require.NoError(t, err)

		got, err := os.ReadFile(out)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSuffix(string(got), "\n"), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "id\ttaxonID\tscientificName\tVernacularName", lines[0])
		assert.Equal(t, "1\t1\tQuercus alba\t[{\"vernacularName\":\"common-name-en\"}]", lines[1])
	})

	t.Run("bzip2 output is rejected without leaving a file", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.csv.bz2")
		_, err := Dump(context.Background(), newQuercusReader(t), out, NewDumpOptions().WithCompression(CompressionBZ2))
		require.Error(t, err)
		assert.NoFileExists(t, out)
	})
}

func TestDump_JSONL(t *testing.T) {
	t.Parallel()

	for _, compression := range []CompressionType{CompressionNone, CompressionGZ, CompressionZSTD, CompressionXZ} {
		t.Run(compression.String(), func(t *testing.T) {
			t.Parallel()

			options := NewDumpOptions().WithFormat(OutputFormatJSONL).WithCompression(compression)
			out := filepath.Join(t.TempDir(), "taxa"+options.FileExtension())
			n, err := Dump(context.Background(), newQuercusReader(t), out, options)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			f, err := os.Open(out) //nolint:gosec // test output
			require.NoError(t, err)
			defer f.Close()
			reader, cleanup, err := tabular.NewCompressionHandler(tabular.DetectCompression(out)).CreateReader(f)
			require.NoError(t, err)
			defer cleanup() //nolint:errcheck // test cleanup

			type vernacular struct {
				VernacularName string `json:"vernacularName"`
			}
			type star struct {
				ID             string       `json:"id"`
				ScientificName string       `json:"scientificName"`
				Vernacular     []vernacular `json:"VernacularName"`
			}
			var got []star
			scanner := bufio.NewScanner(reader)
			for scanner.Scan() {
				var s star
				require.NoError(t, json.Unmarshal(scanner.Bytes(), &s))
				got = append(got, s)
			}
			require.NoError(t, scanner.Err())
			require.Len(t, got, 2)
			assert.Equal(t, "1", got[0].ID)
			assert.Equal(t, "Quercus alba", got[0].ScientificName)
			assert.Equal(t, []vernacular{{VernacularName: "common-name-en"}}, got[0].Vernacular)
			assert.Equal(t, "2", got[1].ID)
			assert.Empty(t, got[1].Vernacular)
		})
	}
}

func TestDump_Parquet(t *testing.T) {
	t.Parallel()

	t.Run("zstd column compression", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.parquet")
		options := NewDumpOptions().WithFormat(OutputFormatParquet).WithCompression(CompressionZSTD)
		n, err := Dump(context.Background(), newQuercusReader(t), out, options)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		rdr, err := file.OpenParquetFile(out, false)
		require.NoError(t, err)
		defer rdr.Close()

		assert.Equal(t, int64(2), rdr.NumRows())
		schema := rdr.MetaData().Schema
		var names []string
		for i := range schema.NumColumns() {
			names = append(names, schema.Column(i).Name())
		}
		assert.Equal(t, []string{"id", "taxonID", "scientificName", "VernacularName"}, names)
	})

	t.Run("stream compression is rejected", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.parquet")
		options := NewDumpOptions().WithFormat(OutputFormatParquet).WithCompression(CompressionXZ)
		_, err := Dump(context.Background(), newQuercusReader(t), out, options)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.NoFileExists(t, out)
	})
}

func TestDump_XLSX(t *testing.T) {
	t.Parallel()

	t.Run("one sheet with a header row", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.xlsx")
		n, err := Dump(context.Background(), newQuercusReader(t), out, NewDumpOptions().WithFormat(OutputFormatXLSX))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		f, err := excelize.OpenFile(out)
		require.NoError(t, err)
		defer f.Close()

		rows, err := f.GetRows(xlsxSheet)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"id", "taxonID", "scientificName", "VernacularName"}, rows[0])
		assert.Equal(t, []string{"2", "2", "Quercus rubra", "[]"}, rows[2])
	})

	t.Run("compression is rejected", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.xlsx")
		options := NewDumpOptions().WithFormat(OutputFormatXLSX).WithCompression(CompressionGZ)
		_, err := Dump(context.Background(), newQuercusReader(t), out, options)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestDump_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "taxa.out")
		_, err := Dump(context.Background(), newQuercusReader(t), out, NewDumpOptions().WithFormat(OutputFormat(42)))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("failed read removes the output", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		archive := quercusArchive(t, dir)
		r, err := NewReader(archive, quietOptions())
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(dir, "vernacular.txt")))

		out := filepath.Join(t.TempDir(), "taxa.csv")
		_, err = Dump(context.Background(), r, out, NewDumpOptions())
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.NoFileExists(t, out)
	})
}
