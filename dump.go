package dwca

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/goccy/go-json"
	"github.com/nao1215/dwca/domain/model"
	"github.com/nao1215/dwca/tabular"
	"github.com/xuri/excelize/v2"
)

const (
	// dumpIDColumn is the name of the core identifier column
	dumpIDColumn = "id"
	// parquetBatchSize is the number of rows per Parquet record batch
	parquetBatchSize = 8192
	// xlsxSheet is the sheet star records are written to
	xlsxSheet = "Sheet1"
	// dumpCtxInterval is how many records are written between context checks
	dumpCtxInterval = 1024
)

// Dump writes every star record of r to path and returns how many were
// written. Each record becomes one row: the core identifier, one column per
// mapped core term, and one column per extension row type holding the
// attached extension records as a JSON array of objects.
//
// Example usage:
//
//	// Default: Export as CSV
//	n, err := Dump(ctx, reader, "./taxa.csv", NewDumpOptions())
//
//	// Export as Parquet with zstd column compression
//	options := NewDumpOptions().
//		WithFormat(OutputFormatParquet).
//		WithCompression(CompressionZSTD)
//	n, err := Dump(ctx, reader, "./taxa.parquet", options)
func Dump(ctx context.Context, r *Reader, path string, opts DumpOptions) (n int64, err error) {
	errCtx := NewErrorContext("dump", path).WithDetails(opts.Format.String())
	layout := newDumpLayout(r.Archive())

	w, err := newDumpWriter(path, layout, opts)
	if err != nil {
		return 0, errCtx.Error(err)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			err = errors.Join(err, errCtx.Error(closeErr))
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	rows := r.StarRecords(ctx)
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	row := layout.newRow()
	for rows.Next() {
		if n%dumpCtxInterval == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		if err := layout.fill(row, rows.Record()); err != nil {
			return n, errCtx.Error(err)
		}
		if err := w.Write(row); err != nil {
			return n, errCtx.Error(err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// dumpRow is one output row. Columns from extStart on hold JSON arrays.
type dumpRow struct {
	values []string
	valid  []bool
}

// dumpLayout maps star records to columns.
type dumpLayout struct {
	core     *model.FileDescriptor
	terms    []model.Term
	exts     []*model.FileDescriptor
	header   []string
	extStart int
}

func newDumpLayout(a *model.Archive) *dumpLayout {
	l := &dumpLayout{
		core:  a.Core(),
		terms: a.Core().Terms(),
		exts:  a.Extensions(),
	}
	seen := map[string]bool{dumpIDColumn: true}
	l.header = append(l.header, dumpIDColumn)
	for _, t := range l.terms {
		l.header = append(l.header, columnName(t, seen))
	}
	l.extStart = len(l.header)
	for _, ext := range l.exts {
		l.header = append(l.header, columnName(ext.RowType(), seen))
	}
	return l
}

// columnName prefers the simple name and falls back to the qualified name
// when two terms share it.
func columnName(t model.Term, seen map[string]bool) string {
	name := t.SimpleName()
	if seen[name] {
		name = t.QualifiedName()
	}
	seen[name] = true
	return name
}

func (l *dumpLayout) newRow() *dumpRow {
	return &dumpRow{
		values: make([]string, len(l.header)),
		valid:  make([]bool, len(l.header)),
	}
}

func (l *dumpLayout) fill(row *dumpRow, star *model.StarRecord) error {
	core := star.Core()
	row.values[0], row.valid[0] = core.ID()
	for i, t := range l.terms {
		row.values[i+1], row.valid[i+1] = core.Value(t)
	}
	for i, ext := range l.exts {
		cell, err := extensionCell(ext, star.Extension(ext.RowType()))
		if err != nil {
			return err
		}
		row.values[l.extStart+i], row.valid[l.extStart+i] = cell, true
	}
	return nil
}

// extensionCell renders extension records as a JSON array of objects keyed
// by simple term name. Null values are left out.
func extensionCell(ext *model.FileDescriptor, recs []*model.Record) (string, error) {
	objs := make([]map[string]string, 0, len(recs))
	for _, rec := range recs {
		obj := make(map[string]string, len(ext.Fields()))
		for _, t := range ext.Terms() {
			if v, ok := rec.Value(t); ok {
				obj[t.SimpleName()] = v
			}
		}
		objs = append(objs, obj)
	}
	b, err := json.Marshal(objs)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s records: %w", ext.RowType(), err)
	}
	return string(b), nil
}

// dumpWriter writes rows in one output format.
type dumpWriter interface {
	Write(row *dumpRow) error
	Close() error
}

func newDumpWriter(path string, layout *dumpLayout, opts DumpOptions) (dumpWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	switch opts.Format {
	case OutputFormatCSV:
		return newDelimitedWriter(path, layout, opts.Compression, ',')
	case OutputFormatTSV:
		return newDelimitedWriter(path, layout, opts.Compression, '\t')
	case OutputFormatJSONL:
		return newJSONLWriter(path, layout, opts.Compression)
	case OutputFormatParquet:
		return newParquetWriter(path, layout, opts.Compression)
	case OutputFormatXLSX:
		if opts.Compression != CompressionNone {
			return nil, fmt.Errorf("%w: compressed xlsx", ErrUnsupportedFormat)
		}
		return newXLSXWriter(path, layout)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, opts.Format)
	}
}

// compressedFile is a buffered, optionally compressed output file.
type compressedFile struct {
	*bufio.Writer
	file    *os.File
	cleanup func() error
}

func createCompressed(path string, compression CompressionType) (*compressedFile, error) {
	f, err := os.Create(path) //nolint:gosec // caller provided output path
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	w, cleanup, err := tabular.NewCompressionHandler(compression).CreateWriter(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &compressedFile{Writer: bufio.NewWriter(w), file: f, cleanup: cleanup}, nil
}

func (c *compressedFile) Close() error {
	return errors.Join(c.Flush(), c.cleanup(), c.file.Close())
}

// delimitedWriter writes CSV or TSV.
type delimitedWriter struct {
	out *compressedFile
	sep byte
	buf []string
}

func newDelimitedWriter(path string, layout *dumpLayout, compression CompressionType, sep byte) (*delimitedWriter, error) {
	out, err := createCompressed(path, compression)
	if err != nil {
		return nil, err
	}
	w := &delimitedWriter{out: out, sep: sep, buf: make([]string, len(layout.header))}
	if err := w.writeLine(layout.header); err != nil {
		_ = out.Close()
		return nil, err
	}
	return w, nil
}

func (w *delimitedWriter) Write(row *dumpRow) error {
	for i, v := range row.values {
		if !row.valid[i] {
			v = ""
		}
		w.buf[i] = v
	}
	return w.writeLine(w.buf)
}

func (w *delimitedWriter) writeLine(fields []string) error {
	for i, v := range fields {
		if i > 0 {
			if err := w.out.WriteByte(w.sep); err != nil {
				return err
			}
		}
		if _, err := w.out.WriteString(w.escape(v)); err != nil {
			return err
		}
	}
	return w.out.WriteByte('\n')
}

// escape quotes CSV values and flattens TSV values.
func (w *delimitedWriter) escape(value string) string {
	if w.sep == '\t' {
		return tabular.CanonicalLine([]string{value})
	}
	needsQuoting := strings.ContainsAny(value, ",\n\r\"")
	if needsQuoting {
		// Escape double quotes by doubling them
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

func (w *delimitedWriter) Close() error {
	return w.out.Close()
}

// jsonlWriter writes one JSON object per row.
type jsonlWriter struct {
	out    *compressedFile
	enc    *json.Encoder
	header []string
	start  int
}

func newJSONLWriter(path string, layout *dumpLayout, compression CompressionType) (*jsonlWriter, error) {
	out, err := createCompressed(path, compression)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &jsonlWriter{out: out, enc: enc, header: layout.header, start: layout.extStart}, nil
}

func (w *jsonlWriter) Write(row *dumpRow) error {
	obj := make(map[string]any, len(w.header))
	for i, name := range w.header {
		switch {
		case i >= w.start:
			obj[name] = json.RawMessage(row.values[i])
		case row.valid[i]:
			obj[name] = row.values[i]
		default:
			obj[name] = nil
		}
	}
	return w.enc.Encode(obj)
}

func (w *jsonlWriter) Close() error {
	return w.out.Close()
}

// parquetWriter buffers rows into Arrow string columns and writes them as
// record batches.
type parquetWriter struct {
	file     *os.File
	schema   *arrow.Schema
	writer   *pqarrow.FileWriter
	builders []*array.StringBuilder
	pending  int
}

func newParquetWriter(path string, layout *dumpLayout, compression CompressionType) (*parquetWriter, error) {
	var codec compress.Compression
	switch compression {
	case CompressionNone:
		codec = compress.Codecs.Uncompressed
	case CompressionGZ:
		codec = compress.Codecs.Gzip
	case CompressionZSTD:
		codec = compress.Codecs.Zstd
	default:
		return nil, fmt.Errorf("%w: %s compressed parquet", ErrUnsupportedFormat, compression)
	}

	fields := make([]arrow.Field, len(layout.header))
	for i, name := range layout.header {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	file, err := os.Create(path) //nolint:gosec // caller provided output path
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	writer, err := pqarrow.NewFileWriter(schema, file, writerProps, arrowProps)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	allocator := memory.NewGoAllocator()
	builders := make([]*array.StringBuilder, len(fields))
	for i := range builders {
		builders[i] = array.NewStringBuilder(allocator)
	}
	return &parquetWriter{file: file, schema: schema, writer: writer, builders: builders}, nil
}

func (w *parquetWriter) Write(row *dumpRow) error {
	for i, b := range w.builders {
		if row.valid[i] {
			b.Append(row.values[i])
		} else {
			b.AppendNull()
		}
	}
	w.pending++
	if w.pending >= parquetBatchSize {
		return w.flush()
	}
	return nil
}

func (w *parquetWriter) flush() error {
	if w.pending == 0 {
		return nil
	}
	arrays := make([]arrow.Array, len(w.builders))
	for i, b := range w.builders {
		arrays[i] = b.NewArray()
		defer arrays[i].Release()
	}

	batch := array.NewRecord(w.schema, arrays, int64(w.pending))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	w.pending = 0
	return nil
}

func (w *parquetWriter) Close() error {
	err := w.flush()
	for _, b := range w.builders {
		b.Release()
	}
	// closing the parquet writer closes the file as well
	if closeErr := w.writer.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close writer: %w", closeErr))
	}
	if closeErr := w.file.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		err = errors.Join(err, closeErr)
	}
	return err
}

// xlsxWriter streams rows into a single worksheet.
type xlsxWriter struct {
	path   string
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
	cells  []any
}

func newXLSXWriter(path string, layout *dumpLayout) (*xlsxWriter, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create xlsx stream writer: %w", err)
	}
	w := &xlsxWriter{path: path, file: f, stream: sw, cells: make([]any, len(layout.header))}
	for i, name := range layout.header {
		w.cells[i] = name
	}
	if err := w.writeCells(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *xlsxWriter) Write(row *dumpRow) error {
	for i, v := range row.values {
		if row.valid[i] {
			w.cells[i] = v
		} else {
			w.cells[i] = nil
		}
	}
	return w.writeCells()
}

func (w *xlsxWriter) writeCells() error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, w.cells); err != nil {
		return fmt.Errorf("failed to write xlsx row %d: %w", w.row, err)
	}
	return nil
}

func (w *xlsxWriter) Close() error {
	err := w.stream.Flush()
	if err == nil {
		err = w.file.SaveAs(w.path)
	}
	return errors.Join(err, w.file.Close())
}

var (
	_ dumpWriter = (*delimitedWriter)(nil)
	_ dumpWriter = (*jsonlWriter)(nil)
	_ dumpWriter = (*parquetWriter)(nil)
	_ dumpWriter = (*xlsxWriter)(nil)
)
