package dwca

import (
	"github.com/nao1215/dwca/tabular"
)

// OutputFormat represents the output file format
type OutputFormat int

const (
	// OutputFormatCSV represents CSV output format
	OutputFormatCSV OutputFormat = iota
	// OutputFormatTSV represents TSV output format
	OutputFormatTSV
	// OutputFormatJSONL represents JSON Lines output format
	OutputFormatJSONL
	// OutputFormatParquet represents Parquet output format
	OutputFormatParquet
	// OutputFormatXLSX represents Excel XLSX output format
	OutputFormatXLSX
)

// String returns the string representation of OutputFormat
func (f OutputFormat) String() string {
	switch f {
	case OutputFormatCSV:
		return "csv"
	case OutputFormatTSV:
		return "tsv"
	case OutputFormatJSONL:
		return "jsonl"
	case OutputFormatParquet:
		return "parquet"
	case OutputFormatXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

// Extension returns the file extension for the format
func (f OutputFormat) Extension() string {
	switch f {
	case OutputFormatCSV:
		return ".csv"
	case OutputFormatTSV:
		return ".tsv"
	case OutputFormatJSONL:
		return ".jsonl"
	case OutputFormatParquet:
		return ".parquet"
	case OutputFormatXLSX:
		return ".xlsx"
	default:
		return ".csv"
	}
}

// CompressionType represents the compression type
type CompressionType = tabular.CompressionType

const (
	// CompressionNone represents no compression
	CompressionNone = tabular.CompressionNone
	// CompressionGZ represents gzip compression
	CompressionGZ = tabular.CompressionGZ
	// CompressionBZ2 represents bzip2 compression
	CompressionBZ2 = tabular.CompressionBZ2
	// CompressionXZ represents xz compression
	CompressionXZ = tabular.CompressionXZ
	// CompressionZSTD represents zstd compression
	CompressionZSTD = tabular.CompressionZSTD
)

// DumpOptions configures how star records are exported to a file.
//
// Example:
//
//	options := NewDumpOptions().
//		WithFormat(OutputFormatJSONL).
//		WithCompression(CompressionZSTD)
//
//	n, err := Dump(ctx, reader, "./taxa.jsonl.zst", options)
type DumpOptions struct {
	// Format specifies the output file format
	Format OutputFormat
	// Compression specifies the compression type
	Compression CompressionType
}

// NewDumpOptions creates default export options (CSV, no compression).
//
// Modify with:
//   - WithFormat(): Change file format (CSV, TSV, JSONL, Parquet, XLSX)
//   - WithCompression(): Add compression (GZ, XZ, ZSTD)
func NewDumpOptions() DumpOptions {
	return DumpOptions{
		Format:      OutputFormatCSV,
		Compression: CompressionNone,
	}
}

// WithFormat sets the output file format.
//
// Options:
//   - OutputFormatCSV: Comma-separated values
//   - OutputFormatTSV: Tab-separated values
//   - OutputFormatJSONL: One JSON object per star record
//   - OutputFormatParquet: Apache Parquet
//   - OutputFormatXLSX: Excel workbook with one sheet
func (o DumpOptions) WithFormat(format OutputFormat) DumpOptions {
	o.Format = format
	return o
}

// WithCompression adds compression to the output file.
//
// Options:
//   - CompressionNone: No compression (default)
//   - CompressionGZ: Gzip compression (.gz)
//   - CompressionXZ: XZ compression (.xz)
//   - CompressionZSTD: Zstandard compression (.zst)
//
// Parquet applies GZ and ZSTD inside the file as column codecs. XLSX is
// always written uncompressed.
func (o DumpOptions) WithCompression(compression CompressionType) DumpOptions {
	o.Compression = compression
	return o
}

// FileExtension returns the complete file extension including compression
func (o DumpOptions) FileExtension() string {
	baseExt := o.Format.Extension()
	if o.Format == OutputFormatParquet || o.Format == OutputFormatXLSX {
		return baseExt
	}
	return baseExt + o.Compression.Extension()
}
