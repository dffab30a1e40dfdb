// Package dwca reads star schema archives of delimited text files: one core
// file and any number of extension files whose rows point at core rows
// through an identifier column. The archive is exposed as one lazily
// produced sequence of star records, each a core record with its matching
// extension records attached.
//
// Joining works without loading files into memory. Every file of an archive
// with extensions is normalized to a canonical tab separated form when its
// dialect needs it, sorted by its identifier column on disk, and the sorted
// files are merged in a single pass. Sorted files are cached next to the
// sources (or below Options.WorkDir) and reused while they are newer than
// their sources. Preparation of the same file by several processes is
// serialized with an advisory lock.
//
// # Features
//
//   - Quoted fields, multi-character line terminators, header lines and
//     any IANA character encoding
//   - Compressed source files (gzip, bzip2, xz, zstandard)
//   - Multi-part files read as one logical file
//   - Term based value lookup with defaults, null literal and HTML entity
//     cleaning, and multi-valued fields
//   - Export of star records as CSV, TSV, JSON Lines, Parquet or XLSX
//
// # Basic Usage
//
//	core := model.NewFileDescriptor(model.DwcTaxon, []string{"taxon.txt"},
//		model.WithIDIndex(0),
//		model.WithFields(model.NewField(model.DwcScientificName, 1)))
//
//	rows, err := dwca.OpenArchive(ctx, model.NewArchive(core), dwca.NewOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rows.Close()
//
//	for rows.Next() {
//		name, _ := rows.Record().Core().Value(model.DwcScientificName)
//		fmt.Println(name)
//	}
//	if err := rows.Err(); err != nil {
//		log.Fatal(err)
//	}
//
// # Advanced Usage
//
// For archives whose locations are relative or embedded, use the builder:
//
//	builder, err := dwca.NewArchiveBuilder().
//		WithDirectory("./quercus").
//		WithCore(taxon).
//		AddExtension(vernacular).
//		WithOptions(dwca.NewOptions().WithWorkDir("/var/cache/dwca")).
//		Build(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer builder.Cleanup()
//
//	rows, err := builder.Open(ctx)
//
// # Derivative Files
//
// Preparing a file named taxon.txt creates:
//   - "taxon.txt-sorted": the rows sorted by identifier, kept as a cache
//   - "taxon.txt-normalized": a transient canonical copy, removed after sorting
//   - "taxon.txt-lock": an empty lock file, never removed
//
// An archive without extensions is streamed straight from its core file and
// creates none of them.
//
// # Records
//
// Cursors reuse their records. A Record or StarRecord is only valid until the
// next call to Next; call Clone to keep one.
//
// # Ordering
//
// Identifiers are compared byte by byte (model.CompareIDs) both when files
// are sorted and when they are merged. Extension rows whose identifier has no
// core row are dropped and counted, see StarRows.Orphans.
package dwca
