package dwca

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/dwca/domain/model"
	"github.com/stretchr/testify/require"
)

// writeSource writes a source file and backdates it so derivatives written
// afterwards are strictly newer even on coarse timestamp filesystems.
func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
	return path
}

// quietOptions returns default options with a discarding logger.
func quietOptions() Options {
	return NewOptions().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// taxonFile describes an id + scientificName core file.
func taxonFile(locations ...string) *model.FileDescriptor {
	return model.NewFileDescriptor(model.DwcTaxon, locations,
		model.WithIDIndex(0),
		model.WithFields(
			model.NewField(model.DwcTaxonID, 0),
			model.NewField(model.DwcScientificName, 1),
		))
}

// vernacularFile describes an id + vernacularName extension file.
func vernacularFile(locations ...string) *model.FileDescriptor {
	return model.NewFileDescriptor(model.GbifVernacular, locations,
		model.WithIDIndex(0),
		model.WithFields(model.NewField(model.DwcVernacularName, 1)))
}

// quercusArchive writes the two species core and one vernacular name.
func quercusArchive(t *testing.T, dir string) *model.Archive {
	t.Helper()
	core := writeSource(t, dir, "taxon.txt", "1\tQuercus alba\n2\tQuercus rubra\n")
	ext := writeSource(t, dir, "vernacular.txt", "1\tcommon-name-en\n")
	return model.NewArchive(taxonFile(core), model.WithExtension(vernacularFile(ext)))
}

// joined is an owned snapshot of one star record.
type joined struct {
	id         string
	extensions map[string][]string
}

// collect drains rows into snapshots keyed by extension simple name, using
// the first mapped field of each extension record.
func collect(t *testing.T, rows *StarRows) []joined {
	t.Helper()
	var out []joined
	for rows.Next() {
		star := rows.Record()
		id, _ := star.Core().ID()
		j := joined{id: id, extensions: map[string][]string{}}
		for rt, recs := range star.Extensions() {
			terms := recs[0].Terms()
			for _, rec := range recs {
				v, _ := rec.Value(terms[0])
				j.extensions[rt.SimpleName()] = append(j.extensions[rt.SimpleName()], v)
			}
		}
		out = append(out, j)
	}
	require.NoError(t, rows.Err())
	return out
}

// listDir returns the names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
