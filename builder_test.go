package dwca

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/nao1215/dwca/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/quercus/*.txt
var quercusFS embed.FS

// quercusTaxon and quercusVernacular describe testdata/quercus.
func quercusTaxon() *model.FileDescriptor {
	return model.NewFileDescriptor(model.DwcTaxon, []string{"taxon.txt"},
		model.WithDialect(model.DefaultDialect().WithHeaderLines(1)),
		model.WithIDIndex(0),
		model.WithFields(
			model.NewField(model.DwcTaxonID, 0),
			model.NewField(model.DwcScientificName, 1),
			model.NewField(model.DwcTaxonRank, 2),
		))
}

func quercusVernacular() *model.FileDescriptor {
	return model.NewFileDescriptor(model.GbifVernacular, []string{"vernacular.txt"},
		model.WithDialect(model.DefaultDialect().WithHeaderLines(1)),
		model.WithIDIndex(0),
		model.WithFields(
			model.NewField(model.DwcVernacularName, 1),
			model.NewField(model.DcLanguage, 2),
		))
}

func TestNewArchiveBuilder(t *testing.T) {
	t.Parallel()

	builder := NewArchiveBuilder()
	require.NotNil(t, builder, "NewArchiveBuilder() should not return nil")
	assert.Empty(t, builder.extensions)
	assert.Empty(t, builder.tempFiles)
	assert.Nil(t, builder.Archive())
}

func TestArchiveBuilder_Build(t *testing.T) {
	t.Parallel()

	t.Run("resolves locations against a directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		quercusArchive(t, dir)

		builder, err := NewArchiveBuilder().
			WithDirectory(dir).
			WithCore(taxonFile("taxon.txt")).
			AddExtension(vernacularFile("vernacular.txt")).
			WithMetadata("eml.xml").
			Build(context.Background())
		require.NoError(t, err)

		archive := builder.Archive()
		require.NotNil(t, archive)
		assert.Equal(t, filepath.Join(dir, "taxon.txt"), archive.Core().Location())
		ext, ok := archive.Extension(model.GbifVernacular)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(dir, "vernacular.txt"), ext.Location())
		assert.Equal(t, filepath.Join(dir, "eml.xml"), archive.Metadata())
	})

	t.Run("keeps absolute locations", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		core := writeSource(t, dir, "taxon.txt", "1\tQuercus alba\n")

		builder, err := NewArchiveBuilder().
			WithDirectory(t.TempDir()).
			WithCore(taxonFile(core)).
			Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, core, builder.Archive().Core().Location())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := NewArchiveBuilder().
			WithDirectory(t.TempDir()).
			WithCore(taxonFile("taxon.txt")).
			Build(context.Background())
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("location is a directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "taxon.txt"), 0o750))

		_, err := NewArchiveBuilder().
			WithDirectory(dir).
			WithCore(taxonFile("taxon.txt")).
			Build(context.Background())
		assert.Error(t, err)
	})

	t.Run("no core", func(t *testing.T) {
		t.Parallel()

		_, err := NewArchiveBuilder().Build(context.Background())
		assert.ErrorIs(t, err, model.ErrNoCore)
	})

	t.Run("directory and filesystem cannot be combined", func(t *testing.T) {
		t.Parallel()

		_, err := NewArchiveBuilder().
			WithDirectory(t.TempDir()).
			WithFS(fstest.MapFS{}).
			WithCore(taxonFile("taxon.txt")).
			Build(context.Background())
		assert.Error(t, err)
	})

	t.Run("schema errors are reported", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		quercusArchive(t, dir)

		_, err := NewArchiveBuilder().
			WithDirectory(dir).
			WithCore(taxonFile("taxon.txt")).
			AddExtensions(vernacularFile("vernacular.txt"), vernacularFile("vernacular.txt")).
			Build(context.Background())
		assert.ErrorIs(t, err, model.ErrDuplicateRowType)
	})
}

func TestArchiveBuilder_FS(t *testing.T) {
	t.Parallel()

	t.Run("map filesystem", func(t *testing.T) {
		t.Parallel()

		mockFS := fstest.MapFS{
			"data/taxon.txt":      &fstest.MapFile{Data: []byte("2\tQuercus rubra\n1\tQuercus alba\n")},
			"data/vernacular.txt": &fstest.MapFile{Data: []byte("1\twhite oak\n")},
		}

		builder, err := NewArchiveBuilder().
			WithFS(mockFS).
			WithOptions(quietOptions()).
			WithCore(taxonFile("data/taxon.txt")).
			AddExtension(vernacularFile("data/vernacular.txt")).
			Build(context.Background())
		require.NoError(t, err)

		core := builder.Archive().Core().Location()
		assert.Equal(t, "taxon.txt", filepath.Base(core))
		assert.FileExists(t, core)

		rows, err := builder.Open(context.Background())
		require.NoError(t, err)
		got := collect(t, rows)
		require.NoError(t, rows.Close())
		require.Len(t, got, 2)
		assert.Equal(t, []string{"white oak"}, got[0].extensions["VernacularName"])

		require.NoError(t, builder.Cleanup())
		assert.NoFileExists(t, core)
		assert.NoFileExists(t, core+SortedSuffix)
		require.NoError(t, builder.Cleanup())
	})

	t.Run("missing file in filesystem", func(t *testing.T) {
		t.Parallel()

		_, err := NewArchiveBuilder().
			WithFS(fstest.MapFS{}).
			WithCore(taxonFile("taxon.txt")).
			Build(context.Background())
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("embedded archive", func(t *testing.T) {
		t.Parallel()

		sub, err := fs.Sub(quercusFS, "testdata/quercus")
		require.NoError(t, err)

		builder, err := NewArchiveBuilder().
			WithFS(sub).
			WithOptions(quietOptions()).
			WithCore(quercusTaxon()).
			AddExtension(quercusVernacular()).
			Build(context.Background())
		require.NoError(t, err)
		defer builder.Cleanup() //nolint:errcheck // test cleanup

		rows, err := builder.Open(context.Background())
		require.NoError(t, err)
		defer rows.Close()

		var names []string
		languages := map[string][]string{}
		for rows.Next() {
			star := rows.Record()
			name, _ := star.Core().Value(model.DwcScientificName)
			names = append(names, name)
			for _, v := range star.Extension(model.GbifVernacular) {
				lang, _ := v.Value(model.DcLanguage)
				languages[name] = append(languages[name], lang)
			}
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"Quercus alba L.", "Quercus rubra L.", "Quercus robur L.", "Quercus"}, names)
		assert.Equal(t, map[string][]string{
			"Quercus alba L.":  {"en", "fr"},
			"Quercus rubra L.": {"en"},
			"Quercus robur L.": {"en", "de"},
		}, languages)
		assert.Equal(t, int64(1), rows.Orphans()[model.GbifVernacular])
	})
}

func TestArchiveBuilder_Open(t *testing.T) {
	t.Parallel()

	_, err := NewArchiveBuilder().Open(context.Background())
	assert.Error(t, err, "Open before Build should fail")
}
