package dwca

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nao1215/dwca/domain/model"
)

// ArchiveBuilder assembles an Archive from file descriptors whose
// locations may be relative to a directory or live in an fs.FS. Use
// NewArchiveBuilder to create one, then chain method calls to configure it.
//
// The typical usage pattern is:
//
//	builder, err := dwca.NewArchiveBuilder().
//		WithDirectory("testdata/quercus").
//		WithCore(taxon).
//		AddExtension(vernacular).
//		Build(ctx)
//	if err != nil {
//		return err
//	}
//	defer builder.Cleanup() // Clean up files copied from an fs.FS
//	rows, err := builder.Open(ctx)
type ArchiveBuilder struct {
	// core is the core file as configured
	core *model.FileDescriptor
	// extensions are the extension files as configured
	extensions []*model.FileDescriptor
	// metadata is the metadata document location
	metadata string
	// dir resolves relative locations
	dir string
	// filesystem holds the locations when set
	filesystem fs.FS
	// options are passed to the reader
	options Options
	// tempFiles tracks files copied out of filesystem
	tempFiles []string
	// archive is the result of Build
	archive *model.Archive
}

// NewArchiveBuilder creates a new archive builder with default options.
func NewArchiveBuilder() *ArchiveBuilder {
	return &ArchiveBuilder{
		extensions: make([]*model.FileDescriptor, 0),
		options:    NewOptions(),
		tempFiles:  make([]string, 0),
	}
}

// WithCore sets the core file.
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) WithCore(fd *model.FileDescriptor) *ArchiveBuilder {
	b.core = fd
	return b
}

// AddExtension adds an extension file. Its identifier column must hold core
// identifiers.
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) AddExtension(fd *model.FileDescriptor) *ArchiveBuilder {
	b.extensions = append(b.extensions, fd)
	return b
}

// AddExtensions adds several extension files at once.
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) AddExtensions(fds ...*model.FileDescriptor) *ArchiveBuilder {
	b.extensions = append(b.extensions, fds...)
	return b
}

// WithMetadata records the metadata document location. It is resolved like
// file locations but never read.
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) WithMetadata(location string) *ArchiveBuilder {
	b.metadata = location
	return b
}

// WithDirectory resolves relative locations against dir.
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) WithDirectory(dir string) *ArchiveBuilder {
	b.dir = dir
	return b
}

// WithFS reads locations from filesystem, which is useful for archives
// embedded with go:embed. Files are copied to a temporary directory
// during Build because sorting writes derivatives next to its input. Use
// Cleanup to remove the copies.
//
// Example with embedded filesystem:
//
//	//go:embed testdata/quercus
//	var archiveFS embed.FS
//
//	sub, _ := fs.Sub(archiveFS, "testdata/quercus")
//	builder := dwca.NewArchiveBuilder().WithFS(sub)
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) WithFS(filesystem fs.FS) *ArchiveBuilder {
	b.filesystem = filesystem
	return b
}

// WithOptions sets the options used by Open.
//
// Returns the builder for method chaining.
func (b *ArchiveBuilder) WithOptions(opts Options) *ArchiveBuilder {
	b.options = opts
	return b
}

// Build resolves every location, checks that the files exist and validates
// the archive. It must be called before Open or Archive.
//
// Returns the same builder instance for method chaining, or an error if
// validation fails.
func (b *ArchiveBuilder) Build(ctx context.Context) (*ArchiveBuilder, error) {
	if b.core == nil {
		return nil, model.ErrNoCore
	}
	if b.filesystem != nil && b.dir != "" {
		return nil, errors.New("dwca: WithDirectory and WithFS cannot be combined")
	}

	core, err := b.resolve(ctx, b.core)
	if err != nil {
		return nil, errors.Join(err, b.cleanup())
	}
	opts := make([]model.ArchiveOption, 0, len(b.extensions)+1)
	for _, ext := range b.extensions {
		if ext == nil {
			return nil, errors.Join(errors.New("dwca: nil extension"), b.cleanup())
		}
		resolved, err := b.resolve(ctx, ext)
		if err != nil {
			return nil, errors.Join(err, b.cleanup())
		}
		opts = append(opts, model.WithExtension(resolved))
	}
	if b.metadata != "" {
		opts = append(opts, model.WithMetadata(b.resolvePath(b.metadata)))
	}

	archive := model.NewArchive(core, opts...)
	if err := archive.Validate(); err != nil {
		return nil, errors.Join(NewErrorContext("build archive", core.Location()).Error(err), b.cleanup())
	}
	b.archive = archive
	return b, nil
}

// Archive returns the archive assembled by Build, or nil before Build.
func (b *ArchiveBuilder) Archive() *model.Archive {
	return b.archive
}

// Open returns a cursor over the star records of the built archive.
func (b *ArchiveBuilder) Open(ctx context.Context) (*StarRows, error) {
	if b.archive == nil {
		return nil, errors.New("dwca: no archive built, did you call Build()?")
	}
	return OpenArchive(ctx, b.archive, b.options)
}

// resolve returns fd with every location made usable on the local disk.
func (b *ArchiveBuilder) resolve(ctx context.Context, fd *model.FileDescriptor) (*model.FileDescriptor, error) {
	locations := fd.Locations()
	for i, loc := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.filesystem != nil {
			path, err := b.copyFSToTemp(b.filesystem, loc)
			if err != nil {
				return nil, NewErrorContext("build archive", loc).WithRowType(fd.RowType().String()).Error(err)
			}
			locations[i] = path
			continue
		}
		path := b.resolvePath(loc)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, NewErrorContext("build archive", path).WithRowType(fd.RowType().String()).Error(err)
		}
		if info.IsDir() {
			return nil, NewErrorContext("build archive", path).WithRowType(fd.RowType().String()).
				Error(errors.New("location is a directory"))
		}
		locations[i] = path
	}
	return fd.WithLocations(locations, fd.Dialect()), nil
}

func (b *ArchiveBuilder) resolvePath(loc string) string {
	if b.dir == "" || filepath.IsAbs(loc) {
		return loc
	}
	return filepath.Join(b.dir, loc)
}

// copyFSToTemp copies a file from fs.FS to a temporary file
func (b *ArchiveBuilder) copyFSToTemp(filesystem fs.FS, path string) (string, error) {
	file, err := filesystem.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("failed to open FS file: %w", err)
	}
	defer file.Close()

	// keep the base name so derivative names and compression detection still work
	dir, err := os.MkdirTemp("", "dwca-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	b.tempFiles = append(b.tempFiles, dir)

	tempPath := filepath.Join(dir, filepath.Base(path))
	tempFile, err := os.Create(tempPath) //nolint:gosec // path is inside a fresh temp directory
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tempFile.Close()

	if _, err := io.Copy(tempFile, file); err != nil {
		return "", fmt.Errorf("failed to copy content: %w", err)
	}
	return tempPath, nil
}

// cleanup removes temporary files and returns any errors
func (b *ArchiveBuilder) cleanup() error {
	var errs []error
	for _, path := range b.tempFiles {
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove temp file %s: %w", path, err))
		}
	}
	b.tempFiles = nil

	// Join all errors if any occurred
	return errors.Join(errs...)
}

// Cleanup removes the copies made from an fs.FS, derivative files
// included. It's safe to call this multiple times.
func (b *ArchiveBuilder) Cleanup() error {
	return b.cleanup()
}
