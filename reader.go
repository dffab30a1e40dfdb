package dwca

import (
	"context"
	"errors"

	"github.com/nao1215/dwca/domain/model"
	"github.com/nao1215/dwca/tabular"
)

// Reader reads one archive. It checks the schema when created and opens
// nothing until a cursor is iterated, so one Reader can hand out any
// number of independent cursors.
type Reader struct {
	archive  *model.Archive
	opts     Options
	preparer *Preparer
}

// NewReader validates archive and opts and returns a Reader. Schema errors
// such as an extension without identifier column, a file without location
// or an unknown character encoding are reported here, before any file is
// touched.
func NewReader(archive *model.Archive, opts Options) (*Reader, error) {
	if archive == nil {
		return nil, NewErrorContext("open archive", "").Error(model.ErrNoCore)
	}
	if err := opts.Validate(); err != nil {
		return nil, NewErrorContext("open archive", "").Error(err)
	}
	if err := archive.Validate(); err != nil {
		return nil, NewErrorContext("open archive", locationOf(archive.Core())).Error(err)
	}
	for _, fd := range files(archive) {
		if _, err := tabular.LookupEncoding(fd.Dialect().Encoding); err != nil {
			return nil, NewErrorContext("open archive", fd.Location()).
				WithRowType(fd.RowType().String()).Error(err)
		}
	}
	for _, w := range archive.Warnings() {
		opts.logger().Warn(w)
	}
	return &Reader{
		archive:  archive,
		opts:     opts,
		preparer: NewPreparer(opts),
	}, nil
}

// Archive returns the archive being read.
func (r *Reader) Archive() *model.Archive {
	return r.archive
}

// Preparer returns the preparer used for joined reads.
func (r *Reader) Preparer() *Preparer {
	return r.preparer
}

// StarRecords returns a new cursor over the star records of the archive.
// The first call to Next does the work: an archive with extensions has
// every file sorted by identifier (see Preparer), one without extensions
// is read straight from its core file with empty extension lists. ctx
// bounds that preparation; reading rows is not cancellable.
func (r *Reader) StarRecords(ctx context.Context) *StarRows {
	exts := r.archive.Extensions()
	rowTypes := make([]model.Term, len(exts))
	for i, ext := range exts {
		rowTypes[i] = ext.RowType()
	}

	return newStarRows(r.opts.logger(), rowTypes, func(s *StarRows) error {
		if len(exts) == 0 {
			s.attach(newRows(r.archive.Core(), r.opts))
			return nil
		}

		if _, err := r.Prepare(ctx); err != nil {
			return err
		}
		core, err := r.preparer.SortedDescriptor(r.archive.Core())
		if err != nil {
			return err
		}
		extRows := make([]*Rows, len(exts))
		for i, ext := range exts {
			sorted, err := r.preparer.SortedDescriptor(ext)
			if err != nil {
				return err
			}
			extRows[i] = newRows(sorted, r.opts)
		}
		s.attach(newRows(core, r.opts), extRows...)
		return nil
	})
}

// Records returns a new cursor over the core records in file order,
// without joining.
func (r *Reader) Records() *Rows {
	return newRows(r.archive.Core(), r.opts)
}

// Prepare sorts the core and every extension file when the archive needs
// a join. The result reports per row type whether work was done; it is
// empty for an archive without extensions.
func (r *Reader) Prepare(ctx context.Context) (map[model.Term]bool, error) {
	if !r.archive.HasExtensions() {
		return map[model.Term]bool{}, nil
	}
	return r.preparer.PrepareAll(ctx, files(r.archive)...)
}

// OpenArchive validates archive and returns a cursor over its star records.
//
// Example:
//
//	core := model.NewFileDescriptor(model.DwcTaxon, []string{"taxon.txt"},
//		model.WithIDIndex(0),
//		model.WithFields(model.NewField(model.DwcScientificName, 1)))
//	vernacular := model.NewFileDescriptor(model.GbifVernacular, []string{"vernacular.txt"},
//		model.WithIDIndex(0),
//		model.WithFields(model.NewField(model.DwcVernacularName, 1)))
//
//	rows, err := dwca.OpenArchive(ctx, model.NewArchive(core, model.WithExtension(vernacular)), dwca.NewOptions())
//	if err != nil {
//		return err
//	}
//	defer rows.Close()
//	for rows.Next() {
//		star := rows.Record()
//		name, _ := star.Core().Value(model.DwcScientificName)
//		for _, v := range star.Extension(model.GbifVernacular) {
//			common, _ := v.Value(model.DwcVernacularName)
//			fmt.Println(name, common)
//		}
//	}
//	return rows.Err()
func OpenArchive(ctx context.Context, archive *model.Archive, opts Options) (*StarRows, error) {
	r, err := NewReader(archive, opts)
	if err != nil {
		return nil, err
	}
	return r.StarRecords(ctx), nil
}

// OpenFile validates fd and returns a cursor over its records in file
// order.
func OpenFile(fd *model.FileDescriptor, opts Options) (*Rows, error) {
	if fd == nil {
		return nil, NewErrorContext("open file", "").Error(errors.New("nil file descriptor"))
	}
	errCtx := NewErrorContext("open file", locationOf(fd)).WithRowType(fd.RowType().String())
	if err := opts.Validate(); err != nil {
		return nil, errCtx.Error(err)
	}
	if err := fd.Validate(); err != nil {
		return nil, errCtx.Error(err)
	}
	if _, err := tabular.LookupEncoding(fd.Dialect().Encoding); err != nil {
		return nil, errCtx.Error(err)
	}
	return newRows(fd, opts), nil
}

// files returns the core followed by the extensions.
func files(a *model.Archive) []*model.FileDescriptor {
	return append([]*model.FileDescriptor{a.Core()}, a.Extensions()...)
}

func locationOf(fd *model.FileDescriptor) string {
	if fd == nil {
		return ""
	}
	return fd.Location()
}

