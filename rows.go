package dwca

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/dwca/domain/model"
	"github.com/nao1215/dwca/tabular"
)

// Rows is a forward-only cursor over the records of one file. The parts of
// a multi-part file are opened one after another, so at most one handle is
// held at a time. Nothing is opened before the first call to Next.
//
//	rows, err := dwca.OpenFile(fd, dwca.NewOptions())
//	if err != nil {
//		return err
//	}
//	defer rows.Close()
//	for rows.Next() {
//		name, _ := rows.Record().Value(model.DwcScientificName)
//	}
//	return rows.Err()
type Rows struct {
	fd  *model.FileDescriptor
	log *slog.Logger

	part    int
	cur     *tabular.FileReader
	rec     *model.Record
	skipped int64

	err    error
	closed bool
}

func newRows(fd *model.FileDescriptor, opts Options) *Rows {
	return &Rows{
		fd:  fd,
		log: opts.logger(),
		rec: model.NewRecord(fd, opts.cleanOptions()),
	}
}

// Next advances to the next record. It returns false at the end of the
// file, after an I/O error or once the cursor is closed. Malformed rows are
// logged and skipped.
func (r *Rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	for {
		if r.cur == nil {
			locations := r.fd.Locations()
			if r.part >= len(locations) {
				return false
			}
			cur, err := tabular.Open(locations[r.part], r.fd.Dialect())
			if err != nil {
				r.fail(locations[r.part], err)
				return false
			}
			r.cur = cur
			r.part++
		}

		fields, err := r.cur.Read()
		switch {
		case err == nil:
			r.rec.SetRow(fields)
			return true
		case errors.Is(err, io.EOF):
			path := r.cur.Path()
			closeErr := r.cur.Close()
			r.cur = nil
			if closeErr != nil {
				r.fail(path, closeErr)
				return false
			}
		case tabular.IsRowError(err):
			r.skipped++
			r.log.Warn("skipping malformed row",
				"row_type", r.fd.RowType().String(), "file", r.cur.Path(), "error", err)
		default:
			r.fail(r.cur.Path(), err)
			return false
		}
	}
}

// fail records a fatal error and releases the open handle.
func (r *Rows) fail(path string, err error) {
	r.err = NewErrorContext("read", path).WithRowType(r.fd.RowType().String()).Error(err)
	if r.cur != nil {
		if closeErr := r.cur.Close(); closeErr != nil {
			r.err = errors.Join(r.err, closeErr)
		}
		r.cur = nil
	}
}

// Record returns the current record. It is overwritten by the next call to
// Next; use Clone to keep it.
func (r *Rows) Record() *model.Record {
	return r.rec
}

// Descriptor returns the file being read.
func (r *Rows) Descriptor() *model.FileDescriptor {
	return r.fd
}

// Skipped returns the number of malformed rows skipped so far.
func (r *Rows) Skipped() int64 {
	return r.skipped
}

// Err returns the error that stopped iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// Close releases the open file. It is safe to call more than once and
// after Next has failed.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cur == nil {
		return nil
	}
	path := r.cur.Path()
	err := r.cur.Close()
	r.cur = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
