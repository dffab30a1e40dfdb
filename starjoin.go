package dwca

import (
	"errors"
	"log/slog"
	"maps"

	"github.com/nao1215/dwca/domain/model"
)

// StarRows is a forward-only cursor over star records: every core record
// with the extension records that share its identifier. Core and extension
// files are read in identifier order and merged, so memory use does not
// grow with file size.
//
// Extension rows whose identifier matches no core record are dropped and
// counted per row type; see Orphans.
type StarRows struct {
	log   *slog.Logger
	setup func() error

	core    *Rows
	exts    []*extensionCursor
	star    *model.StarRecord
	orphans map[model.Term]int64

	err    error
	done   bool
	closed bool
}

// extensionCursor lets the join look at the next extension record without
// consuming it.
type extensionCursor struct {
	rowType model.Term
	rows    *Rows
	peeked  bool
	ok      bool
}

func (c *extensionCursor) peek() (*model.Record, bool) {
	if !c.peeked {
		c.ok = c.rows.Next()
		c.peeked = true
	}
	if !c.ok {
		return nil, false
	}
	return c.rows.Record(), true
}

func (c *extensionCursor) consume() {
	c.peeked = false
}

// newStarRows creates a cursor whose files are set up by setup on the first
// call to Next. setup must call attach.
func newStarRows(log *slog.Logger, rowTypes []model.Term, setup func(s *StarRows) error) *StarRows {
	s := &StarRows{
		log:     log,
		star:    model.NewStarRecord(rowTypes),
		orphans: make(map[model.Term]int64, len(rowTypes)),
	}
	for _, rt := range rowTypes {
		s.orphans[rt] = 0
	}
	s.setup = func() error { return setup(s) }
	return s
}

// attach sets the cursors to join. Extension cursors must be in the order
// of the row types given to newStarRows.
func (s *StarRows) attach(core *Rows, exts ...*Rows) {
	s.core = core
	for _, rows := range exts {
		s.exts = append(s.exts, &extensionCursor{
			rowType: rows.Descriptor().RowType(),
			rows:    rows,
		})
	}
}

// Next advances to the next star record.
func (s *StarRows) Next() bool {
	if s.closed || s.done || s.err != nil {
		return false
	}
	if s.setup != nil {
		setup := s.setup
		s.setup = nil
		if err := setup(); err != nil {
			s.err = err
			return false
		}
	}

	if !s.core.Next() {
		if err := s.core.Err(); err != nil {
			s.err = err
			return false
		}
		if err := s.drain(); err != nil {
			s.err = err
			return false
		}
		s.done = true
		s.summarize()
		return false
	}

	core := s.core.Record()
	s.star.Reset(core)
	if _, ok := core.ID(); !ok {
		return true
	}
	// compare on the stored cell, which is what the files were sorted by
	coreID, _ := core.RawID()
	for _, ext := range s.exts {
		if err := s.join(ext, coreID); err != nil {
			s.err = err
			return false
		}
	}
	return true
}

// join attaches every record of ext with identifier coreID and drops the
// orphans in front of them.
func (s *StarRows) join(ext *extensionCursor, coreID string) error {
	for {
		rec, ok := ext.peek()
		if !ok {
			return ext.rows.Err()
		}
		if _, ok := rec.ID(); !ok {
			ext.consume()
			continue
		}
		id, _ := rec.RawID()
		switch c := model.CompareIDs(id, coreID); {
		case c == 0:
			s.star.Attach(ext.rowType, rec)
			ext.consume()
		case c < 0:
			s.orphans[ext.rowType]++
			ext.consume()
		default:
			return nil
		}
	}
}

// drain counts the extension records left after the last core record.
func (s *StarRows) drain() error {
	for _, ext := range s.exts {
		for {
			rec, ok := ext.peek()
			if !ok {
				break
			}
			if _, ok := rec.ID(); ok {
				s.orphans[ext.rowType]++
			}
			ext.consume()
		}
		if err := ext.rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *StarRows) summarize() {
	attrs := make([]any, 0, 2*len(s.orphans))
	var total int64
	for _, ext := range s.exts {
		n := s.orphans[ext.rowType]
		total += n
		attrs = append(attrs, ext.rowType.SimpleName(), n)
	}
	if total == 0 {
		return
	}
	s.log.Info("dropped extension rows without a core record", attrs...)
}

// Record returns the current star record. It is reused by the next call to
// Next; use Clone to keep it.
func (s *StarRows) Record() *model.StarRecord {
	return s.star
}

// Orphans returns, per extension row type, how many extension records had
// no matching core record. The counts are complete once Next has returned
// false without error.
func (s *StarRows) Orphans() map[model.Term]int64 {
	return maps.Clone(s.orphans)
}

// Err returns the error that stopped iteration, if any.
func (s *StarRows) Err() error {
	return s.err
}

// Close releases every open file. It is safe to call more than once and
// after Next has failed. Errors from individual files are joined.
func (s *StarRows) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.setup = nil

	var errs []error
	if s.core != nil {
		errs = append(errs, s.core.Close())
	}
	for _, ext := range s.exts {
		errs = append(errs, ext.rows.Close())
	}
	return errors.Join(errs...)
}
