package model

// StarRecord is a core record together with the extension records that
// share its identifier, grouped by extension row type. Iterators reuse one
// StarRecord for every core row; use Clone to keep one.
type StarRecord struct {
	core       *Record
	rowTypes   []Term
	extensions map[Term][]*Record
}

// NewStarRecord creates an empty star record for the given extension row
// types.
func NewStarRecord(rowTypes []Term) *StarRecord {
	s := &StarRecord{
		rowTypes:   append([]Term(nil), rowTypes...),
		extensions: make(map[Term][]*Record, len(rowTypes)),
	}
	for _, rt := range rowTypes {
		s.extensions[rt] = nil
	}
	return s
}

// Reset points the star record at a new core record and empties the
// extension lists while keeping their buffers.
func (s *StarRecord) Reset(core *Record) {
	s.core = core
	for rt, recs := range s.extensions {
		s.extensions[rt] = recs[:0]
	}
}

// Attach appends a copy of rec to the list of rowType. Buffers left over
// from earlier rows are reused.
func (s *StarRecord) Attach(rowType Term, rec *Record) {
	recs := s.extensions[rowType]
	n := len(recs)
	if n < cap(recs) && recs[:n+1][n] != nil {
		recs = recs[:n+1]
		recs[n].copyFrom(rec)
	} else {
		recs = append(recs, rec.Clone())
	}
	s.extensions[rowType] = recs
}

// Core returns the core record.
func (s *StarRecord) Core() *Record {
	return s.core
}

// Extension returns the records of one extension in file order.
func (s *StarRecord) Extension(rowType Term) []*Record {
	return s.extensions[rowType]
}

// Extensions returns every non-empty extension list keyed by row type.
func (s *StarRecord) Extensions() map[Term][]*Record {
	out := make(map[Term][]*Record, len(s.extensions))
	for rt, recs := range s.extensions {
		if len(recs) > 0 {
			out[rt] = recs
		}
	}
	return out
}

// RowTypes returns the extension row types in declaration order.
func (s *StarRecord) RowTypes() []Term {
	return append([]Term(nil), s.rowTypes...)
}

// Len returns the number of attached extension records.
func (s *StarRecord) Len() int {
	n := 0
	for _, recs := range s.extensions {
		n += len(recs)
	}
	return n
}

// Clone returns a deep copy that survives further iteration.
func (s *StarRecord) Clone() *StarRecord {
	cp := NewStarRecord(s.rowTypes)
	if s.core != nil {
		cp.core = s.core.Clone()
	}
	for rt, recs := range s.extensions {
		list := make([]*Record, len(recs))
		for i, rec := range recs {
			list[i] = rec.Clone()
		}
		cp.extensions[rt] = list
	}
	return cp
}
