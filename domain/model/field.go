package model

// NoIndex marks a field that is not backed by a column.
const NoIndex = -1

// Field maps a term to a column of a file, to a constant default, or to
// both. A blank cell falls back to the default.
type Field struct {
	// Term is the field identifier
	Term Term
	// Index is the zero based column, or NoIndex for constant fields
	Index int
	// Default is used when there is no column or the cell is blank
	Default *string
	// Delimiter splits a cell holding several values; empty means single valued
	Delimiter string
}

// NewField maps term to the column at index.
func NewField(term Term, index int) Field {
	return Field{Term: term, Index: index}
}

// NewConstantField gives every row the same value for term.
func NewConstantField(term Term, value string) Field {
	return Field{Term: term, Index: NoIndex, Default: &value}
}

// WithDefault returns a copy using value for blank cells.
func (f Field) WithDefault(value string) Field {
	f.Default = &value
	return f
}

// WithDelimiter returns a copy that treats cells as delimiter separated lists.
func (f Field) WithDelimiter(delimiter string) Field {
	f.Delimiter = delimiter
	return f
}

// HasIndex reports whether the field is backed by a column.
func (f Field) HasIndex() bool {
	return f.Index >= 0
}
