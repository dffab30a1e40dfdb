package model

import "strings"

// CompareIDs is the one ordering used for identifiers: plain byte order of
// the raw cell text, case sensitive, with no numeric interpretation.
//
// Sorters must order rows with exactly this function (or an equivalent such
// as SQLite's BINARY collation) because the star join relies on it to walk
// core and extension files in lock step. A mismatch silently drops or
// misattaches extension rows.
func CompareIDs(a, b string) int {
	return strings.Compare(a, b)
}
