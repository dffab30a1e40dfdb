package model

import (
	"html"
	"strings"
)

// CleanOptions controls how raw values are tidied before they are returned.
type CleanOptions struct {
	// ReplaceNulls turns blank, `\N` and "null" (any case) into no value
	ReplaceNulls bool
	// ReplaceEntities unescapes HTML, XML and numeric character entities
	ReplaceEntities bool
}

// DefaultCleanOptions enables both replacements.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{ReplaceNulls: true, ReplaceEntities: true}
}

// Clean trims v and applies the enabled replacements. The boolean is false
// when the value collapsed to null. Entities are unescaped a single time,
// so double escaped text such as "&amp;lt;" becomes "&lt;" and only a
// second call yields "<".
func Clean(v string, opts CleanOptions) (string, bool) {
	v = strings.TrimSpace(v)
	if opts.ReplaceNulls && IsNullLiteral(v) {
		return "", false
	}
	if opts.ReplaceEntities && strings.IndexByte(v, '&') >= 0 {
		v = html.UnescapeString(v)
	}
	return v, true
}

// IsNullLiteral reports whether v is one of the conventional null tokens.
func IsNullLiteral(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == `\N` || strings.EqualFold(v, "null")
}
