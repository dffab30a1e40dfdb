// Package model provides domain model for dwca
package model

import (
	"strings"
)

// Namespaces of the vocabularies most archives use.
const (
	// DwcNamespace is the Darwin Core terms namespace
	DwcNamespace = "http://rs.tdwg.org/dwc/terms/"
	// DcNamespace is the Dublin Core terms namespace
	DcNamespace = "http://purl.org/dc/terms/"
	// GbifNamespace is the GBIF terms namespace
	GbifNamespace = "http://rs.gbif.org/terms/1.0/"
)

// prefixes maps the short vocabulary prefixes accepted by ParseTerm.
var prefixes = map[string]string{
	"dwc":  DwcNamespace,
	"dc":   DcNamespace,
	"gbif": GbifNamespace,
}

// Row types.
var (
	DwcTaxon         = NewTerm(DwcNamespace + "Taxon")
	DwcOccurrence    = NewTerm(DwcNamespace + "Occurrence")
	DwcEvent         = NewTerm(DwcNamespace + "Event")
	GbifVernacular   = NewTerm(GbifNamespace + "VernacularName")
	GbifDistribution = NewTerm(GbifNamespace + "Distribution")
	GbifReference    = NewTerm(GbifNamespace + "Reference")
)

// Frequently mapped fields.
var (
	DwcTaxonID              = NewTerm(DwcNamespace + "taxonID")
	DwcOccurrenceID         = NewTerm(DwcNamespace + "occurrenceID")
	DwcEventID              = NewTerm(DwcNamespace + "eventID")
	DwcScientificName       = NewTerm(DwcNamespace + "scientificName")
	DwcTaxonRank            = NewTerm(DwcNamespace + "taxonRank")
	DwcKingdom              = NewTerm(DwcNamespace + "kingdom")
	DwcVernacularName       = NewTerm(DwcNamespace + "vernacularName")
	DwcLocality             = NewTerm(DwcNamespace + "locality")
	DwcCountryCode          = NewTerm(DwcNamespace + "countryCode")
	DwcBasisOfRecord        = NewTerm(DwcNamespace + "basisOfRecord")
	DcLanguage              = NewTerm(DcNamespace + "language")
	DcBibliographicCitation = NewTerm(DcNamespace + "bibliographicCitation")
)

// Term is a globally qualified field identifier. Two terms are equal when
// their qualified names are equal.
type Term struct {
	namespace string
	name      string
}

// NewTerm creates a Term from its qualified name. The namespace is
// everything up to and including the last '/' or '#'.
func NewTerm(qualified string) Term {
	qualified = strings.TrimSpace(qualified)
	i := strings.LastIndexAny(qualified, "/#")
	if i < 0 {
		return Term{name: qualified}
	}
	return Term{namespace: qualified[:i+1], name: qualified[i+1:]}
}

// ParseTerm accepts a qualified name or a "prefix:name" short form for
// the dwc, dc and gbif vocabularies.
func ParseTerm(s string) Term {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		return NewTerm(s)
	}
	if prefix, name, ok := strings.Cut(s, ":"); ok {
		if ns, known := prefixes[strings.ToLower(prefix)]; known {
			return Term{namespace: ns, name: name}
		}
	}
	return NewTerm(s)
}

// QualifiedName returns the full name of the term.
func (t Term) QualifiedName() string {
	return t.namespace + t.name
}

// SimpleName returns the name without its namespace.
func (t Term) SimpleName() string {
	return t.name
}

// Namespace returns the namespace part, possibly empty.
func (t Term) Namespace() string {
	return t.namespace
}

// Prefixed returns "prefix:name" for known vocabularies and the qualified
// name otherwise.
func (t Term) Prefixed() string {
	for prefix, ns := range prefixes {
		if ns == t.namespace {
			return prefix + ":" + t.name
		}
	}
	return t.QualifiedName()
}

// IsZero reports whether the term is empty.
func (t Term) IsZero() bool {
	return t.namespace == "" && t.name == ""
}

// Equal compares terms by qualified name.
func (t Term) Equal(other Term) bool {
	return t.namespace == other.namespace && t.name == other.name
}

// String returns the qualified name.
func (t Term) String() string {
	return t.QualifiedName()
}
