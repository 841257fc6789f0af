package geoartifacts

import (
	"iter"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSuggestionDistance caps the edit distance of "did you mean" suggestions.
const maxSuggestionDistance = 3

// maxSuggestions is the number of suggestions attached to a NotFoundError.
const maxSuggestions = 3

// Predicate selects catalog rows.
type Predicate[R any] func(R) bool

// Catalog is a static, ordered metadata table. It is read-only once built and
// safe for concurrent use.
type Catalog[R any] struct {
	resource string
	rows     []R
	key      func(R) string
}

// NewCatalog creates a catalog over rows. key extracts the human-facing name
// of a row and is used for suggestions; it may be nil.
func NewCatalog[R any](resource string, rows []R, key func(R) string) *Catalog[R] {
	return &Catalog[R]{resource: resource, rows: rows, key: key}
}

// Len returns the number of rows.
func (c *Catalog[R]) Len() int { return len(c.rows) }

// Lookup returns the rows matching pred in catalog order. The sequence is
// lazy and can be ranged over any number of times.
func (c *Catalog[R]) Lookup(pred Predicate[R]) iter.Seq[R] {
	return func(yield func(R) bool) {
		for _, r := range c.rows {
			if pred != nil && !pred(r) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Query describes a lookup for error reporting.
type Query struct {
	Desc string // rendered into NotFoundError.Query, e.g. "scale=10m entity=lakes"
	Term string // the name the caller typed, ranked against row keys for suggestions
}

// First returns the first row matching pred.
func (c *Catalog[R]) First(query Query, pred Predicate[R]) (R, error) {
	for r := range c.Lookup(pred) {
		return r, nil
	}
	var zero R
	return zero, c.notFound(query)
}

// Latest returns the matching row with the greatest year. Among rows sharing
// that year the earliest in catalog order wins.
func (c *Catalog[R]) Latest(query Query, pred Predicate[R], year func(R) int) (R, error) {
	var (
		best  R
		found bool
	)
	for r := range c.Lookup(pred) {
		if !found || year(r) > year(best) {
			best, found = r, true
		}
	}
	if !found {
		return best, c.notFound(query)
	}
	return best, nil
}

// Keys returns the distinct row keys in catalog order.
func (c *Catalog[R]) Keys() []string {
	if c.key == nil {
		return nil
	}
	seen := make(map[string]bool)
	var keys []string
	for _, r := range c.rows {
		k := c.key(r)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Catalog[R]) notFound(query Query) *NotFoundError {
	return &NotFoundError{
		Resource:    c.resource,
		Query:       query.Desc,
		Suggestions: suggest(query.Term, c.Keys()),
	}
}

// suggest ranks candidates by edit distance to term after folding case and
// accents. Candidates containing term are ranked first.
func suggest(term string, candidates []string) []string {
	if term == "" || len(candidates) == 0 {
		return nil
	}
	t := foldName(term)

	type scored struct {
		name string
		dist int
	}
	var hits []scored
	for _, cand := range candidates {
		fc := foldName(cand)
		d := levenshtein.ComputeDistance(t, fc)
		if strings.Contains(fc, t) {
			d = 0
		}
		if d <= maxSuggestionDistance {
			hits = append(hits, scored{cand, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].name < hits[j].name
	})
	if len(hits) > maxSuggestions {
		hits = hits[:maxSuggestions]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}

// foldName lower-cases s and strips diacritics ("São Paulo" → "sao paulo").
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Exact matches rows whose field equals want.
func Exact[R any, V comparable](field func(R) V, want V) Predicate[R] {
	return func(r R) bool { return field(r) == want }
}

// Contains matches rows whose field contains sub. Matching is case and
// punctuation sensitive.
func Contains[R any](field func(R) string, sub string) Predicate[R] {
	return func(r R) bool { return strings.Contains(field(r), sub) }
}

// And matches rows satisfying every predicate. Nil predicates are skipped.
func And[R any](preds ...Predicate[R]) Predicate[R] {
	return func(r R) bool {
		for _, p := range preds {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// Any matches rows satisfying at least one predicate.
func Any[R any](preds ...Predicate[R]) Predicate[R] {
	return func(r R) bool {
		for _, p := range preds {
			if p != nil && p(r) {
				return true
			}
		}
		return false
	}
}
