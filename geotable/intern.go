package geotable

import "fmt"

// dictionary maps the distinct values of a categorical column to small codes.
// It is filled while the column is built and read-only afterwards, so reads
// take no lock. Code 0 is the empty string.
type dictionary[T ~uint16 | ~uint32] struct {
	values []string
	codes  map[string]T // nil once frozen
}

func newDictionary[T ~uint16 | ~uint32](capacity int) *dictionary[T] {
	return &dictionary[T]{
		values: make([]string, 1, capacity),
		codes:  map[string]T{"": 0},
	}
}

// code returns the code of s, assigning the next one on first sight.
func (d *dictionary[T]) code(s string) T {
	if c, ok := d.codes[s]; ok {
		return c
	}
	if limit := uint64(^T(0)); uint64(len(d.values)) > limit {
		panic(fmt.Sprintf("geotable: more than %d distinct values in a column", limit))
	}
	c := T(len(d.values))
	d.values = append(d.values, s)
	d.codes[s] = c
	return c
}

// freeze drops the reverse map once no more values will be added.
func (d *dictionary[T]) freeze() { d.codes = nil }

// value returns the string for a code, or "" when out of range.
func (d *dictionary[T]) value(c T) string {
	if int(c) < len(d.values) {
		return d.values[c]
	}
	return ""
}

// size returns the number of codes, including the empty string.
func (d *dictionary[T]) size() int { return len(d.values) }
