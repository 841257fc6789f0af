package geotable

import (
	"math"
	"strconv"
)

// Kind identifies the value type stored in a column.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	default:
		return "string"
	}
}

// Column is a named, typed, ordered sequence of values. Any value may be missing.
type Column interface {
	Name() string
	Kind() Kind
	Len() int
	// IsMissing reports whether row i has no value.
	IsMissing(i int) bool
	// Value returns the row value, or nil when missing.
	Value(i int) any
	// Text renders row i as a string; missing values render as "".
	Text(i int) string
}

// StringColumn stores categorical values as interned codes.
type StringColumn struct {
	name    string
	codes   []uint32
	missing []bool
	dict    *dictionary[uint32]
}

// NewStringColumn builds a categorical column. missing may be nil.
func NewStringColumn(name string, values []string, missing []bool) *StringColumn {
	c := &StringColumn{
		name:    name,
		codes:   make([]uint32, len(values)),
		missing: missing,
		dict:    newDictionary[uint32](64),
	}
	for i, v := range values {
		c.codes[i] = c.dict.code(v)
	}
	c.dict.freeze()
	return c
}

func (c *StringColumn) Name() string { return c.name }
func (c *StringColumn) Kind() Kind   { return KindString }
func (c *StringColumn) Len() int     { return len(c.codes) }

func (c *StringColumn) IsMissing(i int) bool {
	return c.missing != nil && c.missing[i]
}

func (c *StringColumn) Value(i int) any {
	if c.IsMissing(i) {
		return nil
	}
	return c.dict.value(c.codes[i])
}

func (c *StringColumn) Text(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	return c.dict.value(c.codes[i])
}

// Levels returns the number of distinct values held by the column.
func (c *StringColumn) Levels() int {
	return c.dict.size() - 1
}

// Float64Column stores continuous values.
type Float64Column struct {
	name    string
	values  []float64
	missing []bool
}

// NewFloat64Column builds a continuous column. missing may be nil.
func NewFloat64Column(name string, values []float64, missing []bool) *Float64Column {
	return &Float64Column{name: name, values: values, missing: missing}
}

func (c *Float64Column) Name() string { return c.name }
func (c *Float64Column) Kind() Kind   { return KindFloat }
func (c *Float64Column) Len() int     { return len(c.values) }

func (c *Float64Column) IsMissing(i int) bool {
	return (c.missing != nil && c.missing[i]) || math.IsNaN(c.values[i])
}

func (c *Float64Column) Value(i int) any {
	if c.IsMissing(i) {
		return nil
	}
	return c.values[i]
}

func (c *Float64Column) Text(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	return strconv.FormatFloat(c.values[i], 'f', -1, 64)
}

// Float returns the raw value at row i.
func (c *Float64Column) Float(i int) float64 { return c.values[i] }

// Int64Column stores integer values such as codes and counts.
type Int64Column struct {
	name    string
	values  []int64
	missing []bool
}

// NewInt64Column builds an integer column. missing may be nil.
func NewInt64Column(name string, values []int64, missing []bool) *Int64Column {
	return &Int64Column{name: name, values: values, missing: missing}
}

func (c *Int64Column) Name() string { return c.name }
func (c *Int64Column) Kind() Kind   { return KindInt }
func (c *Int64Column) Len() int     { return len(c.values) }

func (c *Int64Column) IsMissing(i int) bool {
	return c.missing != nil && c.missing[i]
}

func (c *Int64Column) Value(i int) any {
	if c.IsMissing(i) {
		return nil
	}
	return c.values[i]
}

func (c *Int64Column) Text(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	return strconv.FormatInt(c.values[i], 10)
}

// Int returns the raw value at row i.
func (c *Int64Column) Int(i int) int64 { return c.values[i] }

// AsFloat reads a numeric value from any column kind. String columns are
// parsed; unparseable or missing values report ok=false.
func AsFloat(c Column, i int) (float64, bool) {
	if c.IsMissing(i) {
		return 0, false
	}
	switch col := c.(type) {
	case *Float64Column:
		return col.values[i], true
	case *Int64Column:
		return float64(col.values[i]), true
	default:
		f, err := strconv.ParseFloat(c.Text(i), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
}
