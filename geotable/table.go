// Package geotable provides a column-oriented table whose rows are associated
// 1:1 with the elements of a geometry domain (points, 3D points, polygons or
// grid cells).
//
// Tables are cheap to restrict: Restrict and Select return views that share
// the columns and the domain of their parent instead of copying them.
package geotable

import (
	"fmt"
	"slices"
)

// Table is a set of named columns over a geometry domain.
type Table struct {
	columns []Column
	index   map[string]int
	domain  Domain
	rows    []int // nil means every row of the domain, in order
}

// New creates a table. Every column must have exactly domain.Len() values
// and column names must be unique.
func New(domain Domain, columns ...Column) (*Table, error) {
	if domain == nil {
		return nil, fmt.Errorf("geotable: nil domain")
	}
	t := &Table{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		domain:  domain,
	}
	for _, c := range columns {
		if c.Len() != domain.Len() {
			return nil, fmt.Errorf("geotable: column %q has %d values, domain has %d elements", c.Name(), c.Len(), domain.Len())
		}
		if _, dup := t.index[c.Name()]; dup {
			return nil, fmt.Errorf("geotable: duplicate column %q", c.Name())
		}
		t.index[c.Name()] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// MustNew is like New but panics on error. Intended for tests and fixed schemas.
func MustNew(domain Domain, columns ...Column) *Table {
	t, err := New(domain, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the number of rows visible through this table.
func (t *Table) NumRows() int {
	if t.rows == nil {
		return t.domain.Len()
	}
	return len(t.rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name()
	}
	return names
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the underlying column. Indexes into the returned column are
// domain indexes; use Source to translate a row number when the table is a view.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Domain returns the underlying, shared geometry domain.
func (t *Table) Domain() Domain { return t.domain }

// Source maps a row number of this table to the index in the underlying domain.
func (t *Table) Source(row int) int {
	if t.rows == nil {
		return row
	}
	return t.rows[row]
}

// IsView reports whether the table is a restriction of a larger domain.
func (t *Table) IsView() bool { return t.rows != nil }

// Geometry returns the domain element backing a row.
func (t *Table) Geometry(row int) any {
	return t.domain.Element(t.Source(row))
}

// Value returns the value of a column at a row, or nil when it is missing or
// the column does not exist.
func (t *Table) Value(name string, row int) any {
	c, ok := t.Column(name)
	if !ok {
		return nil
	}
	return c.Value(t.Source(row))
}

// Text returns the string form of a value at a row.
func (t *Table) Text(name string, row int) string {
	c, ok := t.Column(name)
	if !ok {
		return ""
	}
	return c.Text(t.Source(row))
}

// Float returns a numeric value at a row.
func (t *Table) Float(name string, row int) (float64, bool) {
	c, ok := t.Column(name)
	if !ok {
		return 0, false
	}
	return AsFloat(c, t.Source(row))
}

// Row returns the values of one row keyed by column name.
func (t *Table) Row(row int) map[string]any {
	src := t.Source(row)
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		out[c.Name()] = c.Value(src)
	}
	return out
}

// Restrict returns a view containing the given rows of t, in the given order.
// The view shares columns and domain with t.
func (t *Table) Restrict(rows []int) *Table {
	mapped := make([]int, len(rows))
	for i, r := range rows {
		mapped[i] = t.Source(r)
	}
	return &Table{
		columns: t.columns,
		index:   t.index,
		domain:  t.domain,
		rows:    mapped,
	}
}

// Where returns the view of rows for which keep returns true.
func (t *Table) Where(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.NumRows(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	if rows == nil {
		rows = []int{}
	}
	return t.Restrict(rows)
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{
		columns: make([]Column, 0, len(names)),
		index:   make(map[string]int, len(names)),
		domain:  t.domain,
		rows:    t.rows,
	}
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("geotable: unknown column %q", n)
		}
		out.index[n] = len(out.columns)
		out.columns = append(out.columns, c)
	}
	return out, nil
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	keep := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if !slices.Contains(names, c.Name()) {
			keep = append(keep, c.Name())
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// WithDomain returns a table with the same visible rows over a new domain.
// The new domain must have one element per visible row; views are compacted.
func (t *Table) WithDomain(d Domain) (*Table, error) {
	if d.Len() != t.NumRows() {
		return nil, fmt.Errorf("geotable: domain has %d elements, table has %d rows", d.Len(), t.NumRows())
	}
	if t.rows == nil {
		return New(d, t.columns...)
	}
	cols := make([]Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = compact(c, t.rows)
	}
	return New(d, cols...)
}

// compact copies the selected rows of a column into a new column of the same kind.
func compact(c Column, rows []int) Column {
	missing := make([]bool, len(rows))
	switch col := c.(type) {
	case *Float64Column:
		vals := make([]float64, len(rows))
		for i, r := range rows {
			vals[i] = col.values[r]
			missing[i] = col.IsMissing(r)
		}
		return NewFloat64Column(col.name, vals, missing)
	case *Int64Column:
		vals := make([]int64, len(rows))
		for i, r := range rows {
			vals[i] = col.values[r]
			missing[i] = col.IsMissing(r)
		}
		return NewInt64Column(col.name, vals, missing)
	default:
		vals := make([]string, len(rows))
		for i, r := range rows {
			vals[i] = c.Text(r)
			missing[i] = c.IsMissing(r)
		}
		return NewStringColumn(c.Name(), vals, missing)
	}
}
