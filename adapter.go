package geoartifacts

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/andreiashu/geoartifacts/geotable"
)

// ColumnFilter keeps rows whose column text equals Value.
type ColumnFilter struct {
	Column string
	Value  string
}

func (f ColumnFilter) String() string { return f.Column + "=" + f.Value }

// FilterEqual restricts t to the rows matching every filter. The result is a
// view sharing t's columns and domain. A filter on an absent column is a
// SchemaMismatchError; a filter leaving no rows is a NotFoundError suggesting
// values present in that column.
func FilterEqual(t *geotable.Table, filters []ColumnFilter) (*geotable.Table, error) {
	var missing []string
	for _, f := range filters {
		if !t.Has(f.Column) {
			missing = append(missing, f.Column)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Source: "filter", Missing: missing}
	}

	out := t
	for i, f := range filters {
		next := out.Where(func(row int) bool {
			return out.Text(f.Column, row) == f.Value
		})
		if next.NumRows() == 0 {
			return nil, &NotFoundError{
				Resource:    f.Column,
				Query:       describeFilters(filters[:i+1]),
				Suggestions: suggest(f.Value, distinctText(out, f.Column)),
			}
		}
		out = next
	}
	return out, nil
}

func describeFilters(filters []ColumnFilter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, " ")
}

// distinctText returns the distinct non-missing values of a column in row order.
func distinctText(t *geotable.Table, name string) []string {
	seen := make(map[string]bool)
	var out []string
	for row := 0; row < t.NumRows(); row++ {
		v := t.Text(name, row)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// SplitColumns partitions the columns of t into feature columns and the
// given coordinate columns. Every column lands on exactly one side.
func SplitColumns(t *geotable.Table, coords []string) (features, coordinates []string, err error) {
	var missing []string
	for _, c := range coords {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &SchemaMismatchError{Source: "coordinates", Missing: missing}
	}
	for _, n := range t.Names() {
		if !slices.Contains(coords, n) {
			features = append(features, n)
		}
	}
	return features, slices.Clone(coords), nil
}

// PointsFromColumns builds a point domain from two (x, y) or three
// (lon, lat, alt) coordinate columns. The coordinate columns are consumed
// and row order is preserved. Missing coordinates become NaN.
func PointsFromColumns(t *geotable.Table, coords ...string) (*geotable.Table, error) {
	if len(coords) != 2 && len(coords) != 3 {
		return nil, fmt.Errorf("points need 2 or 3 coordinate columns, got %d", len(coords))
	}
	if _, _, err := SplitColumns(t, coords); err != nil {
		return nil, err
	}

	n := t.NumRows()
	coord := func(name string, row int) float64 {
		if v, ok := t.Float(name, row); ok {
			return v
		}
		return math.NaN()
	}

	var domain geotable.Domain
	if len(coords) == 2 {
		pts := make(geotable.PointSet, n)
		for row := range n {
			pts[row] = orb.Point{coord(coords[0], row), coord(coords[1], row)}
		}
		domain = pts
	} else {
		pts := make(geotable.PointSet3, n)
		for row := range n {
			pts[row].X = coord(coords[0], row)
			pts[row].Y = coord(coords[1], row)
			pts[row].Z = coord(coords[2], row)
		}
		domain = pts
	}
	return t.Drop(coords...).WithDomain(domain)
}

// Decimation controls polygon simplification. The zero value disables it.
type Decimation struct {
	Tolerance     float64 // maximum Douglas-Peucker distance, in coordinate units
	MinVertices   int     // per feature; the tolerance is halved until met
	MaxVertices   int     // per feature; the tolerance is doubled until met when Tolerance is 0
	MaxIterations int     // bound on tolerance adjustments (default 10)
}

// IsZero reports whether d disables simplification.
func (d Decimation) IsZero() bool { return d == Decimation{} }

const (
	defaultDecimationTolerance  = 1e-3
	defaultDecimationIterations = 10
)

// Simplify reduces the vertex density of every geometry in t. The number of
// features never changes; a feature whose simplification would collapse or
// fall below MinVertices keeps its original geometry.
func Simplify(t *geotable.Table, d Decimation) (*geotable.Table, error) {
	if d.IsZero() {
		return t, nil
	}
	return mapGeometries(t, func(g orb.Geometry) orb.Geometry {
		return decimate(g, d)
	})
}

func decimate(g orb.Geometry, d Decimation) orb.Geometry {
	if g == nil {
		return nil
	}
	thr := d.Tolerance
	if thr <= 0 {
		thr = defaultDecimationTolerance
	}
	iters := d.MaxIterations
	if iters <= 0 {
		iters = defaultDecimationIterations
	}

	best := g
	for range iters {
		s := simplify.DouglasPeucker(thr).Simplify(orb.Clone(g))
		n := vertexCount(s)
		if n == 0 || (d.MinVertices > 0 && n < d.MinVertices) {
			thr /= 2
			continue
		}
		best = s
		if d.Tolerance == 0 && d.MaxVertices > 0 && n > d.MaxVertices {
			thr *= 2
			continue
		}
		break
	}
	return best
}

func vertexCount(g orb.Geometry) int {
	switch v := g.(type) {
	case nil:
		return 0
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(v)
	case orb.LineString:
		return len(v)
	case orb.Ring:
		return len(v)
	case orb.MultiLineString:
		n := 0
		for _, l := range v {
			n += len(l)
		}
		return n
	case orb.Polygon:
		n := 0
		for _, r := range v {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			n += vertexCount(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range v {
			n += vertexCount(c)
		}
		return n
	default:
		return 0
	}
}

// FixPolygons repairs polygon geometries: open rings are closed, rings with
// fewer than four points or zero area are dropped, outer rings are made
// counter-clockwise and holes clockwise. A feature that would lose every ring
// keeps its original geometry.
func FixPolygons(t *geotable.Table) (*geotable.Table, error) {
	return mapGeometries(t, fixGeometry)
}

func fixGeometry(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		if p := fixPolygon(v); p != nil {
			return p
		}
	case orb.MultiPolygon:
		var mp orb.MultiPolygon
		for _, p := range v {
			if fp := fixPolygon(p); fp != nil {
				mp = append(mp, fp)
			}
		}
		if len(mp) > 0 {
			return mp
		}
	}
	return g
}

// fixPolygon returns nil when the outer ring is degenerate.
func fixPolygon(p orb.Polygon) orb.Polygon {
	var out orb.Polygon
	for i, r := range p {
		fr := fixRing(r, i == 0)
		if fr == nil {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, fr)
	}
	return out
}

func fixRing(r orb.Ring, outer bool) orb.Ring {
	fr := slices.Clone(r)
	if len(fr) > 0 && !fr.Closed() {
		fr = append(fr, fr[0])
	}
	if len(fr) < 4 {
		return nil
	}
	o := fr.Orientation()
	if o == 0 {
		return nil
	}
	if (outer && o != orb.CCW) || (!outer && o != orb.CW) {
		fr.Reverse()
	}
	return fr
}

// mapGeometries applies fn to each visible geometry of t and returns a
// table over the new geometries. Tables without a geometry set are returned
// unchanged.
func mapGeometries(t *geotable.Table, fn func(orb.Geometry) orb.Geometry) (*geotable.Table, error) {
	if t.Domain().Kind() != geotable.DomainGeometries {
		return t, nil
	}
	geoms := make(geotable.GeometrySet, t.NumRows())
	for row := range geoms {
		g, _ := t.Geometry(row).(orb.Geometry)
		geoms[row] = fn(g)
	}
	return t.WithDomain(geoms)
}
