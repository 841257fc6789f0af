package geotable

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// initialSearchKm is the radius of the first search cap. It doubles until
// the cap provably holds the k nearest rows.
const initialSearchKm = 150.0

// searchCoverCells bounds the size of each cap covering.
const searchCoverCells = 12

// earthRadiusKm converts unit-sphere angles to kilometers.
const earthRadiusKm = 6371.0088

// PointIndex answers nearest-row queries over a table with a point domain.
// Rows are kept sorted by S2 leaf cell so the rows below any cell form one
// contiguous range. Safe for concurrent use after construction.
type PointIndex struct {
	table  *Table
	points []s2.LatLng // by row
	cells  []s2.CellID // leaf cells, ascending
	rows   []int       // rows[i] is the row located at cells[i]
}

// Neighbor is a row of the indexed table and its distance from the query.
type Neighbor struct {
	Row        int
	DistanceKm float64
}

// NewPointIndex builds an S2 index over the visible rows of t. The table
// domain must be a PointSet or PointSet3 in (lon, lat) order.
func NewPointIndex(t *Table) (*PointIndex, error) {
	n := t.NumRows()
	idx := &PointIndex{
		table:  t,
		points: make([]s2.LatLng, n),
		cells:  make([]s2.CellID, n),
		rows:   make([]int, n),
	}
	for row := 0; row < n; row++ {
		var lon, lat float64
		switch p := t.Geometry(row).(type) {
		case orb.Point:
			lon, lat = p[0], p[1]
		case r3.Vector:
			lon, lat = p.X, p.Y
		default:
			return nil, fmt.Errorf("geotable: point index needs a point domain, got %s", t.Domain().Kind())
		}
		idx.points[row] = s2.LatLngFromDegrees(lat, lon)
		idx.rows[row] = row
	}
	leaf := make([]s2.CellID, n)
	for row, ll := range idx.points {
		leaf[row] = s2.CellIDFromLatLng(ll)
	}
	sort.Slice(idx.rows, func(i, j int) bool { return leaf[idx.rows[i]] < leaf[idx.rows[j]] })
	for i, row := range idx.rows {
		idx.cells[i] = leaf[row]
	}
	return idx, nil
}

// Nearest returns the row closest to (lat, lon). ok is false for an empty
// table or non-finite input.
func (x *PointIndex) Nearest(lat, lon float64) (Neighbor, bool) {
	got := x.KNearest(lat, lon, 1)
	if len(got) == 0 {
		return Neighbor{}, false
	}
	return got[0], true
}

// KNearest returns up to k rows ordered by distance, then by row number.
//
// Candidates come from the cells covering a cap around the query. The cap
// grows until its k-th closest candidate lies inside it: every row outside
// the covering is then farther than the cap radius, hence farther than the
// k-th candidate.
func (x *PointIndex) KNearest(lat, lon float64, k int) []Neighbor {
	if k <= 0 || len(x.points) == 0 ||
		math.IsNaN(lat) || math.IsNaN(lon) ||
		math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return nil
	}
	query := s2.LatLngFromDegrees(lat, lon)
	center := s2.PointFromLatLng(query)
	coverer := &s2.RegionCoverer{MaxLevel: s2.MaxLevel, MaxCells: searchCoverCells}

	radius := s1.Angle(initialSearchKm / earthRadiusKm)
	for {
		if radius > math.Pi {
			radius = math.Pi
		}
		covering := coverer.Covering(s2.CapFromCenterAngle(center, radius))
		out := x.candidates(query, covering)
		if radius == math.Pi || (len(out) >= k && out[k-1].DistanceKm <= float64(radius)*earthRadiusKm) {
			if len(out) > k {
				out = out[:k]
			}
			return out
		}
		radius *= 2
	}
}

// candidates returns the rows inside the cells of covering, nearest first.
func (x *PointIndex) candidates(query s2.LatLng, covering s2.CellUnion) []Neighbor {
	var out []Neighbor
	for _, c := range covering {
		lo := sort.Search(len(x.cells), func(i int) bool { return x.cells[i] >= c.RangeMin() })
		hi := sort.Search(len(x.cells), func(i int) bool { return x.cells[i] > c.RangeMax() })
		for _, row := range x.rows[lo:hi] {
			angle := float64(query.Distance(x.points[row]))
			out = append(out, Neighbor{Row: row, DistanceKm: angle * earthRadiusKm})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Row < out[j].Row
	})
	return out
}

// Table returns the indexed table.
func (x *PointIndex) Table() *Table { return x.table }
