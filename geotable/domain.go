package geotable

import (
	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// DomainKind identifies the geometry collection backing a table.
type DomainKind int

const (
	DomainPoints DomainKind = iota
	DomainPoints3
	DomainGeometries
	DomainGrid
	DomainNone
)

func (k DomainKind) String() string {
	switch k {
	case DomainPoints:
		return "points"
	case DomainPoints3:
		return "points3d"
	case DomainGeometries:
		return "geometries"
	case DomainGrid:
		return "grid"
	case DomainNone:
		return "none"
	default:
		return "unknown"
	}
}

// Domain is the geometry side of a table. Element i belongs to row i.
type Domain interface {
	Kind() DomainKind
	Len() int
	Element(i int) any
}

// PointSet is a set of 2D points in (lon, lat) or projected (x, y) order.
type PointSet []orb.Point

func (PointSet) Kind() DomainKind    { return DomainPoints }
func (p PointSet) Len() int          { return len(p) }
func (p PointSet) Element(i int) any { return p[i] }

// PointSet3 is a set of 3D points stored as (X: lon, Y: lat, Z: altitude).
type PointSet3 []r3.Vector

func (PointSet3) Kind() DomainKind    { return DomainPoints3 }
func (p PointSet3) Len() int          { return len(p) }
func (p PointSet3) Element(i int) any { return p[i] }

// GeometrySet holds polygons, multipolygons, lines or mixed geometries.
type GeometrySet []orb.Geometry

func (GeometrySet) Kind() DomainKind    { return DomainGeometries }
func (g GeometrySet) Len() int          { return len(g) }
func (g GeometrySet) Element(i int) any { return g[i] }

// Grid is a regular 2D grid. Cells are numbered row-major with the first
// index varying fastest along X.
type Grid struct {
	Dims    [2]int
	Origin  orb.Point
	Spacing [2]float64
}

func (Grid) Kind() DomainKind { return DomainGrid }
func (g Grid) Len() int       { return g.Dims[0] * g.Dims[1] }

// Element returns the centroid of cell i.
func (g Grid) Element(i int) any {
	return g.Center(i)
}

// Center returns the centroid of cell i.
func (g Grid) Center(i int) orb.Point {
	x := i % g.Dims[0]
	y := i / g.Dims[0]
	return orb.Point{
		g.Origin[0] + (float64(x)+0.5)*g.Spacing[0],
		g.Origin[1] + (float64(y)+0.5)*g.Spacing[1],
	}
}

// Index returns the linear cell index for (x, y).
func (g Grid) Index(x, y int) int {
	return y*g.Dims[0] + x
}

// Rows is a domain without geometry. Record-oriented sources (CSV, JSON) load
// into it before their coordinate columns are turned into points.
type Rows int

func (Rows) Kind() DomainKind { return DomainNone }
func (r Rows) Len() int       { return int(r) }
func (Rows) Element(int) any  { return nil }
