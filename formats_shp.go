package geoartifacts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/andreiashu/geoartifacts/geotable"
)

// loadShapefile reads a .shp file and its .dbf attributes. Numeric dBase
// fields (N, F) become numeric columns; everything else is kept as text.
func loadShapefile(path string) (*geotable.Table, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	builders := make([]*columnBuilder, len(fields))
	numeric := make([]bool, len(fields))
	for i, f := range fields {
		builders[i] = newColumnBuilder(f.String(), 64)
		numeric[i] = f.Fieldtype == 'N' || f.Fieldtype == 'F'
	}

	var geoms geotable.GeometrySet
	for r.Next() {
		n, shape := r.Shape()
		geoms = append(geoms, shapeToGeometry(shape))
		for i := range fields {
			raw := strings.TrimSpace(strings.Trim(r.ReadAttribute(n, i), "\x00"))
			builders[i].add(dbfValue(raw, numeric[i]))
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading shapefile %s: %w", path, err)
	}
	return geotable.New(geoms, buildColumns(builders)...)
}

func dbfValue(raw string, numeric bool) any {
	if raw == "" {
		return nil
	}
	if !numeric {
		return raw
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return nil
}

// shapeToGeometry converts a shapefile record to an orb geometry. Z and M
// values are dropped.
func shapeToGeometry(s shp.Shape) orb.Geometry {
	switch g := s.(type) {
	case *shp.Point:
		return orb.Point{g.X, g.Y}
	case *shp.PointZ:
		return orb.Point{g.X, g.Y}
	case *shp.PointM:
		return orb.Point{g.X, g.Y}
	case *shp.MultiPoint:
		return multiPoint(g.Points)
	case *shp.MultiPointZ:
		return multiPoint(g.Points)
	case *shp.PolyLine:
		return lines(g.Parts, g.Points)
	case *shp.PolyLineZ:
		return lines(g.Parts, g.Points)
	case *shp.PolyLineM:
		return lines(g.Parts, g.Points)
	case *shp.Polygon:
		return polygons(g.Parts, g.Points)
	case *shp.PolygonZ:
		return polygons(g.Parts, g.Points)
	case *shp.PolygonM:
		return polygons(g.Parts, g.Points)
	default:
		return nil
	}
}

func multiPoint(pts []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// partPoints splits a shapefile point list at the part offsets.
func partPoints(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func lines(parts []int32, pts []shp.Point) orb.Geometry {
	segs := partPoints(parts, pts)
	if len(segs) == 1 {
		return orb.LineString(segs[0])
	}
	mls := make(orb.MultiLineString, len(segs))
	for i, s := range segs {
		mls[i] = orb.LineString(s)
	}
	return mls
}

// polygons groups shapefile rings into polygons. Outer rings are clockwise
// and start a new polygon; counter-clockwise rings are holes of the polygon
// before them.
func polygons(parts []int32, pts []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, seg := range partPoints(parts, pts) {
		ring := orb.Ring(seg)
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}
