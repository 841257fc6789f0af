package geoartifacts

import (
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/andreiashu/geoartifacts/geotable"
)

// loadGeoJSON reads a FeatureCollection. Property keys across all features
// become columns in sorted order; features lacking a key get a missing value.
func loadGeoJSON(path string) (*geotable.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding geojson %s: %w", path, err)
	}
	return featureTable(fc)
}

func featureTable(fc *geojson.FeatureCollection) (*geotable.Table, error) {
	keys := make(map[string]bool)
	for _, f := range fc.Features {
		for k := range f.Properties {
			keys[k] = true
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	builders := make([]*columnBuilder, len(names))
	for i, n := range names {
		builders[i] = newColumnBuilder(n, len(fc.Features))
	}
	geoms := make(geotable.GeometrySet, len(fc.Features))
	for r, f := range fc.Features {
		geoms[r] = f.Geometry
		for i, n := range names {
			builders[i].add(jsonValue(f.Properties[n]))
		}
	}
	return geotable.New(geoms, buildColumns(builders)...)
}
