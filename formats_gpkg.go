package geoartifacts

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/andreiashu/geoartifacts/geotable"
)

// gpkgLayer is a feature table registered in a GeoPackage.
type gpkgLayer struct {
	Table    string `db:"table_name"`
	Column   string `db:"column_name"`
	GeomType string `db:"geometry_type_name"`
}

const gpkgLayersQuery = `
SELECT c.table_name, g.column_name, g.geometry_type_name
FROM gpkg_contents c
JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
WHERE c.data_type = 'features'
ORDER BY c.table_name`

// openGeoPackage opens a GeoPackage read-only.
func openGeoPackage(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening geopackage %s: %w", path, err)
	}
	return db, nil
}

// geoPackageLayers lists the feature layers of a GeoPackage in table name order.
func geoPackageLayers(db *sqlx.DB) ([]gpkgLayer, error) {
	var layers []gpkgLayer
	if err := db.Select(&layers, gpkgLayersQuery); err != nil {
		return nil, fmt.Errorf("listing geopackage layers: %w", err)
	}
	return layers, nil
}

// loadGeoPackage loads feature layer number layer (0-based, in table name
// order) into a table over a GeometrySet.
func loadGeoPackage(path string, layer int) (*geotable.Table, error) {
	db, err := openGeoPackage(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	layers, err := geoPackageLayers(db)
	if err != nil {
		return nil, err
	}
	if layer < 0 || layer >= len(layers) {
		return nil, &NotFoundError{
			Resource: "geopackage layer",
			Query:    fmt.Sprintf("%d in %s (%d layers)", layer, filepath.Base(path), len(layers)),
		}
	}
	l := layers[layer]

	rows, err := db.Queryx("SELECT * FROM " + quoteIdent(l.Table))
	if err != nil {
		return nil, fmt.Errorf("reading layer %s: %w", l.Table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	geomIdx := -1
	builders := make([]*columnBuilder, 0, len(names))
	for i, n := range names {
		if n == l.Column {
			geomIdx = i
			continue
		}
		builders = append(builders, newColumnBuilder(n, 64))
	}
	if geomIdx < 0 {
		return nil, &SchemaMismatchError{Source: l.Table, Missing: []string{l.Column}}
	}

	var geoms geotable.GeometrySet
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scanning layer %s: %w", l.Table, err)
		}
		b := 0
		for i, v := range vals {
			if i == geomIdx {
				blob, _ := v.([]byte)
				g, err := decodeGeoPackageGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("layer %s row %d: %w", l.Table, len(geoms), err)
				}
				geoms = append(geoms, g)
				continue
			}
			builders[b].add(sqlValue(v))
			b++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return geotable.New(geoms, buildColumns(builders)...)
}

// sqlValue normalizes driver values to the kinds columnBuilder understands.
func sqlValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// decodeGeoPackageGeometry strips the GeoPackage binary header (magic "GP",
// version, flags, srs id, optional envelope) and decodes the WKB payload.
// Empty geometries and NULL blobs decode to nil.
func decodeGeoPackageGeometry(b []byte) (orb.Geometry, error) {
	if b == nil {
		return nil, nil
	}
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, fmt.Errorf("not a geopackage geometry blob")
	}
	flags := b[3]
	if flags&0x20 != 0 {
		return nil, fmt.Errorf("extended geopackage geometries are not supported")
	}
	if flags&0x10 != 0 {
		return nil, nil
	}

	var envLen int
	switch (flags >> 1) & 0x07 {
	case 0:
		envLen = 0
	case 1:
		envLen = 32
	case 2, 3:
		envLen = 48
	case 4:
		envLen = 64
	default:
		return nil, fmt.Errorf("invalid geopackage envelope indicator %d", (flags>>1)&0x07)
	}
	start := 8 + envLen
	if len(b) < start {
		return nil, fmt.Errorf("truncated geopackage geometry")
	}
	return wkb.Unmarshal(b[start:])
}
