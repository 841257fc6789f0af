package geoartifacts

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiashu/geoartifacts/geotable"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestLoadGeoPackageLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.gpkg")
	writeGeoPackage(t, path, []gpkgFixtureLayer{
		{name: "layer_b", columns: []string{"NAME", "code_muni"}, rows: []gpkgFeature{
			{geom: square(0, 0, 1), attrs: map[string]any{"NAME": "Niterói", "code_muni": 3303302}},
			{geom: square(1, 1, 1), attrs: map[string]any{"NAME": nil, "code_muni": 3304557}},
		}},
		{name: "layer_a", columns: []string{"NAME"}, rows: []gpkgFeature{
			{geom: orb.MultiPolygon{square(5, 5, 2)}, attrs: map[string]any{"NAME": "Brasil"}},
		}},
	})

	first, err := loadGeoPackage(path, 0)
	require.NoError(t, err)
	require.Equal(t, 1, first.NumRows(), "layers are numbered in table name order")
	assert.Equal(t, orb.MultiPolygon{square(5, 5, 2)}, first.Geometry(0))
	assert.Equal(t, "Brasil", first.Text("NAME", 0))

	second, err := loadGeoPackage(path, 1)
	require.NoError(t, err)
	require.Equal(t, 2, second.NumRows())
	assert.Equal(t, []string{"fid", "NAME", "code_muni"}, second.Names())
	assert.Equal(t, square(0, 0, 1), second.Geometry(0))
	assert.Equal(t, "Niterói", second.Text("NAME", 0))
	assert.Nil(t, second.Value("NAME", 1))
	assert.Equal(t, "3304557", second.Text("code_muni", 1))

	col, ok := second.Column("code_muni")
	require.True(t, ok)
	assert.Equal(t, geotable.KindFloat, col.Kind())

	_, err = loadGeoPackage(path, 2)
	assert.True(t, IsNotFound(err))
}

func TestDecodeGeoPackageGeometry(t *testing.T) {
	g, err := decodeGeoPackageGeometry(nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = decodeGeoPackageGeometry([]byte("not a blob"))
	assert.Error(t, err)

	// Envelope indicator 1 adds four float64 after the srs id.
	plain := encodeGeoPackageGeometry(t, orb.Point{1, 2})
	withEnv := append([]byte{}, plain[:8]...)
	withEnv[3] |= 1 << 1
	for _, v := range []float64{1, 1, 2, 2} {
		withEnv = binary.LittleEndian.AppendUint64(withEnv, math.Float64bits(v))
	}
	withEnv = append(withEnv, plain[8:]...)
	g, err = decodeGeoPackageGeometry(withEnv)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, g)

	empty := append([]byte{}, plain...)
	empty[3] |= 0x10
	g, err = decodeGeoPackageGeometry(empty)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestLoadShapefile(t *testing.T) {
	dir := t.TempDir()
	paths := writeShapefile(t, dir, "ne_110m_lakes",
		[]string{"Titicaca", "Poopó"},
		[]int{8372, 0},
		[]orb.Polygon{square(-70, -16, 1), square(-67, -19, 0.5)},
	)
	for _, p := range paths {
		require.FileExists(t, p)
	}

	tbl, err := loadShapefile(paths[0])
	require.NoError(t, err)
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []string{"NAME", "POP"}, tbl.Names())
	assert.Equal(t, "Titicaca", tbl.Text("NAME", 0))
	assert.Equal(t, int64(8372), tbl.Value("POP", 0))
	assert.Equal(t, square(-67, -19, 0.5), tbl.Geometry(1))

	// Loading the directory of an unpacked archive picks the .shp.
	viaDir, err := loadPath(dir, FormatShapefile, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, viaDir.NumRows())
}

func shpPoints(rings ...[]orb.Point) []shp.Point {
	var out []shp.Point
	for _, r := range rings {
		for _, p := range r {
			out = append(out, shp.Point{X: p[0], Y: p[1]})
		}
	}
	return out
}

func TestShapefilePolygonRings(t *testing.T) {
	outer := []orb.Point{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}} // clockwise
	hole := []orb.Point{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}}  // counter-clockwise
	second := []orb.Point{{10, 10}, {10, 11}, {11, 11}, {11, 10}, {10, 10}}

	g := polygons([]int32{0, 5, 10}, shpPoints(outer, hole, second))
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 2, "hole attached to the preceding outer ring")
	assert.Len(t, mp[1], 1)

	single := polygons([]int32{0}, shpPoints(outer))
	_, ok = single.(orb.Polygon)
	assert.True(t, ok)
}

func TestLoadGeoTIFFGridOrientation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Strebelle.tif", grayTIFF(t, 3, 2))

	tbl, err := loadGeoTIFF(path)
	require.NoError(t, err)
	grid, ok := tbl.Domain().(geotable.Grid)
	require.True(t, ok)
	assert.Equal(t, [2]int{3, 2}, grid.Dims)
	assert.Equal(t, 6, tbl.NumRows())
	assert.Equal(t, []string{"Z"}, tbl.Names())

	z := func(x, y int) float64 {
		v, ok := tbl.Float("Z", grid.Index(x, y))
		require.True(t, ok)
		return v
	}
	// Grid row 0 is the bottom image row.
	assert.Equal(t, 3.0, z(0, 0))
	assert.Equal(t, 5.0, z(2, 0))
	assert.Equal(t, 0.0, z(0, 1))
	assert.Equal(t, orb.Point{0.5, 0.5}, tbl.Geometry(0))
}

func TestLoadGeoJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ne_110m_populated_places.geojson", []byte(`{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-43.2, -22.9]},
	     "properties": {"NAME": "Rio de Janeiro", "POP_MAX": 11748000, "capital": false}},
	    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-47.9, -15.8]},
	     "properties": {"NAME": "Brasília", "POP_MAX": 3716996, "tags": ["capital"]}}
	  ]
	}`))

	tbl, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []string{"NAME", "POP_MAX", "capital", "tags"}, tbl.Names())
	assert.Equal(t, orb.Point{-47.9, -15.8}, tbl.Geometry(1))
	assert.Equal(t, 11748000.0, tbl.Value("POP_MAX", 0))
	assert.Equal(t, "false", tbl.Text("capital", 0))
	assert.Nil(t, tbl.Value("capital", 1))
	assert.Equal(t, `["capital"]`, tbl.Text("tags", 1))
}

func TestLoadLatin1CSV(t *testing.T) {
	data := []byte("preamble line\n" +
		"NOME;VALOR;CODIGO\r\n" +
		"S\xe3o Paulo;1,5;35\r\n" +
		"Bras\xedlia;;53\r\n" +
		"\r\n" +
		"Goi\xe2nia;-2,25\r\n")
	path := writeFile(t, t.TempDir(), "latin1.csv", data)

	tbl, err := loadCSV(path, csvOptions{Comma: ';', Latin1: true, SkipLines: 1, DecimalComma: true})
	require.NoError(t, err)
	require.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, geotable.DomainNone, tbl.Domain().Kind())
	assert.Equal(t, "São Paulo", tbl.Text("NOME", 0))
	assert.Equal(t, "Brasília", tbl.Text("NOME", 1))
	assert.Equal(t, 1.5, tbl.Value("VALOR", 0))
	assert.Nil(t, tbl.Value("VALOR", 1))
	assert.Equal(t, -2.25, tbl.Value("VALOR", 2))
	assert.Equal(t, int64(53), tbl.Value("CODIGO", 1))
	assert.Nil(t, tbl.Value("CODIGO", 2), "short rows are padded")
}

func TestLoadCSVStripsBOM(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bom.csv", []byte("\xef\xbb\xbfgeo,year\nstate,2020\n"))
	tbl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"geo", "year"}, tbl.Names())
	assert.Equal(t, int64(2020), tbl.Value("year", 0))
}

func TestLoadJSONRecords(t *testing.T) {
	path := writeFile(t, t.TempDir(), "estacoes.json", []byte(`[
	  {"CD_ESTACAO": "A001", "VL_ALTITUDE": "1160.96", "CD_WSI": 1},
	  {"CD_ESTACAO": "A002", "VL_ALTITUDE": null, "CD_WSI": 2.5, "EXTRA": {"a": 1}}
	]`))
	tbl, err := loadPath(path, FormatJSON, 0)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []string{"CD_ESTACAO", "CD_WSI", "EXTRA", "VL_ALTITUDE"}, tbl.Names())
	assert.Equal(t, "A002", tbl.Text("CD_ESTACAO", 1))
	assert.Equal(t, 2.5, tbl.Value("CD_WSI", 1))
	assert.Nil(t, tbl.Value("VL_ALTITUDE", 1))
	assert.Equal(t, `{"a":1}`, tbl.Text("EXTRA", 1))

	v, ok := tbl.Float("VL_ALTITUDE", 0)
	require.True(t, ok)
	assert.Equal(t, 1160.96, v)
}

func TestParseCell(t *testing.T) {
	assert.Nil(t, parseCell("  ", false))
	assert.Equal(t, int64(-12), parseCell("-12", false))
	assert.Equal(t, 0.5, parseCell("0.5", false))
	assert.Equal(t, "0,5", parseCell("0,5", false))
	assert.Equal(t, 0.5, parseCell("0,5", true))
	assert.Equal(t, "1,2,3", parseCell("1,2,3", true))
}

func TestLoadFileUnsupported(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", []byte("x"))
	_, err := LoadFile(path)
	var ia *InvalidArgumentError
	require.True(t, errors.As(err, &ia))
	assert.Equal(t, "file", ia.Selector)
}

func TestPickFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b/layer.json", []byte("{}"))
	writeFile(t, dir, "a/readme.txt", []byte(""))
	writeFile(t, dir, "c/layer.geojson", []byte("{}"))

	got, err := pickFile(dir, formatExtensions[FormatGeoJSON]...)
	require.NoError(t, err)
	assert.Equal(t, "layer.geojson", filepath.Base(got), "extensions are tried in order")

	_, err = pickFile(dir, ".shp")
	assert.True(t, IsNotFound(err))
}
