package geoartifacts

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/andreiashu/geoartifacts/internal/logging"
)

// fixtureServer serves fixed bodies by path and counts requests.
type fixtureServer struct {
	*httptest.Server
	hits  atomic.Int32
	files map[string][]byte
}

func newFixtureServer(t *testing.T, files map[string][]byte) *fixtureServer {
	t.Helper()
	fs := &fixtureServer{files: files}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		body, ok := fs.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

// newFixtureClient returns a client whose every provider points at srv and
// whose cache lives in a temp dir.
func newFixtureClient(t *testing.T, srv *fixtureServer, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithCacheDir(t.TempDir()),
		WithLogger(logging.Nop),
		WithHTTPClient(srv.Client()),
	}
	for _, src := range []Source{SourceGADM, SourceNaturalEarth, SourceNaturalEarthJSON, SourceINMET, SourceINMETHistorical, SourceGeoBR, SourceGeoStatsImages} {
		base = append(base, WithBaseURL(src, srv.URL+"/"+string(src)))
	}
	return New(append(base, opts...)...)
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

// encodeGeoPackageGeometry wraps WKB in a GeoPackage header without envelope.
func encodeGeoPackageGeometry(t testing.TB, g orb.Geometry) []byte {
	t.Helper()
	payload, err := wkb.Marshal(g, binary.LittleEndian)
	require.NoError(t, err)
	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0)    // version
	buf.WriteByte(0x01) // little endian, no envelope
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(4326)))
	buf.Write(payload)
	return buf.Bytes()
}

// gpkgFeature is one row of a fixture layer.
type gpkgFeature struct {
	geom  orb.Geometry
	attrs map[string]any
}

// gpkgFixtureLayer describes a feature table with text or real attributes.
type gpkgFixtureLayer struct {
	name    string
	columns []string // attribute columns, declared TEXT unless prefixed "code_"
	rows    []gpkgFeature
}

// writeGeoPackage builds a minimal GeoPackage with the given feature layers.
func writeGeoPackage(t testing.TB, path string, layers []gpkgFixtureLayer) {
	t.Helper()
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	db.MustExec(`CREATE TABLE gpkg_contents (table_name TEXT PRIMARY KEY, data_type TEXT NOT NULL, identifier TEXT)`)
	db.MustExec(`CREATE TABLE gpkg_geometry_columns (table_name TEXT, column_name TEXT, geometry_type_name TEXT, srs_id INTEGER, z INTEGER, m INTEGER)`)
	db.MustExec(`INSERT INTO gpkg_contents VALUES ('gpkg_attributes_only', 'attributes', 'ignored')`)

	for _, l := range layers {
		defs := []string{"fid INTEGER PRIMARY KEY", "geom BLOB"}
		for _, c := range l.columns {
			typ := "TEXT"
			if strings.HasPrefix(c, "code_") {
				typ = "REAL"
			}
			defs = append(defs, quoteIdent(c)+" "+typ)
		}
		db.MustExec(fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(l.name), strings.Join(defs, ", ")))
		db.MustExec(`INSERT INTO gpkg_contents VALUES (?, 'features', ?)`, l.name, l.name)
		db.MustExec(`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'MULTIPOLYGON', 4326, 0, 0)`, l.name)

		cols := append([]string{"geom"}, l.columns...)
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quoteIdent(c)
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(l.name), strings.Join(quoted, ", "), marks)
		for _, r := range l.rows {
			args := []any{encodeGeoPackageGeometry(t, r.geom)}
			for _, c := range l.columns {
				args = append(args, r.attrs[c])
			}
			db.MustExec(insert, args...)
		}
	}
}

// readFile returns the bytes of a fixture written to disk.
func readFile(t testing.TB, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

// zipBytes builds a zip archive from name → content. It takes
// require.TestingT so that gocheck suites can use it too.
func zipBytes(t require.TestingT, files map[string][]byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeShapefile writes a polygon shapefile with NAME (text) and POP
// (numeric) attributes and returns the paths of its .shp, .shx and .dbf.
func writeShapefile(t testing.TB, dir, base string, names []string, pops []int, polys []orb.Polygon) []string {
	t.Helper()
	shpPath := filepath.Join(dir, base+".shp")
	w, err := shp.Create(shpPath, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 40),
		shp.NumberField("POP", 10),
	}))
	for i, p := range polys {
		parts := make([][]shp.Point, len(p))
		for j, ring := range p {
			for _, pt := range ring {
				parts[j] = append(parts[j], shp.Point{X: pt[0], Y: pt[1]})
			}
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		row := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(row, 0, names[i]))
		require.NoError(t, w.WriteAttribute(row, 1, pops[i]))
	}
	w.Close()

	// go-shp v0.1.1 names the attribute file "<base>dbf", without the dot.
	dbfPath := filepath.Join(dir, base+".dbf")
	if _, err := os.Stat(dbfPath); os.IsNotExist(err) {
		require.NoError(t, os.Rename(filepath.Join(dir, base+"dbf"), dbfPath))
	}
	return []string{shpPath, filepath.Join(dir, base+".shx"), dbfPath}
}

// grayTIFF encodes a w×h 8-bit image whose pixel (x, y) is y*w+x.
func grayTIFF(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8(y*w + x)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}
