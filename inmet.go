package geoartifacts

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/r3"

	"github.com/andreiashu/geoartifacts/geotable"
)

const inmetVersion = "v1"

// Station kinds accepted by WeatherStations.
const (
	StationsAutomatic    = "automatic"
	StationsConventional = "conventional"
)

// inmetKinds maps a station kind to its API path and TP_ESTACAO value.
var inmetKinds = map[string]struct {
	path     string
	stations string
}{
	StationsAutomatic:    {path: "T", stations: "Automatica"},
	StationsConventional: {path: "M", stations: "Convencional"},
}

// stationGeohashPrecision gives cells of roughly 150 m.
const stationGeohashPrecision = 7

// firstHistoricalYear is the first year of the INMET historical archive.
const firstHistoricalYear = 2000

// inmetHeaderLines is the number of station metadata lines heading every
// historical CSV file.
const inmetHeaderLines = 8

// Columns of the station tables.
var (
	inmetStationCoords    = []string{"VL_LONGITUDE", "VL_LATITUDE", "VL_ALTITUDE"}
	inmetHistoricalCoords = []string{"LONGITUDE", "LATITUDE", "ALTITUDE"}
)

// inmetHeaderKeys maps the historical file preamble keys to column names.
var inmetHeaderKeys = map[string]string{
	"REGIAO":           "REGIAO",
	"UF":               "UF",
	"ESTACAO":          "ESTACAO",
	"CODIGO (WMO)":     "CODIGO",
	"LATITUDE":         "LATITUDE",
	"LONGITUDE":        "LONGITUDE",
	"ALTITUDE":         "ALTITUDE",
	"DATA DE FUNDACAO": "DATA_FUNDACAO",
}

// historicalColumns is the column order of HistoricalStations tables before
// the coordinates are turned into points.
var historicalColumns = []string{"REGIAO", "UF", "ESTACAO", "CODIGO", "LATITUDE", "LONGITUDE", "ALTITUDE", "DATA_FUNDACAO", "ARQUIVO", "REGISTROS"}

// WeatherStations loads the INMET station registry for a kind
// (StationsAutomatic or StationsConventional) as 3D points of
// (longitude, latitude, altitude).
func (c *Client) WeatherStations(ctx context.Context, kind string) (*geotable.Table, error) {
	return c.Fetch(ctx, DatasetQuery{Family: FamilyWeatherStations, Selectors: Selectors{SelKind: kind}})
}

// WeatherStations calls WeatherStations on the default client.
func WeatherStations(ctx context.Context, kind string) (*geotable.Table, error) {
	return Default().WeatherStations(ctx, kind)
}

// HistoricalStations loads the stations of the INMET yearly archive, one
// row per station file with the number of hourly records it holds.
func (c *Client) HistoricalStations(ctx context.Context, year int) (*geotable.Table, error) {
	return c.Fetch(ctx, DatasetQuery{Family: FamilyWeatherStations, Selectors: Selectors{SelYear: year}})
}

// HistoricalStations calls HistoricalStations on the default client.
func HistoricalStations(ctx context.Context, year int) (*geotable.Table, error) {
	return Default().HistoricalStations(ctx, year)
}

// StationMatch is the result of a nearest station lookup.
type StationMatch struct {
	Station    map[string]any
	Location   r3.Vector // X: longitude, Y: latitude, Z: altitude
	Geohash    string
	DistanceKm float64
}

// NearestStation returns the station of the given kind closest to (lat, lon).
func (c *Client) NearestStation(ctx context.Context, kind string, lat, lon float64) (StationMatch, error) {
	t, err := c.WeatherStations(ctx, kind)
	if err != nil {
		return StationMatch{}, err
	}
	idx, err := geotable.NewPointIndex(t)
	if err != nil {
		return StationMatch{}, err
	}
	n, ok := idx.Nearest(lat, lon)
	if !ok {
		return StationMatch{}, &NotFoundError{Resource: "station", Query: fmt.Sprintf("near %.4f,%.4f", lat, lon)}
	}
	loc, _ := t.Geometry(n.Row).(r3.Vector)
	return StationMatch{
		Station:    t.Row(n.Row),
		Location:   loc,
		Geohash:    geohash.EncodeWithPrecision(loc.Y, loc.X, stationGeohashPrecision),
		DistanceKm: n.DistanceKm,
	}, nil
}

// NearestStation calls NearestStation on the default client.
func NearestStation(ctx context.Context, kind string, lat, lon float64) (StationMatch, error) {
	return Default().NearestStation(ctx, kind, lat, lon)
}

func resolveINMET(_ context.Context, c *Client, s Selectors) (Resolution, error) {
	kind, hasKind, err := s.String(SelKind)
	if err != nil {
		return Resolution{}, err
	}
	year, hasYear, err := s.Int(SelYear)
	if err != nil {
		return Resolution{}, err
	}

	if hasYear {
		if hasKind {
			return Resolution{}, &InvalidArgumentError{Selector: SelKind, Value: kind, Message: "historical archives are not split by kind"}
		}
		if last := time.Now().Year(); year < firstHistoricalYear || year > last {
			return Resolution{}, &InvalidArgumentError{
				Selector: SelYear,
				Value:    year,
				Message:  fmt.Sprintf("must be between %d and %d", firstHistoricalYear, last),
			}
		}
		return Resolution{
			Identifier: cacheIdentifier("inmet", inmetVersion, fmt.Sprintf("historical-%d", year)),
			URL:        fmt.Sprintf("%s/%d.zip", c.baseURL(SourceINMETHistorical), year),
			Unpack:     true,
			Format:     FormatCSV,
			loader:     loadHistoricalStations,
		}, nil
	}

	if !hasKind {
		kind = StationsAutomatic
	}
	k, ok := inmetKinds[kind]
	if !ok {
		return Resolution{}, invalidArgument(SelKind, kind, sortedKeys(inmetKinds))
	}
	return Resolution{
		Identifier: cacheIdentifier("inmet", inmetVersion, "estacoes-"+k.path+".json"),
		URL:        c.baseURL(SourceINMET) + "/estacoes/" + k.path,
		Format:     FormatJSON,
		Filters:    []ColumnFilter{{Column: "TP_ESTACAO", Value: k.stations}},
	}, nil
}

// adaptStations turns the coordinate columns into 3D points.
func adaptStations(s Selectors, t *geotable.Table) (*geotable.Table, error) {
	if s[SelYear] != nil {
		return PointsFromColumns(t, inmetHistoricalCoords...)
	}
	return PointsFromColumns(t, inmetStationCoords...)
}

// loadHistoricalStations reads every station file of an unpacked yearly
// archive. Files are ISO-8859-1, ';' separated, with decimal commas, and
// start with a key/value preamble describing the station.
func loadHistoricalStations(dir string) (*geotable.Table, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".csv") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &NotFoundError{Resource: "file", Query: ".csv in " + dir}
	}
	sort.Strings(files)

	builders := make(map[string]*columnBuilder, len(historicalColumns))
	ordered := make([]*columnBuilder, len(historicalColumns))
	for i, name := range historicalColumns {
		ordered[i] = newColumnBuilder(name, len(files))
		builders[name] = ordered[i]
	}
	for _, path := range files {
		meta, count, err := readStationFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		for _, name := range historicalColumns[:8] {
			v, ok := meta[name]
			if !ok {
				builders[name].add(nil)
				continue
			}
			builders[name].add(parseCell(v, true))
		}
		builders["ARQUIVO"].add(filepath.Base(path))
		builders["REGISTROS"].add(int64(count))
	}
	return geotable.New(geotable.Rows(len(files)), buildColumns(ordered)...)
}

// readStationFile returns the preamble of a historical station file keyed by
// column name and the number of data records after it. Preamble keys are
// matched without accents ("ESTAÇÃO:" and "ESTACAO:" are the same key).
func readStationFile(path string) (map[string]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	br := bufio.NewReader(textReader(f, true))
	lines, err := readLines(br, inmetHeaderLines)
	if err != nil {
		return nil, 0, err
	}
	meta := make(map[string]string, len(lines))
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ";")
		if !ok {
			continue
		}
		key = strings.ToUpper(foldName(strings.TrimSuffix(strings.TrimSpace(key), ":")))
		if i := strings.Index(key, " (YYYY"); i > 0 {
			key = key[:i]
		}
		if name, known := inmetHeaderKeys[key]; known {
			meta[name] = strings.TrimSpace(strings.TrimSuffix(value, ";"))
		}
	}

	_, records, err := readDelimited(br, ';')
	if err != nil {
		return nil, 0, err
	}
	return meta, len(records), nil
}
