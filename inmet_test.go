package geoartifacts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/andreiashu/geoartifacts/geotable"
)

const stationsJSON = `[
  {"CD_ESTACAO": "A001", "DC_NOME": "BRASILIA", "SG_ESTADO": "DF", "TP_ESTACAO": "Automatica",
   "VL_LATITUDE": "-15.78944444", "VL_LONGITUDE": "-47.92583332", "VL_ALTITUDE": "1160.96", "CD_SITUACAO": "Operante"},
  {"CD_ESTACAO": "83377", "DC_NOME": "BRASILIA", "SG_ESTADO": "DF", "TP_ESTACAO": "Convencional",
   "VL_LATITUDE": "-15.78", "VL_LONGITUDE": "-47.92", "VL_ALTITUDE": "1159.54", "CD_SITUACAO": "Operante"},
  {"CD_ESTACAO": "A652", "DC_NOME": "RIO DE JANEIRO - FORTE DE COPACABANA", "SG_ESTADO": "RJ", "TP_ESTACAO": "Automatica",
   "VL_LATITUDE": "-22.98833333", "VL_LONGITUDE": "-43.19055555", "VL_ALTITUDE": "26.03", "CD_SITUACAO": "Operante"},
  {"CD_ESTACAO": "A701", "DC_NOME": "SAO PAULO - MIRANTE", "SG_ESTADO": "SP", "TP_ESTACAO": "Automatica",
   "VL_LATITUDE": "-23.49638888", "VL_LONGITUDE": "-46.62", "VL_ALTITUDE": "785.16", "CD_SITUACAO": "Operante"}
]`

func newINMETFixture(t *testing.T) (*fixtureServer, *Client) {
	t.Helper()
	srv := newFixtureServer(t, map[string][]byte{
		"/inmet/estacoes/T": []byte(stationsJSON),
	})
	return srv, newFixtureClient(t, srv)
}

func TestWeatherStations(t *testing.T) {
	srv, c := newINMETFixture(t)

	tbl, err := c.WeatherStations(context.Background(), StationsAutomatic)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.NumRows(), "conventional stations are filtered out")
	assert.Equal(t, geotable.DomainPoints3, tbl.Domain().Kind())
	assert.False(t, tbl.Has("VL_LATITUDE"))
	assert.Equal(t, "A001", tbl.Text("CD_ESTACAO", 0))
	assert.Equal(t, r3.Vector{X: -47.92583332, Y: -15.78944444, Z: 1160.96}, tbl.Geometry(0))

	// Round trip: the coordinates come back from the domain unchanged.
	for row := 0; row < tbl.NumRows(); row++ {
		assert.Equal(t, "Automatica", tbl.Text("TP_ESTACAO", row))
	}
	assert.Equal(t, r3.Vector{X: -46.62, Y: -23.49638888, Z: 785.16}, tbl.Geometry(2))
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestWeatherStationsDefaultKind(t *testing.T) {
	_, c := newINMETFixture(t)
	tbl, err := c.Fetch(context.Background(), NewQuery(FamilyWeatherStations, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NumRows())
}

func TestWeatherStationsInvalidKind(t *testing.T) {
	srv, c := newINMETFixture(t)
	_, err := c.WeatherStations(context.Background(), "hourly")
	var ia *InvalidArgumentError
	require.True(t, errors.As(err, &ia))
	assert.Equal(t, []string{StationsAutomatic, StationsConventional}, ia.Allowed)
	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestNearestStation(t *testing.T) {
	_, c := newINMETFixture(t)

	// Niterói is across the bay from Copacabana.
	m, err := c.NearestStation(context.Background(), StationsAutomatic, -22.88, -43.10)
	require.NoError(t, err)
	assert.Equal(t, "A652", m.Station["CD_ESTACAO"])
	assert.Equal(t, -43.19055555, m.Location.X)
	assert.InDelta(t, 15, m.DistanceKm, 5)
	assert.Len(t, m.Geohash, stationGeohashPrecision)
	assert.True(t, strings.HasPrefix(m.Geohash, "75cm"), m.Geohash)
}

func TestINMETResolution(t *testing.T) {
	c := New(WithCacheDir(t.TempDir()))
	ctx := context.Background()

	r, err := c.Resolve(ctx, NewQuery(FamilyWeatherStations, Selectors{SelKind: StationsConventional}))
	require.NoError(t, err)
	assert.Equal(t, "inmet-v1-estacoes-M.json", r.Identifier)
	assert.Equal(t, "https://apitempo.inmet.gov.br/estacoes/M", r.URL)
	assert.Equal(t, FormatJSON, r.Format)
	assert.Equal(t, []ColumnFilter{{Column: "TP_ESTACAO", Value: "Convencional"}}, r.Filters)

	r, err = c.Resolve(ctx, NewQuery(FamilyWeatherStations, Selectors{SelYear: 2020}))
	require.NoError(t, err)
	assert.Equal(t, "inmet-v1-historical-2020", r.Identifier)
	assert.Equal(t, "https://portal.inmet.gov.br/uploads/dadoshistoricos/2020.zip", r.URL)
	assert.True(t, r.Unpack)
}

func TestHistoricalStationsYearRange(t *testing.T) {
	srv := newFixtureServer(t, nil)
	c := newFixtureClient(t, srv)
	ctx := context.Background()

	for _, year := range []int{firstHistoricalYear - 1, time.Now().Year() + 1} {
		_, err := c.HistoricalStations(ctx, year)
		assert.True(t, IsInvalidArgument(err), "year %d", year)
	}
	_, err := c.Fetch(ctx, NewQuery(FamilyWeatherStations, Selectors{SelYear: 2020, SelKind: StationsAutomatic}))
	assert.True(t, IsInvalidArgument(err), "historical archives take no kind")
	assert.Equal(t, int32(0), srv.hits.Load())
}

// stationFile renders a historical station file in ISO-8859-1.
func stationFile(t *testing.T, preamble []string, records int) []byte {
	t.Helper()
	var b strings.Builder
	for _, line := range preamble {
		b.WriteString(line + "\r\n")
	}
	b.WriteString("Data;Hora UTC;PRECIPITAÇÃO TOTAL, HORÁRIO (mm);TEMPERATURA DO AR - BULBO SECO, HORARIA (°C);\r\n")
	for i := 0; i < records; i++ {
		b.WriteString("2020/01/01;0" + string(rune('0'+i)) + "00 UTC;0;21,4;\r\n")
	}
	out, err := charmap.ISO8859_1.NewEncoder().String(b.String())
	require.NoError(t, err)
	return []byte(out)
}

func TestHistoricalStations(t *testing.T) {
	archive := zipBytes(t, map[string][]byte{
		"2020/INMET_CO_DF_A001_BRASILIA_01-01-2020_A_31-12-2020.CSV": stationFile(t, []string{
			"REGIÃO:;CO",
			"UF:;DF",
			"ESTAÇÃO:;BRASILIA",
			"CODIGO (WMO):;A001",
			"LATITUDE:;-15,78944444",
			"LONGITUDE:;-47,92583332",
			"ALTITUDE:;1160,96",
			"DATA DE FUNDAÇÃO:;07/05/00",
		}, 3),
		"2020/INMET_SE_RJ_A652_RIO DE JANEIRO - FORTE DE COPACABANA_01-01-2020_A_31-12-2020.CSV": stationFile(t, []string{
			"REGIAO:;SE",
			"UF:;RJ",
			"ESTACAO:;RIO DE JANEIRO - FORTE DE COPACABANA",
			"CODIGO (WMO):;A652",
			"LATITUDE:;-22,98833333",
			"LONGITUDE:;-43,19055555",
			"ALTITUDE:;26,03",
			"DATA DE FUNDACAO (YYYY-MM-DD):;2007-07-16",
		}, 2),
		"2020/readme.txt": []byte("ignored"),
	})
	srv := newFixtureServer(t, map[string][]byte{"/inmet-historical/2020.zip": archive})
	c := newFixtureClient(t, srv)

	tbl, err := c.HistoricalStations(context.Background(), 2020)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, geotable.DomainPoints3, tbl.Domain().Kind())
	assert.Equal(t, []string{"REGIAO", "UF", "ESTACAO", "CODIGO", "DATA_FUNDACAO", "ARQUIVO", "REGISTROS"}, tbl.Names())

	assert.Equal(t, "CO", tbl.Text("REGIAO", 0))
	assert.Equal(t, "A001", tbl.Text("CODIGO", 0))
	assert.Equal(t, int64(3), tbl.Value("REGISTROS", 0))
	assert.Equal(t, r3.Vector{X: -47.92583332, Y: -15.78944444, Z: 1160.96}, tbl.Geometry(0))

	assert.Equal(t, "RIO DE JANEIRO - FORTE DE COPACABANA", tbl.Text("ESTACAO", 1))
	assert.Equal(t, "2007-07-16", tbl.Text("DATA_FUNDACAO", 1))
	assert.Equal(t, int64(2), tbl.Value("REGISTROS", 1))
	assert.True(t, strings.HasPrefix(tbl.Text("ARQUIVO", 1), "INMET_SE_RJ_A652"))
}
