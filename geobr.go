package geoartifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/andreiashu/geoartifacts/geotable"
)

const geobrVersion = "1.7.0"

// geobrAll is the code of the nationwide file of a geo.
const geobrAll = "all"

// geobrRow is one row of the geobr metadata table.
type geobrRow struct {
	Geo          string
	Year         int
	Code         string
	DownloadPath string
	CodeAbbrev   string
}

var geobrColumns = []string{"geo", "year", "code", "download_path", "code_abbrev"}

// geobrGeos are the geographies published in the metadata table.
var geobrGeos = []string{
	"amazonia_legal",
	"biomes",
	"census_tract",
	"comparable_areas",
	"conservation_units",
	"country",
	"disaster_risk_area",
	"health_facilities",
	"health_region",
	"immediate_regions",
	"indigenous_land",
	"intermediate_regions",
	"meso_region",
	"metro_area",
	"micro_region",
	"municipal_seat",
	"municipality",
	"neighborhood",
	"pop_arrengements",
	"regions",
	"schools",
	"semiarid",
	"state",
	"statistical_grid",
	"urban_area",
	"urban_concentrations",
	"weighting_area",
}

// geobrCodeColumns lists the geos split into per-state files and the column
// that holds their full code. Other geos only have a nationwide file.
var geobrCodeColumns = map[string]string{
	"state":          "code_state",
	"meso_region":    "code_meso",
	"micro_region":   "code_micro",
	"municipality":   "code_muni",
	"census_tract":   "code_tract",
	"weighting_area": "code_weighting",
}

// GeoBROption sets a selector of a geobr query.
type GeoBROption func(Selectors)

// Year selects the edition; the latest available is used when unset.
func Year(y int) GeoBROption {
	return func(s Selectors) { s[SelYear] = y }
}

// Code scopes the query to a state or a single unit. It accepts a numeric
// code (int or digits, e.g. 33 or "3304557"), a state abbreviation ("RJ") or
// "all".
func Code(code any) GeoBROption {
	return func(s Selectors) { s[SelCode] = code }
}

// GeoBR loads a Brazilian geography published by IPEA's geobr project.
func (c *Client) GeoBR(ctx context.Context, geo string, opts ...GeoBROption) (*geotable.Table, error) {
	sel := Selectors{SelGeo: geo}
	for _, opt := range opts {
		opt(sel)
	}
	return c.Fetch(ctx, DatasetQuery{Family: FamilyStatisticalArea, Selectors: sel})
}

// GeoBR calls GeoBR on the default client.
func GeoBR(ctx context.Context, geo string, opts ...GeoBROption) (*geotable.Table, error) {
	return Default().GeoBR(ctx, geo, opts...)
}

// States loads Brazilian state boundaries.
func States(ctx context.Context, opts ...GeoBROption) (*geotable.Table, error) {
	return GeoBR(ctx, "state", opts...)
}

// Municipalities loads Brazilian municipality boundaries.
func Municipalities(ctx context.Context, opts ...GeoBROption) (*geotable.Table, error) {
	return GeoBR(ctx, "municipality", opts...)
}

// Regions loads the five Brazilian macro regions.
func Regions(ctx context.Context, opts ...GeoBROption) (*geotable.Table, error) {
	return GeoBR(ctx, "regions", opts...)
}

// BrazilCountry loads the national boundary of Brazil.
func BrazilCountry(ctx context.Context, opts ...GeoBROption) (*geotable.Table, error) {
	return GeoBR(ctx, "country", opts...)
}

// geobrCode is a parsed code selector.
type geobrCode struct {
	all    bool
	state  string // two-digit state code, when numeric
	abbrev string // upper-case state abbreviation, when textual
	full   string // numeric code longer than a state code
}

func (g geobrCode) String() string {
	switch {
	case g.all:
		return geobrAll
	case g.abbrev != "":
		return g.abbrev
	case g.full != "":
		return g.full
	default:
		return g.state
	}
}

// parseGeobrCode tells numeric codes from abbreviations by the value's type
// and content, never by trying both against the catalog.
func parseGeobrCode(v any) (geobrCode, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return geobrCode{all: true}, nil
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case string:
		s = strings.TrimSpace(x)
	default:
		return geobrCode{}, &InvalidArgumentError{Selector: SelCode, Value: v, Message: "must be an integer or a string"}
	}

	switch {
	case strings.EqualFold(s, geobrAll):
		return geobrCode{all: true}, nil
	case isDigits(s):
		if len(s) < 2 {
			return geobrCode{}, &InvalidArgumentError{Selector: SelCode, Value: v, Message: "numeric codes start with the two-digit state code"}
		}
		c := geobrCode{state: s[:2]}
		if len(s) > 2 {
			c.full = s
		}
		return c, nil
	case len(s) == 2 && isLetters(s):
		return geobrCode{abbrev: strings.ToUpper(s)}, nil
	default:
		return geobrCode{}, &InvalidArgumentError{Selector: SelCode, Value: v, Message: "must be a numeric code, a state abbreviation or \"all\""}
	}
}

func isDigits(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

func isLetters(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) < 0
}

func resolveGeoBR(ctx context.Context, c *Client, s Selectors) (Resolution, error) {
	geo, ok, err := s.String(SelGeo)
	if err != nil {
		return Resolution{}, err
	}
	if !ok || !slices.Contains(geobrGeos, geo) {
		return Resolution{}, invalidArgument(SelGeo, geo, geobrGeos)
	}
	year, hasYear, err := s.Int(SelYear)
	if err != nil {
		return Resolution{}, err
	}
	code, err := parseGeobrCode(s[SelCode])
	if err != nil {
		return Resolution{}, err
	}
	codeColumn, split := geobrCodeColumns[geo]
	if !code.all && !split {
		return Resolution{}, &InvalidArgumentError{Selector: SelCode, Value: code.String(), Message: fmt.Sprintf("geo %q has no per-state files", geo)}
	}
	if code.full != "" && geo == "state" {
		return Resolution{}, &InvalidArgumentError{Selector: SelCode, Value: code.full, Message: "state codes have two digits"}
	}

	cat, err := c.geobrMetadata(ctx)
	if err != nil {
		return Resolution{}, err
	}

	var filters []ColumnFilter
	if code.full != "" {
		filters = append(filters, ColumnFilter{Column: codeColumn, Value: code.full})
	}

	row, err := pickGeobrRow(cat, geo, year, hasYear, code)
	if err != nil && !code.all && errors.Is(err, ErrNotFound) {
		// Some editions only publish the nationwide file.
		c.log.Warn().
			Str("geo", geo).
			Str("code", code.String()).
			Err(err).
			Msg("no per-state geobr file, falling back to the nationwide file")
		row, err = pickGeobrRow(cat, geo, year, hasYear, geobrCode{all: true})
		if code.abbrev != "" {
			filters = append([]ColumnFilter{{Column: "abbrev_state", Value: code.abbrev}}, filters...)
		} else {
			filters = append([]ColumnFilter{{Column: "code_state", Value: code.state}}, filters...)
		}
	}
	if err != nil {
		return Resolution{}, err
	}

	name := fmt.Sprintf("%s_%d_%s_%s", row.Geo, row.Year, row.Code, path.Base(row.DownloadPath))
	return Resolution{
		Identifier: cacheIdentifier("geobr", geobrVersion, name),
		URL:        row.DownloadPath,
		Format:     FormatGeoPackage,
		Filters:    filters,
	}, nil
}

// pickGeobrRow selects the row for geo and code, the given year or the latest.
func pickGeobrRow(cat *Catalog[geobrRow], geo string, year int, hasYear bool, code geobrCode) (geobrRow, error) {
	preds := []Predicate[geobrRow]{Exact(func(r geobrRow) string { return r.Geo }, geo)}
	switch {
	case code.all:
		preds = append(preds, Exact(func(r geobrRow) string { return r.Code }, geobrAll))
	case code.abbrev != "":
		preds = append(preds, Exact(func(r geobrRow) string { return r.CodeAbbrev }, code.abbrev))
	default:
		preds = append(preds, Exact(func(r geobrRow) string { return r.Code }, code.state))
	}

	// geo is already validated, so suggestions come from the editions of geo
	// rather than from the catalog keys.
	q := Query{Desc: fmt.Sprintf("geo=%s code=%s", geo, code)}
	var (
		row geobrRow
		err error
	)
	if hasYear {
		q.Desc += fmt.Sprintf(" year=%d", year)
		row, err = cat.First(q, And(append(preds, Exact(func(r geobrRow) int { return r.Year }, year))...))
	} else {
		row, err = cat.Latest(q, And(preds...), func(r geobrRow) int { return r.Year })
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		nf.Suggestions = geobrAlternatives(cat, geo, code, And(preds...), year, hasYear)
	}
	return row, err
}

// geobrAlternatives suggests the closest published years when geo and code
// exist in other editions, and otherwise the codes published for geo.
func geobrAlternatives(cat *Catalog[geobrRow], geo string, code geobrCode, sameCode Predicate[geobrRow], year int, hasYear bool) []string {
	if hasYear {
		var years []int
		for r := range cat.Lookup(sameCode) {
			if !slices.Contains(years, r.Year) {
				years = append(years, r.Year)
			}
		}
		if len(years) > 0 {
			slices.SortStableFunc(years, func(a, b int) int { return absInt(a-year) - absInt(b-year) })
			out := make([]string, 0, maxSuggestions)
			for _, y := range years[:min(len(years), maxSuggestions)] {
				out = append(out, strconv.Itoa(y))
			}
			return out
		}
	}

	var codes []string
	for r := range cat.Lookup(Exact(func(r geobrRow) string { return r.Geo }, geo)) {
		c := r.Code
		if code.abbrev != "" || code.all {
			c = r.CodeAbbrev
		}
		if c != geobrAll && !slices.Contains(codes, c) {
			codes = append(codes, c)
		}
	}
	switch {
	case code.all:
		return codes[:min(len(codes), maxSuggestions)]
	case code.abbrev != "":
		return suggest(code.abbrev, codes)
	default:
		return suggest(code.state, codes)
	}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// geobrMetadata returns the metadata catalog, downloading it through the
// cache on first use. Failed loads are not remembered.
func (c *Client) geobrMetadata(ctx context.Context) (*Catalog[geobrRow], error) {
	c.geobrMu.Lock()
	defer c.geobrMu.Unlock()
	if c.geobrCatalog != nil {
		return c.geobrCatalog, nil
	}

	file := fmt.Sprintf("metadata_%s_gpkg.csv", geobrVersion)
	p, err := c.cache.EnsureCached(ctx, cacheIdentifier("geobr", geobrVersion, "metadata.csv"), c.baseURL(SourceGeoBR)+"/"+file, false)
	if err != nil {
		return nil, err
	}
	rows, err := readGeobrMetadata(p)
	if err != nil {
		return nil, fmt.Errorf("reading geobr metadata: %w", err)
	}
	c.geobrCatalog = NewCatalog("geobr dataset", rows, func(r geobrRow) string { return r.Geo })
	return c.geobrCatalog, nil
}

func readGeobrMetadata(p string) ([]geobrRow, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, records, err := readCSV(f, csvOptions{Comma: ','})
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	var missing []string
	for _, col := range geobrColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Source: path.Base(p), Missing: missing}
	}

	rows := make([]geobrRow, 0, len(records))
	for n, rec := range records {
		year, err := strconv.Atoi(strings.TrimSpace(rec[idx["year"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad year %q", n+2, rec[idx["year"]])
		}
		rows = append(rows, geobrRow{
			Geo:          strings.TrimSpace(rec[idx["geo"]]),
			Year:         year,
			Code:         strings.TrimSpace(rec[idx["code"]]),
			DownloadPath: strings.TrimSpace(rec[idx["download_path"]]),
			CodeAbbrev:   strings.ToUpper(strings.TrimSpace(rec[idx["code_abbrev"]])),
		})
	}
	return rows, nil
}
