package geoartifacts

import (
	"context"
	"fmt"

	"github.com/andreiashu/geoartifacts/geotable"
)

const gadmVersion = "4.1"

// gadmMaxLevel is the deepest administrative level GADM publishes.
const gadmMaxLevel = 5

// GADMOption sets a selector of an administrative boundaries query.
type GADMOption func(Selectors)

// Subregions narrows the query to a named subregion path, outermost first,
// e.g. Subregions("Rio de Janeiro", "Niterói").
func Subregions(names ...string) GADMOption {
	return func(s Selectors) { s[SelSubregions] = names }
}

// Depth sets how many levels below the deepest named subregion to return.
// Depth 0 returns the named region itself.
func Depth(d int) GADMOption {
	return func(s Selectors) { s[SelDepth] = d }
}

// Decimate simplifies the returned polygons.
func Decimate(d Decimation) GADMOption {
	return func(s Selectors) { s[SelDecimation] = d }
}

// Fix toggles polygon repair (on by default).
func Fix(fix bool) GADMOption {
	return func(s Selectors) { s[SelFix] = fix }
}

// GADM returns the administrative boundaries of an ISO 3166-1 alpha-3
// country at level len(subregions)+depth, restricted to the named subregions.
func (c *Client) GADM(ctx context.Context, country string, opts ...GADMOption) (*geotable.Table, error) {
	sel := Selectors{SelCountry: country}
	for _, opt := range opts {
		opt(sel)
	}
	return c.Fetch(ctx, DatasetQuery{Family: FamilyAdminBoundaries, Selectors: sel})
}

// GADM calls GADM on the default client.
func GADM(ctx context.Context, country string, opts ...GADMOption) (*geotable.Table, error) {
	return Default().GADM(ctx, country, opts...)
}

func resolveGADM(_ context.Context, c *Client, s Selectors) (Resolution, error) {
	code, ok, err := s.String(SelCountry)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, &InvalidArgumentError{Selector: SelCountry, Message: "required"}
	}
	if _, err := lookupCountry(code); err != nil {
		return Resolution{}, err
	}

	subregions, err := s.Strings(SelSubregions)
	if err != nil {
		return Resolution{}, err
	}
	depth, _, err := s.Int(SelDepth)
	if err != nil {
		return Resolution{}, err
	}
	if depth < 0 {
		return Resolution{}, &InvalidArgumentError{Selector: SelDepth, Value: depth, Message: "must not be negative"}
	}
	level := len(subregions) + depth
	if level > gadmMaxLevel {
		return Resolution{}, &InvalidArgumentError{
			Selector: SelDepth,
			Value:    depth,
			Message:  fmt.Sprintf("subregions plus depth must not exceed %d", gadmMaxLevel),
		}
	}
	if _, err := decimationSelector(s); err != nil {
		return Resolution{}, err
	}
	if _, err := s.Bool(SelFix, true); err != nil {
		return Resolution{}, err
	}

	filters := make([]ColumnFilter, len(subregions))
	for i, name := range subregions {
		filters[i] = ColumnFilter{Column: fmt.Sprintf("NAME_%d", i+1), Value: name}
	}

	file := fmt.Sprintf("gadm41_%s.gpkg", code)
	return Resolution{
		Identifier: cacheIdentifier("gadm", gadmVersion, file),
		URL:        c.baseURL(SourceGADM) + "/" + file,
		Format:     FormatGeoPackage,
		Layer:      level,
		Filters:    filters,
	}, nil
}

// adaptBoundaries repairs and optionally simplifies the loaded polygons.
func adaptBoundaries(s Selectors, t *geotable.Table) (*geotable.Table, error) {
	fix, err := s.Bool(SelFix, true)
	if err != nil {
		return nil, err
	}
	if fix {
		if t, err = FixPolygons(t); err != nil {
			return nil, err
		}
	}
	d, err := decimationSelector(s)
	if err != nil {
		return nil, err
	}
	return Simplify(t, d)
}

func decimationSelector(s Selectors) (Decimation, error) {
	switch v := s[SelDecimation].(type) {
	case nil:
		return Decimation{}, nil
	case Decimation:
		return v, nil
	case *Decimation:
		if v == nil {
			return Decimation{}, nil
		}
		return *v, nil
	default:
		return Decimation{}, &InvalidArgumentError{Selector: SelDecimation, Value: v, Message: "must be a Decimation"}
	}
}
