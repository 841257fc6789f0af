package geoartifacts

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/andreiashu/geoartifacts/geotable"
)

const naturalEarthVersion = "v5.1.2"

const defaultNaturalEarthScale = "110m"

// naturalEarthScales are the published scales, finest first.
var naturalEarthScales = []string{"10m", "50m", "110m"}

var naturalEarthFormats = []string{"shapefile", "geojson"}

// neLayer is one downloadable Natural Earth layer.
type neLayer struct {
	Scale    string
	Category string
	Name     string
}

//go:embed data/naturalearth.yaml
var naturalEarthYAML []byte

type naturalEarthFile struct {
	Version string `yaml:"version"`
	Layers  []struct {
		Scale    string   `yaml:"scale"`
		Category string   `yaml:"category"`
		Names    []string `yaml:"names"`
	} `yaml:"layers"`
}

// naturalEarthCatalog parses the embedded layer list once.
var naturalEarthCatalog = sync.OnceValues(func() (*Catalog[neLayer], error) {
	var f naturalEarthFile
	if err := yaml.Unmarshal(naturalEarthYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing natural earth catalog: %w", err)
	}
	if f.Version != naturalEarthVersion {
		return nil, fmt.Errorf("natural earth catalog is %s, want %s", f.Version, naturalEarthVersion)
	}
	var rows []neLayer
	for _, group := range f.Layers {
		for _, name := range group.Names {
			rows = append(rows, neLayer{Scale: group.Scale, Category: group.Category, Name: name})
		}
	}
	return NewCatalog("natural earth layer", rows, func(l neLayer) string { return l.Name }), nil
})

// naturalEarthVariants maps an entity and a variant token to the layer name
// substring looked up in the catalog. The empty variant is the default.
var naturalEarthVariants = map[string]map[string]string{
	"countries": {
		"":               "admin_0_countries",
		"lakes":          "admin_0_countries_lakes",
		"sovereignty":    "admin_0_sovereignty",
		"map_units":      "admin_0_map_units",
		"map_subunits":   "admin_0_map_subunits",
		"scale_rank":     "admin_0_scale_rank",
		"disputed":       "admin_0_disputed_areas",
		"tiny":           "admin_0_tiny_countries",
		"boundary_lines": "admin_0_boundary_lines_land",
		"maritime":       "admin_0_boundary_lines_maritime_indicator",
		"pacific":        "admin_0_pacific_groupings",
	},
	"states_provinces": {
		"":      "admin_1_states_provinces",
		"lakes": "admin_1_states_provinces_lakes",
		"lines": "admin_1_states_provinces_lines",
	},
	"populated_places": {
		"":       "populated_places",
		"simple": "populated_places_simple",
	},
	"urban_areas": {
		"":         "urban_areas",
		"landscan": "urban_areas_landscan",
	},
	"coastline": {"": "coastline"},
	"land": {
		"":              "land",
		"minor_islands": "minor_islands",
	},
	"ocean": {"": "ocean"},
	"lakes": {
		"":         "lakes",
		"historic": "lakes_historic",
		"pluvial":  "lakes_pluvial",
	},
	"rivers": {
		"":           "rivers_lake_centerlines",
		"scale_rank": "rivers_lake_centerlines_scale_rank",
	},
	"glaciers": {
		"":            "glaciated_areas",
		"ice_shelves": "antarctic_ice_shelves_polys",
	},
	"geography": {
		"":       "geography_regions_polys",
		"marine": "geography_marine_polys",
		"lines":  "geographic_lines",
		"playas": "playas",
	},
	"roads":      {"": "roads"},
	"railroads":  {"": "railroads"},
	"airports":   {"": "airports"},
	"ports":      {"": "ports"},
	"time_zones": {"": "time_zones"},
	"reefs":      {"": "reefs"},
}

// NEOption sets a selector of a Natural Earth query.
type NEOption func(Selectors)

// Scale selects "10m", "50m" or "110m" (the default).
func Scale(scale string) NEOption {
	return func(s Selectors) { s[SelScale] = scale }
}

// Variant selects an alternative flavor of the entity, e.g. "lakes" for
// countries with lakes cut out.
func Variant(v string) NEOption {
	return func(s Selectors) { s[SelVariant] = v }
}

// UseGeoJSON downloads the GeoJSON rendition instead of the shapefile.
func UseGeoJSON() NEOption {
	return func(s Selectors) { s[SelFormat] = "geojson" }
}

// NaturalEarth loads a Natural Earth layer. entity is either a key of the
// variant table (countries, lakes, rivers, ...) or a raw substring of a
// layer name such as "admin_1_label_points".
func (c *Client) NaturalEarth(ctx context.Context, entity string, opts ...NEOption) (*geotable.Table, error) {
	sel := Selectors{SelEntity: entity}
	for _, opt := range opts {
		opt(sel)
	}
	return c.Fetch(ctx, DatasetQuery{Family: FamilyMapLayer, Selectors: sel})
}

// NaturalEarth calls NaturalEarth on the default client.
func NaturalEarth(ctx context.Context, entity string, opts ...NEOption) (*geotable.Table, error) {
	return Default().NaturalEarth(ctx, entity, opts...)
}

// Countries loads Natural Earth admin 0 country polygons.
func Countries(ctx context.Context, opts ...NEOption) (*geotable.Table, error) {
	return NaturalEarth(ctx, "countries", opts...)
}

// Coastlines loads Natural Earth coastlines.
func Coastlines(ctx context.Context, opts ...NEOption) (*geotable.Table, error) {
	return NaturalEarth(ctx, "coastline", opts...)
}

// Lakes loads Natural Earth lakes.
func Lakes(ctx context.Context, opts ...NEOption) (*geotable.Table, error) {
	return NaturalEarth(ctx, "lakes", opts...)
}

// Rivers loads Natural Earth river and lake centerlines.
func Rivers(ctx context.Context, opts ...NEOption) (*geotable.Table, error) {
	return NaturalEarth(ctx, "rivers", opts...)
}

// PopulatedPlaces loads Natural Earth populated places.
func PopulatedPlaces(ctx context.Context, opts ...NEOption) (*geotable.Table, error) {
	return NaturalEarth(ctx, "populated_places", opts...)
}

// StatesProvinces loads Natural Earth admin 1 polygons.
func StatesProvinces(ctx context.Context, opts ...NEOption) (*geotable.Table, error) {
	return NaturalEarth(ctx, "states_provinces", opts...)
}

func resolveNaturalEarth(_ context.Context, c *Client, s Selectors) (Resolution, error) {
	entity, ok, err := s.String(SelEntity)
	if err != nil {
		return Resolution{}, err
	}
	if !ok || entity == "" {
		return Resolution{}, &InvalidArgumentError{Selector: SelEntity, Message: "required"}
	}
	scale, ok, err := s.String(SelScale)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		scale = defaultNaturalEarthScale
	}
	if !slices.Contains(naturalEarthScales, scale) {
		return Resolution{}, invalidArgument(SelScale, scale, naturalEarthScales)
	}
	format, ok, err := s.String(SelFormat)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		format = naturalEarthFormats[0]
	}
	if !slices.Contains(naturalEarthFormats, format) {
		return Resolution{}, invalidArgument(SelFormat, format, naturalEarthFormats)
	}
	variant, _, err := s.String(SelVariant)
	if err != nil {
		return Resolution{}, err
	}
	sub, err := naturalEarthSubstring(entity, variant)
	if err != nil {
		return Resolution{}, err
	}
	if _, err := s.Bool(SelFix, true); err != nil {
		return Resolution{}, err
	}

	layer, err := findNaturalEarthLayer(scale, sub)
	if err != nil {
		return Resolution{}, err
	}

	file := fmt.Sprintf("ne_%s_%s", layer.Scale, layer.Name)
	if format == "geojson" {
		return Resolution{
			Identifier: cacheIdentifier("naturalearth", naturalEarthVersion, file+".geojson"),
			URL:        c.baseURL(SourceNaturalEarthJSON) + "/" + file + ".geojson",
			Format:     FormatGeoJSON,
		}, nil
	}
	return Resolution{
		Identifier: cacheIdentifier("naturalearth", naturalEarthVersion, file),
		URL:        fmt.Sprintf("%s/%s/%s/%s.zip", c.baseURL(SourceNaturalEarth), layer.Scale, layer.Category, file),
		Unpack:     true,
		Format:     FormatShapefile,
	}, nil
}

// naturalEarthSubstring maps entity and variant to a layer name substring.
// Entities outside the variant table are used verbatim and take no variant.
func naturalEarthSubstring(entity, variant string) (string, error) {
	variants, known := naturalEarthVariants[entity]
	if !known {
		if variant != "" {
			return "", &InvalidArgumentError{
				Selector: SelVariant,
				Value:    variant,
				Message:  fmt.Sprintf("entity %q has no variants", entity),
			}
		}
		return entity, nil
	}
	sub, ok := variants[variant]
	if !ok {
		return "", invalidArgument(SelVariant, variant, sortedKeys(variants))
	}
	return sub, nil
}

// findNaturalEarthLayer looks up a layer of the given scale whose name
// contains sub. An exact name match wins; otherwise the first containing
// layer in catalog order is used.
func findNaturalEarthLayer(scale, sub string) (neLayer, error) {
	cat, err := naturalEarthCatalog()
	if err != nil {
		return neLayer{}, err
	}
	atScale := Exact(func(l neLayer) string { return l.Scale }, scale)
	q := Query{Desc: fmt.Sprintf("scale=%s name~%s", scale, sub), Term: sub}

	if l, err := cat.First(q, And(atScale, Exact(func(l neLayer) string { return l.Name }, sub))); err == nil {
		return l, nil
	}
	return cat.First(q, And(atScale, Contains(func(l neLayer) string { return l.Name }, sub)))
}

// adaptMapLayer repairs polygon layers unless fix is disabled.
func adaptMapLayer(s Selectors, t *geotable.Table) (*geotable.Table, error) {
	fix, err := s.Bool(SelFix, true)
	if err != nil || !fix {
		return t, err
	}
	return FixPolygons(t)
}

// ValidateCatalogs checks the embedded catalogs: every Natural Earth variant
// must name a layer at some scale and training image names must be unique.
func ValidateCatalogs() error {
	var errs []error
	if _, err := naturalEarthCatalog(); err != nil {
		errs = append(errs, err)
	} else {
		for _, entity := range sortedKeys(naturalEarthVariants) {
			for _, variant := range sortedKeys(naturalEarthVariants[entity]) {
				sub := naturalEarthVariants[entity][variant]
				found := false
				for _, scale := range naturalEarthScales {
					if _, err := findNaturalEarthLayer(scale, sub); err == nil {
						found = true
						break
					}
				}
				if !found {
					errs = append(errs, fmt.Errorf("natural earth %s/%q: no layer matches %q", entity, variant, sub))
				}
			}
		}
	}

	if images, err := trainingImageCatalog(); err != nil {
		errs = append(errs, err)
	} else {
		seen := make(map[string]bool)
		for img := range images.Lookup(nil) {
			if seen[img.Name] {
				errs = append(errs, fmt.Errorf("training image %q listed twice", img.Name))
			}
			seen[img.Name] = true
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NaturalEarthEntities lists the entity names with variant tables.
func NaturalEarthEntities() []string {
	return sortedKeys(naturalEarthVariants)
}

// NaturalEarthVariants lists the variant tokens of an entity; the default
// variant is the empty string.
func NaturalEarthVariants(entity string) []string {
	return sortedKeys(naturalEarthVariants[entity])
}
