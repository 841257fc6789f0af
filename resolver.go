package geoartifacts

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/andreiashu/geoartifacts/geotable"
)

// Family identifies a dataset family.
type Family string

const (
	FamilyAdminBoundaries Family = "admin-boundaries"
	FamilyWeatherStations Family = "weather-stations"
	FamilyMapLayer        Family = "map-layer"
	FamilyStatisticalArea Family = "statistical-area"
	FamilyTrainingImage   Family = "training-image"
)

// Selector names understood by the resolvers.
const (
	SelCountry    = "country"
	SelSubregions = "subregions"
	SelDepth      = "depth"
	SelDecimation = "decimation"
	SelFix        = "fix"
	SelEntity     = "entity"
	SelScale      = "scale"
	SelVariant    = "variant"
	SelFormat     = "format"
	SelKind       = "kind"
	SelYear       = "year"
	SelGeo        = "geo"
	SelCode       = "code"
	SelName       = "name"
)

// Selectors maps selector names to values.
type Selectors map[string]any

// DatasetQuery is a family plus its selectors. Build it with NewQuery.
type DatasetQuery struct {
	Family    Family
	Selectors Selectors
}

// NewQuery returns a query holding its own copy of sel.
func NewQuery(f Family, sel Selectors) DatasetQuery {
	return DatasetQuery{Family: f, Selectors: maps.Clone(sel)}
}

// Format identifies the on-disk format handed to the loaders.
type Format int

const (
	FormatGeoPackage Format = iota
	FormatShapefile
	FormatGeoTIFF
	FormatGeoJSON
	FormatCSV
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatGeoPackage:
		return "geopackage"
	case FormatShapefile:
		return "shapefile"
	case FormatGeoTIFF:
		return "geotiff"
	case FormatGeoJSON:
		return "geojson"
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Resolution is a fully resolved dataset request.
type Resolution struct {
	Family     Family
	Identifier string
	URL        string
	Unpack     bool
	Format     Format
	Layer      int            // GeoPackage layer index
	Filters    []ColumnFilter // row restriction applied after loading

	// loader replaces the default format loader when set.
	loader func(path string) (*geotable.Table, error)
}

// familyDescriptor declares how one family resolves and post-processes.
type familyDescriptor struct {
	provider string
	version  string
	resolve  func(ctx context.Context, c *Client, s Selectors) (Resolution, error)
	adapt    func(s Selectors, t *geotable.Table) (*geotable.Table, error)
}

var familyDescriptors = map[Family]familyDescriptor{
	FamilyAdminBoundaries: {provider: "gadm", version: gadmVersion, resolve: resolveGADM, adapt: adaptBoundaries},
	FamilyMapLayer:        {provider: "naturalearth", version: naturalEarthVersion, resolve: resolveNaturalEarth, adapt: adaptMapLayer},
	FamilyWeatherStations: {provider: "inmet", version: inmetVersion, resolve: resolveINMET, adapt: adaptStations},
	FamilyStatisticalArea: {provider: "geobr", version: geobrVersion, resolve: resolveGeoBR},
	FamilyTrainingImage:   {provider: "geostatsimages", version: trainingImageVersion, resolve: resolveTrainingImage},
}

// Families returns the known families in sorted order.
func Families() []Family {
	out := make([]Family, 0, len(familyDescriptors))
	for f := range familyDescriptors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Client resolves, downloads and loads datasets. Safe for concurrent use.
type Client struct {
	cfg   *Config
	cache *Cache
	log   *zerolog.Logger

	geobrMu      sync.Mutex
	geobrCatalog *Catalog[geobrRow]
}

// New creates a client.
//
//	c := geoartifacts.New(geoartifacts.WithCacheDir("/data/geo"))
//	t, err := c.GADM(ctx, "BRA", geoartifacts.Depth(1))
func New(opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		cfg:   cfg,
		cache: NewCache(cfg),
		log:   cfg.logger(),
	}
}

// Default returns a shared client configured from the environment
// (see ConfigFromEnv), constructing it on first use.
var Default = sync.OnceValue(func() *Client {
	return New(ConfigFromEnv()...)
})

// Cache returns the download cache used by the client.
func (c *Client) Cache() *Cache { return c.cache }

func (c *Client) baseURL(src Source) string {
	return strings.TrimSuffix(c.cfg.BaseURLs[src], "/")
}

// Resolve turns a query into a concrete download and load plan without
// touching the network, except for families whose catalog is itself a
// remote file (geobr), which is fetched through the cache.
func (c *Client) Resolve(ctx context.Context, q DatasetQuery) (Resolution, error) {
	d, ok := familyDescriptors[q.Family]
	if !ok {
		return Resolution{}, invalidArgument("family", q.Family, familyNames())
	}
	r, err := d.resolve(ctx, c, q.Selectors)
	if err != nil {
		return Resolution{}, err
	}
	r.Family = q.Family
	return r, nil
}

// Fetch resolves q, ensures the resource is cached, loads it and applies the
// family's table adaptation.
func (c *Client) Fetch(ctx context.Context, q DatasetQuery) (*geotable.Table, error) {
	r, err := c.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	t, err := c.load(ctx, r)
	if err != nil {
		return nil, err
	}
	if d := familyDescriptors[q.Family]; d.adapt != nil {
		if t, err = d.adapt(q.Selectors, t); err != nil {
			return nil, fmt.Errorf("adapting %s: %w", r.Identifier, err)
		}
	}
	return t, nil
}

// load downloads (if needed) and parses a resolved dataset.
func (c *Client) load(ctx context.Context, r Resolution) (*geotable.Table, error) {
	path, err := c.cache.EnsureCached(ctx, r.Identifier, r.URL, r.Unpack)
	if err != nil {
		return nil, err
	}
	var t *geotable.Table
	if r.loader != nil {
		t, err = r.loader(path)
	} else {
		t, err = loadPath(path, r.Format, r.Layer)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", r.Identifier, err)
	}
	if len(r.Filters) > 0 {
		return FilterEqual(t, r.Filters)
	}
	return t, nil
}

func familyNames() []string {
	fs := Families()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

// String reads an optional string selector.
func (s Selectors) String(key string) (string, bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", false, nil
	}
	str, ok := v.(string)
	if !ok {
		return "", false, &InvalidArgumentError{Selector: key, Value: v, Message: "must be a string"}
	}
	return str, true, nil
}

// Int reads an optional integer selector. Numeric strings are accepted.
func (s Selectors) Int(key string) (int, bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false, &InvalidArgumentError{Selector: key, Value: v, Message: "must be an integer"}
		}
		return i, true, nil
	default:
		return 0, false, &InvalidArgumentError{Selector: key, Value: v, Message: "must be an integer"}
	}
}

// Strings reads an optional list-of-strings selector.
func (s Selectors) Strings(key string) ([]string, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []string:
		return l, nil
	case string:
		return []string{l}, nil
	default:
		return nil, &InvalidArgumentError{Selector: key, Value: v, Message: "must be a list of strings"}
	}
}

// Bool reads an optional boolean selector, returning def when absent.
func (s Selectors) Bool(key string, def bool) (bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, &InvalidArgumentError{Selector: key, Value: v, Message: "must be a boolean"}
	}
	return b, nil
}
