package geoartifacts

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/andreiashu/geoartifacts/internal/logging"
)

// Source names a remote data provider endpoint whose base URL can be overridden.
type Source string

const (
	SourceGADM             Source = "gadm"
	SourceNaturalEarth     Source = "naturalearth"
	SourceNaturalEarthJSON Source = "naturalearth-geojson"
	SourceINMET            Source = "inmet"
	SourceINMETHistorical  Source = "inmet-historical"
	SourceGeoBR            Source = "geobr"
	SourceGeoStatsImages   Source = "geostatsimages"
)

// defaultBaseURLs are the fixed provider endpoints.
var defaultBaseURLs = map[Source]string{
	SourceGADM:             "https://geodata.ucdavis.edu/gadm/gadm4.1/gpkg",
	SourceNaturalEarth:     "https://naciscdn.org/naturalearth",
	SourceNaturalEarthJSON: "https://raw.githubusercontent.com/nvkelso/natural-earth-vector/" + naturalEarthVersion + "/geojson",
	SourceINMET:            "https://apitempo.inmet.gov.br",
	SourceINMETHistorical:  "https://portal.inmet.gov.br/uploads/dadoshistoricos",
	SourceGeoBR:            "https://www.ipea.gov.br/geobr/metadata",
	SourceGeoStatsImages:   "https://raw.githubusercontent.com/JuliaEarth/GeoStatsImages.jl/master/src/data",
}

// defaultTimeout bounds a single HTTP request, body included.
const defaultTimeout = 60 * time.Second

// DownloadRequest describes a first-time download awaiting confirmation.
type DownloadRequest struct {
	Identifier string
	URL        string
}

// Config contains configuration options for a Client.
type Config struct {
	CacheDir        string                     // Cache root (default: <user cache dir>/geoartifacts)
	AcceptDownloads bool                       // Download without asking (default: true)
	Confirm         func(DownloadRequest) bool // Consulted when AcceptDownloads is false
	Timeout         time.Duration              // Per-request timeout (default: 60s)
	HTTPClient      *http.Client               // Overrides the client built from Timeout
	Logger          *zerolog.Logger            // Defaults to the package logger
	Registerer      prometheus.Registerer      // Where cache metrics are registered
	BaseURLs        map[Source]string          // Provider endpoint overrides
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// WithCacheDir sets the cache root directory.
func WithCacheDir(dir string) Option {
	return func(c *Config) {
		c.CacheDir = dir
	}
}

// WithAcceptDownloads sets whether first-time downloads proceed without confirmation.
func WithAcceptDownloads(accept bool) Option {
	return func(c *Config) {
		c.AcceptDownloads = accept
	}
}

// WithConfirm sets the callback asked before a first-time download when
// downloads are not accepted automatically.
func WithConfirm(confirm func(DownloadRequest) bool) Option {
	return func(c *Config) {
		c.Confirm = confirm
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = &logger
	}
}

// WithRegisterer sets the prometheus registerer for cache metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = r
	}
}

// WithBaseURL overrides the endpoint of a provider, e.g. to use a mirror.
func WithBaseURL(src Source, url string) Option {
	return func(c *Config) {
		c.BaseURLs[src] = url
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() *Config {
	base := make(map[Source]string, len(defaultBaseURLs))
	for k, v := range defaultBaseURLs {
		base[k] = v
	}
	return &Config{
		CacheDir:        defaultCacheDir(),
		AcceptDownloads: true,
		Timeout:         defaultTimeout,
		BaseURLs:        base,
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "geoartifacts")
}

// ConfigFromEnv returns options read from GEOARTIFACTS_CACHE_DIR,
// GEOARTIFACTS_ACCEPT_DOWNLOADS and GEOARTIFACTS_TIMEOUT. Unset variables
// leave the defaults in place.
func ConfigFromEnv() []Option {
	v := viper.New()
	v.SetEnvPrefix("geoartifacts")
	v.AutomaticEnv()
	v.SetDefault("accept_downloads", true)
	v.SetDefault("timeout", defaultTimeout)

	opts := []Option{
		WithAcceptDownloads(v.GetBool("accept_downloads")),
		WithTimeout(v.GetDuration("timeout")),
	}
	if dir := v.GetString("cache_dir"); dir != "" {
		opts = append(opts, WithCacheDir(dir))
	}
	return opts
}

func (c *Config) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Default()
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}
