package geoartifacts

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Cache is a content-addressed download cache. A resource is fetched once and
// kept forever under <root>/<identifier>; there is no expiry and no refresh.
//
// Within a process, concurrent misses on the same identifier are serialized
// so only one of them downloads. Across processes there is no lock: two first
// downloads may race, and since every download is written to a temporary name
// and renamed into place, the last writer wins with identical content.
type Cache struct {
	root    string
	client  *http.Client
	accept  bool
	confirm func(DownloadRequest) bool
	log     *zerolog.Logger
	metrics *cacheMetrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCache creates a cache from cfg. The root directory is created lazily on
// the first download.
func NewCache(cfg *Config) *Cache {
	return &Cache{
		root:    cfg.CacheDir,
		client:  cfg.httpClient(),
		accept:  cfg.AcceptDownloads,
		confirm: cfg.Confirm,
		log:     cfg.logger(),
		metrics: newCacheMetrics(cfg.Registerer),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Path returns where the resource for id is, or would be, stored.
func (c *Cache) Path(id string) string {
	return filepath.Join(c.root, id)
}

// Has reports whether id is already cached.
func (c *Cache) Has(id string) bool {
	_, err := os.Stat(c.Path(id))
	return err == nil
}

// Remove deletes a cached resource. Removing a missing entry is not an error.
func (c *Cache) Remove(id string) error {
	if err := validateIdentifier(id); err != nil {
		return err
	}
	return os.RemoveAll(c.Path(id))
}

// EnsureCached returns the local path of the resource named id, downloading
// it from url first if it is not cached. When unpack is true the download is
// treated as a zip archive and the returned path is a directory holding its
// contents.
func (c *Cache) EnsureCached(ctx context.Context, id, url string, unpack bool) (string, error) {
	if err := validateIdentifier(id); err != nil {
		return "", err
	}
	path := c.Path(id)
	provider := providerOf(id)

	if _, err := os.Stat(path); err == nil {
		c.metrics.Hits.WithLabelValues(provider).Inc()
		c.log.Debug().Str("id", id).Msg("cache hit")
		return path, nil
	}

	lock := c.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	// Re-check existence inside lock (another goroutine may have downloaded)
	if _, err := os.Stat(path); err == nil {
		c.metrics.Hits.WithLabelValues(provider).Inc()
		return path, nil
	}
	c.metrics.Misses.WithLabelValues(provider).Inc()

	if !c.accept && (c.confirm == nil || !c.confirm(DownloadRequest{Identifier: id, URL: url})) {
		return "", &DownloadError{Identifier: id, URL: url, Err: ErrDownloadDeclined}
	}

	if err := os.MkdirAll(c.root, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	c.log.Info().Str("id", id).Str("url", url).Msg("downloading")
	start := time.Now()
	n, err := c.download(ctx, id, url, path, unpack)
	if err != nil {
		c.metrics.DownloadErrors.WithLabelValues(provider).Inc()
		c.log.Warn().Err(err).Str("id", id).Msg("download failed")
		return "", err
	}
	c.metrics.DownloadBytes.WithLabelValues(provider).Add(float64(n))
	c.metrics.DownloadDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	c.log.Info().Str("id", id).Int64("bytes", n).Dur("took", time.Since(start)).Msg("cached")
	return path, nil
}

// lockFor returns the mutex guarding the miss path of one identifier.
func (c *Cache) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// download fetches url into a temporary file next to path, optionally
// unpacks it, and renames the result into place.
func (c *Cache) download(ctx context.Context, id, url, path string, unpack bool) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &DownloadError{Identifier: id, URL: url, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &DownloadError{Identifier: id, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, &DownloadError{Identifier: id, URL: url, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(c.root, id+".*.part")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return 0, &DownloadError{Identifier: id, URL: url, Err: err}
	}
	// Explicitly close to catch flush errors (e.g., on NFS)
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing file %s: %w", tmpPath, err)
	}

	if !unpack {
		if err := os.Rename(tmpPath, path); err != nil {
			return 0, fmt.Errorf("moving %s into cache: %w", id, err)
		}
		return n, nil
	}

	dir, err := os.MkdirTemp(c.root, id+".*.unpack")
	if err != nil {
		return 0, fmt.Errorf("creating unpack directory: %w", err)
	}
	if err := unzip(tmpPath, dir); err != nil {
		_ = os.RemoveAll(dir)
		return 0, fmt.Errorf("unpacking %s: %w", id, err)
	}
	if err := os.Rename(dir, path); err != nil {
		_ = os.RemoveAll(dir)
		if _, statErr := os.Stat(path); statErr == nil {
			// Another process finished the same download first.
			return n, nil
		}
		return 0, fmt.Errorf("moving %s into cache: %w", id, err)
	}
	return n, nil
}

// unzip extracts every entry of the archive at src below dst, rejecting
// entries whose names escape dst.
func unzip(src, dst string) error {
	rz, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening zip file: %w", err)
	}
	defer rz.Close()

	for _, f := range rz.File {
		if err := extractZipEntry(f, dst); err != nil {
			return err
		}
	}
	return nil
}

// extractZipEntry writes a single archive entry.
// Extracted to avoid defer-in-loop anti-pattern.
func extractZipEntry(f *zip.File, dst string) error {
	target := filepath.Join(dst, f.Name)
	if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal path in archive: %s", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s in zip: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return out.Close()
}

func validateIdentifier(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return &InvalidArgumentError{Selector: "identifier", Value: id, Message: "must be a single path element"}
	}
	return nil
}

// cacheIdentifier builds the deterministic cache key
// <provider>-<version>-<name>, with characters outside [A-Za-z0-9._-]
// replaced by underscores.
func cacheIdentifier(provider, version, name string) string {
	return sanitizeIdentifier(provider + "-" + version + "-" + name)
}

func sanitizeIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// providerOf returns the provider prefix of an identifier, used as a metric label.
func providerOf(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
