package geoartifacts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "gopkg.in/check.v1"

	"github.com/andreiashu/geoartifacts/internal/logging"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type CacheSuite struct {
	srv  *httptest.Server
	hits atomic.Int32
	body map[string][]byte
	dir  string
}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) SetUpTest(c *C) {
	s.hits.Store(0)
	s.dir = c.MkDir()
	s.body = map[string][]byte{
		"/data.txt": []byte("hello"),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		b, ok := s.body[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	}))
}

func (s *CacheSuite) TearDownTest(c *C) {
	s.srv.Close()
}

func (s *CacheSuite) newCache(opts ...Option) *Cache {
	cfg := defaultConfig()
	cfg.CacheDir = s.dir
	cfg.Logger = &logging.Nop
	for _, opt := range opts {
		opt(cfg)
	}
	return NewCache(cfg)
}

func (s *CacheSuite) TestMissThenHit(c *C) {
	cache := s.newCache()
	ctx := context.Background()

	p1, err := cache.EnsureCached(ctx, "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(err, IsNil)
	c.Assert(p1, Equals, filepath.Join(s.dir, "test-v1-data.txt"))
	b, err := os.ReadFile(p1)
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "hello")

	p2, err := cache.EnsureCached(ctx, "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(err, IsNil)
	c.Assert(p2, Equals, p1)
	c.Assert(s.hits.Load(), Equals, int32(1))
	c.Assert(cache.Has("test-v1-data.txt"), Equals, true)
}

func (s *CacheSuite) TestHitSurvivesNewCache(c *C) {
	_, err := s.newCache().EnsureCached(context.Background(), "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(err, IsNil)

	// A fresh process sees the file on disk and never touches the network.
	_, err = s.newCache().EnsureCached(context.Background(), "test-v1-data.txt", "http://127.0.0.1:1/unreachable", false)
	c.Assert(err, IsNil)
	c.Assert(s.hits.Load(), Equals, int32(1))
}

func (s *CacheSuite) TestConcurrentMissesDownloadOnce(c *C) {
	cache := s.newCache()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.EnsureCached(context.Background(), "test-v1-data.txt", s.srv.URL+"/data.txt", false)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		c.Assert(err, IsNil)
	}
	c.Assert(s.hits.Load(), Equals, int32(1))
}

func (s *CacheSuite) TestNotFoundIsDownloadError(c *C) {
	cache := s.newCache()
	_, err := cache.EnsureCached(context.Background(), "test-v1-missing", s.srv.URL+"/missing", false)
	c.Assert(err, NotNil)
	c.Assert(IsDownload(err), Equals, true)
	c.Assert(IsNotFound(err), Equals, false)

	var de *DownloadError
	c.Assert(errors.As(err, &de), Equals, true)
	c.Assert(de.StatusCode, Equals, http.StatusNotFound)
	c.Assert(cache.Has("test-v1-missing"), Equals, false)

	entries, err := os.ReadDir(s.dir)
	c.Assert(err, IsNil)
	c.Assert(entries, HasLen, 0)
}

func (s *CacheSuite) TestTransportErrorIsDownloadError(c *C) {
	cache := s.newCache(WithTimeout(time.Second))
	_, err := cache.EnsureCached(context.Background(), "test-v1-x", "http://127.0.0.1:1/x", false)
	c.Assert(IsDownload(err), Equals, true)
}

func (s *CacheSuite) TestDeclined(c *C) {
	asked := 0
	cache := s.newCache(WithAcceptDownloads(false), WithConfirm(func(req DownloadRequest) bool {
		asked++
		c.Check(req.Identifier, Equals, "test-v1-data.txt")
		return false
	}))
	_, err := cache.EnsureCached(context.Background(), "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(errors.Is(err, ErrDownloadDeclined), Equals, true)
	c.Assert(IsDownload(err), Equals, true)
	c.Assert(asked, Equals, 1)
	c.Assert(s.hits.Load(), Equals, int32(0))
}

func (s *CacheSuite) TestDeclinedWithoutCallback(c *C) {
	cache := s.newCache(WithAcceptDownloads(false))
	_, err := cache.EnsureCached(context.Background(), "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(errors.Is(err, ErrDownloadDeclined), Equals, true)
	c.Assert(s.hits.Load(), Equals, int32(0))
}

func (s *CacheSuite) TestConfirmed(c *C) {
	cache := s.newCache(WithAcceptDownloads(false), WithConfirm(func(DownloadRequest) bool { return true }))
	_, err := cache.EnsureCached(context.Background(), "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(err, IsNil)
}

func (s *CacheSuite) TestUnpack(c *C) {
	s.body["/archive.zip"] = zipBytes(c, map[string][]byte{
		"layer/a.shp": []byte("shape"),
		"layer/a.dbf": []byte("attrs"),
	})
	cache := s.newCache()
	dir, err := cache.EnsureCached(context.Background(), "test-v1-archive", s.srv.URL+"/archive.zip", true)
	c.Assert(err, IsNil)

	b, err := os.ReadFile(filepath.Join(dir, "layer", "a.dbf"))
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "attrs")

	found, err := pickFile(dir, ".shp")
	c.Assert(err, IsNil)
	c.Assert(filepath.Base(found), Equals, "a.shp")
}

func (s *CacheSuite) TestUnpackRejectsEscapingEntries(c *C) {
	s.body["/evil.zip"] = zipBytes(c, map[string][]byte{
		"../escape.txt": []byte("nope"),
	})
	cache := s.newCache()
	_, err := cache.EnsureCached(context.Background(), "test-v1-evil", s.srv.URL+"/evil.zip", true)
	c.Assert(err, ErrorMatches, ".*(illegal path in archive|insecure).*")
	c.Assert(cache.Has("test-v1-evil"), Equals, false)

	_, statErr := os.Stat(filepath.Join(s.dir, "escape.txt"))
	c.Assert(os.IsNotExist(statErr), Equals, true)
}

func (s *CacheSuite) TestIdentifierValidation(c *C) {
	cache := s.newCache()
	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := cache.EnsureCached(context.Background(), id, s.srv.URL+"/data.txt", false)
		c.Assert(IsInvalidArgument(err), Equals, true, Commentf("id %q", id))
	}
	c.Assert(s.hits.Load(), Equals, int32(0))
}

func (s *CacheSuite) TestRemove(c *C) {
	cache := s.newCache()
	_, err := cache.EnsureCached(context.Background(), "test-v1-data.txt", s.srv.URL+"/data.txt", false)
	c.Assert(err, IsNil)
	c.Assert(cache.Remove("test-v1-data.txt"), IsNil)
	c.Assert(cache.Has("test-v1-data.txt"), Equals, false)
	c.Assert(cache.Remove("test-v1-data.txt"), IsNil)
}

func (s *CacheSuite) TestMetrics(c *C) {
	reg := prometheus.NewRegistry()
	cache := s.newCache(WithRegisterer(reg))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := cache.EnsureCached(ctx, "test-v1-data.txt", s.srv.URL+"/data.txt", false)
		c.Assert(err, IsNil)
	}
	_, _ = cache.EnsureCached(ctx, "test-v1-missing", s.srv.URL+"/missing", false)

	c.Assert(testutil.ToFloat64(cache.metrics.Misses.WithLabelValues("test")), Equals, 2.0)
	c.Assert(testutil.ToFloat64(cache.metrics.Hits.WithLabelValues("test")), Equals, 2.0)
	c.Assert(testutil.ToFloat64(cache.metrics.DownloadErrors.WithLabelValues("test")), Equals, 1.0)
	c.Assert(testutil.ToFloat64(cache.metrics.DownloadBytes.WithLabelValues("test")), Equals, 5.0)
}

func (s *CacheSuite) TestCacheIdentifier(c *C) {
	c.Assert(cacheIdentifier("gadm", "4.1", "gadm41_BRA.gpkg"), Equals, "gadm-4.1-gadm41_BRA.gpkg")
	c.Assert(cacheIdentifier("geobr", "1.7.0", "state 2020/all"), Equals, "geobr-1.7.0-state_2020_all")
	c.Assert(cacheIdentifier("gadm", "4.1", "x"), Not(Equals), cacheIdentifier("gadm", "4.0", "x"))
	c.Assert(providerOf("naturalearth-v5.1.2-ne_110m_land"), Equals, "naturalearth")
}
