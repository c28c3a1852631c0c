// Package artifact resolves remote source trees into flat artifact sets,
// memoized through a TTL cache so repeated scans of the same tree within the
// cache window cost one upstream fetch.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/cache"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/metrics"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source"
)

// DefaultCacheTTL is how long a fetched tree stays valid.
const DefaultCacheTTL = 10 * time.Minute

// DefaultExtensions is the default source-file allow-list.
var DefaultExtensions = []string{".sol", ".vy"}

// Config configures a Fetcher.
type Config struct {
	// Extensions is the source-file allow-list (default: .sol, .vy).
	Extensions []string

	// CacheTTL bounds how long a fetched tree is reused (default: 10m).
	CacheTTL time.Duration

	// MaxDepth bounds directory recursion (default: 16).
	MaxDepth int

	// Metrics receives cache hit/miss counters (optional).
	Metrics metrics.Collector

	// Verbose enables debug logging.
	Verbose bool
}

// Fetcher resolves a directory tree from a source provider into a flat list
// of artifacts, consulting the cache first. The cache is a pure memoization
// layer: a cold cache produces identical results to a warm one.
type Fetcher struct {
	client  source.Client
	cache   *cache.Cache[[]core.SourceFile]
	cfg     *Config
	metrics metrics.Collector
}

// NewFetcher creates a Fetcher over the given provider client and cache.
// The cache may be shared across fetchers and scans.
func NewFetcher(client source.Client, c *cache.Cache[[]core.SourceFile], cfg *Config) *Fetcher {
	if cfg == nil {
		cfg = &Config{}
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 16
	}
	m := cfg.Metrics
	if m == nil {
		m = &metrics.NopCollector{}
	}
	if c == nil {
		c = cache.New[[]core.SourceFile](nil)
	}

	return &Fetcher{
		client:  client,
		cache:   c,
		cfg:     cfg,
		metrics: m,
	}
}

// FetchTree resolves the tree at (locator, root) into artifacts matching the
// allow-list. Returns a not-found error when no files match, and an upstream
// error on provider failure. Extensions, when non-empty, overrides the
// configured allow-list for this call.
func (f *Fetcher) FetchTree(ctx context.Context, locator, root, credential string, extensions []string) ([]core.SourceFile, error) {
	if len(extensions) == 0 {
		extensions = f.cfg.Extensions
	}

	key := cacheKey(f.client.Name(), locator, root, extensions)
	if files, ok := f.cache.Get(key); ok {
		f.metrics.CounterInc(metrics.ArtifactCacheHits.Name)
		if f.cfg.Verbose {
			fmt.Printf("[artifact] Cache hit: %s (%d files)\n", locator, len(files))
		}
		return files, nil
	}
	f.metrics.CounterInc(metrics.ArtifactCacheMisses.Name)

	files, err := f.walk(ctx, locator, root, credential, extensions, 0)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.E(errors.KindNotFound, "artifact.FetchTree",
			fmt.Sprintf("no files matching %v under %s/%s", extensions, locator, root))
	}

	f.cache.SetTTL(key, files, f.cfg.CacheTTL)

	if f.cfg.Verbose {
		fmt.Printf("[artifact] Fetched %d files from %s/%s\n", len(files), locator, root)
	}
	return files, nil
}

// walk recursively collects matching files under dir.
func (f *Fetcher) walk(ctx context.Context, locator, dir, credential string, extensions []string, depth int) ([]core.SourceFile, error) {
	if depth > f.cfg.MaxDepth {
		return nil, nil
	}

	entries, err := f.client.ListDirectory(ctx, locator, dir, credential)
	if err != nil {
		return nil, err
	}

	var files []core.SourceFile
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, errors.E(errors.KindTimeout, "artifact.walk", "fetch cancelled", ctx.Err())
		default:
		}

		switch entry.Type {
		case source.EntryDir:
			sub, err := f.walk(ctx, locator, entry.Path, credential, extensions, depth+1)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)

		case source.EntryFile:
			if !matchesExtension(entry.Path, extensions) {
				continue
			}
			content, err := f.client.GetFileContent(ctx, locator, entry.Path, credential)
			if err != nil {
				return nil, err
			}
			files = append(files, core.SourceFile{Path: entry.Path, Content: content})
		}
	}

	return files, nil
}

// CacheStats exposes the underlying cache statistics.
func (f *Fetcher) CacheStats() *cache.Stats {
	return f.cache.Stats()
}

func matchesExtension(p string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, allowed := range extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// cacheKey builds the (provider, locator, path) cache key. The credential
// never enters the key.
func cacheKey(provider, locator, root string, extensions []string) string {
	return provider + "\x00" + locator + "\x00" + root + "\x00" + strings.Join(extensions, ",")
}
