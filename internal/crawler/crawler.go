package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

const defaultMaxPages = 20

// Config holds the settings for a crawl.
type Config struct {
	MaxPages        int
	ExcludePatterns []string
}

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Crawler implements audit.Crawler.
type Crawler struct {
	cfg      Config
	fetcher  audit.Fetcher
	limiter  Waiter
	excludes []*regexp.Regexp
	logger   *zap.Logger
}

// New compiles the exclusion patterns and wires the fetcher. limiter may be nil.
func New(cfg Config, fetcher audit.Fetcher, limiter Waiter, logger *zap.Logger) (*Crawler, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	excludes := make([]*regexp.Regexp, 0, len(cfg.ExcludePatterns))
	for _, pattern := range cfg.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
		}
		excludes = append(excludes, re)
	}
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		limiter:  limiter,
		excludes: excludes,
		logger:   logger,
	}, nil
}

// Excluded reports whether any exclusion pattern matches anywhere in rawURL.
func (c *Crawler) Excluded(rawURL string) bool {
	for _, re := range c.excludes {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Filter normalizes and de-duplicates an explicit URL list, drops excluded or invalid
// entries and applies the page cap, keeping the earliest entries.
func (c *Crawler) Filter(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		if len(out) >= c.cfg.MaxPages {
			break
		}
		normalized, err := NormalizeURL(raw)
		if err != nil {
			c.logger.Debug("skipping invalid url", zap.String("url", raw), zap.Error(err))
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		if c.Excluded(normalized) {
			c.logger.Info("excluded", zap.String("url", normalized))
			continue
		}
		out = append(out, normalized)
	}
	return out
}

// Crawl walks same-host links breadth-first from startURL until the frontier is empty
// or MaxPages pages have been fetched. Failed fetches are dropped; excluded URLs are
// never fetched.
func (c *Crawler) Crawl(
	ctx context.Context,
	startURL string,
	auth *audit.BasicAuth,
	tick func(done, total int),
) (map[string]audit.Page, error) {
	start, err := NormalizeURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("normalize start url: %w", err)
	}
	startParsed, _ := url.Parse(start)
	if tick == nil {
		tick = func(int, int) {}
	}

	f := newFrontier()
	f.push(start)
	pages := make(map[string]audit.Page)
	for len(pages) < c.cfg.MaxPages {
		next, ok := f.pop()
		if !ok {
			break
		}
		if c.Excluded(next) {
			f.exclude(next)
			c.logger.Info("excluded", zap.String("url", next))
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, next); err != nil {
				return nil, fmt.Errorf("wait for %s: %w", next, err)
			}
		}
		c.logger.Debug("crawling", zap.String("url", next))
		page, err := c.fetcher.Fetch(ctx, audit.FetchRequest{URL: next, Auth: auth})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("crawl canceled: %w", ctxErr)
			}
			c.logger.Debug("fetch failed; dropping url", zap.String("url", next), zap.Error(err))
			continue
		}
		pages[next] = page
		tick(len(pages), c.cfg.MaxPages)

		for _, link := range internalLinks(page, startParsed.Host) {
			f.push(link)
		}
	}
	if excluded := f.excludedCount(); excluded > 0 {
		c.logger.Info("crawl finished with exclusions", zap.Int("excluded", excluded), zap.Int("pages", len(pages)))
	}
	if len(pages) < c.cfg.MaxPages {
		tick(len(pages), len(pages))
	}
	return pages, nil
}

// internalLinks returns normalized links on page whose host equals host exactly.
func internalLinks(page audit.Page, host string) []string {
	var out []string
	for _, href := range page.Hrefs() {
		abs, ok := page.Resolve(href)
		if !ok || !equalHost(abs.Host, host) {
			continue
		}
		normalized, err := normalize(abs)
		if err != nil {
			continue
		}
		out = append(out, normalized)
	}
	return out
}
