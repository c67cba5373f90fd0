package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	collyfetcher "github.com/JakeFAU/prelaunch-audit/internal/fetcher/colly"
)

type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]bool
	calls []audit.FetchRequest
}

func (m *mapFetcher) Fetch(_ context.Context, req audit.FetchRequest) (audit.Page, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.fail[req.URL] {
		return audit.Page{}, &audit.FetchError{URL: req.URL, Kind: audit.FetchHTTPStatus, StatusCode: http.StatusNotFound}
	}
	body, ok := m.pages[req.URL]
	if !ok {
		return audit.Page{}, &audit.FetchError{URL: req.URL, Kind: audit.FetchNetwork, Err: errors.New("no route")}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return audit.Page{}, err
	}
	doc.Url, _ = url.Parse(req.URL)
	return audit.Page{URL: req.URL, FinalURL: req.URL, StatusCode: http.StatusOK, HTML: body, Doc: doc}, nil
}

func (m *mapFetcher) fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.URL)
	}
	return out
}

type tickRecorder struct {
	ticks [][2]int
}

func (r *tickRecorder) tick(done, total int) {
	r.ticks = append(r.ticks, [2]int{done, total})
}

type errWaiter struct{ err error }

func (w errWaiter) Wait(context.Context, string) error { return w.err }

func sitePages() map[string]string {
	return map[string]string{
		"https://example.com/": `<html><body>
			<a href="/a">A</a>
			<a href="b">B</a>
			<a href="/a#top">A again</a>
			<a href="https://other.example.com/x">external</a>
			<a href="https://EXAMPLE.com/c?z=1&a=2">C</a>
			<a href="mailto:info@example.com">mail</a>
			<a href="javascript:void(0)">js</a>
		</body></html>`,
		"https://example.com/a":          `<html><body><a href="/d">D</a><a href="/">home</a></body></html>`,
		"https://example.com/b":          `<html><body>b</body></html>`,
		"https://example.com/c?a=2&z=1":  `<html><body>c</body></html>`,
		"https://example.com/d":          `<html><body>d</body></html>`,
		"https://other.example.com/x":    `<html><body>other</body></html>`,
		"https://example.com/blog/entry": `<html><body>blog</body></html>`,
	}
}

func TestCrawlBreadthFirstWithinHost(t *testing.T) {
	t.Parallel()

	// Arrange
	fetcher := &mapFetcher{pages: sitePages()}
	c, err := New(Config{MaxPages: 10}, fetcher, nil, zap.NewNop())
	require.NoError(t, err)
	rec := &tickRecorder{}

	// Act
	pages, err := c.Crawl(context.Background(), "https://example.com", nil, rec.tick)

	// Assert
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c?a=2&z=1",
		"https://example.com/d",
	}, fetcher.fetched())
	require.Len(t, pages, 5)
	require.NotContains(t, pages, "https://other.example.com/x")
	require.Equal(t, [2]int{5, 5}, rec.ticks[len(rec.ticks)-1])
	require.Equal(t, [2]int{1, 10}, rec.ticks[0])
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	t.Parallel()

	// Arrange
	fetcher := &mapFetcher{pages: sitePages()}
	c, err := New(Config{MaxPages: 2}, fetcher, nil, nil)
	require.NoError(t, err)
	rec := &tickRecorder{}

	// Act
	pages, err := c.Crawl(context.Background(), "https://example.com/", nil, rec.tick)

	// Assert
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Len(t, fetcher.fetched(), 2)
	require.Equal(t, [][2]int{{1, 2}, {2, 2}}, rec.ticks)
}

func TestCrawlSkipsExcludedURLs(t *testing.T) {
	t.Parallel()

	// Arrange
	site := sitePages()
	site["https://example.com/b"] = `<html><body><a href="/blog/entry">blog</a></body></html>`
	fetcher := &mapFetcher{pages: site}
	c, err := New(Config{MaxPages: 10, ExcludePatterns: []string{`/blog/`}}, fetcher, nil, nil)
	require.NoError(t, err)

	// Act
	pages, err := c.Crawl(context.Background(), "https://example.com/", nil, nil)

	// Assert
	require.NoError(t, err)
	require.NotContains(t, pages, "https://example.com/blog/entry")
	require.NotContains(t, fetcher.fetched(), "https://example.com/blog/entry")
}

func TestCrawlDropsFailedFetches(t *testing.T) {
	t.Parallel()

	// Arrange
	fetcher := &mapFetcher{pages: sitePages(), fail: map[string]bool{"https://example.com/a": true}}
	c, err := New(Config{MaxPages: 10}, fetcher, nil, nil)
	require.NoError(t, err)

	// Act
	pages, err := c.Crawl(context.Background(), "https://example.com/", nil, nil)

	// Assert
	require.NoError(t, err)
	require.NotContains(t, pages, "https://example.com/a")
	require.Contains(t, pages, "https://example.com/b")
	// /d is only linked from /a.
	require.NotContains(t, pages, "https://example.com/d")
	count := 0
	for _, u := range fetcher.fetched() {
		if u == "https://example.com/a" {
			count++
		}
	}
	require.Equal(t, 1, count, "failed urls are not retried")
}

func TestCrawlForwardsCredentials(t *testing.T) {
	t.Parallel()

	fetcher := &mapFetcher{pages: sitePages()}
	c, err := New(Config{MaxPages: 1}, fetcher, nil, nil)
	require.NoError(t, err)
	auth := &audit.BasicAuth{Username: "preview", Password: "secret"}

	_, err = c.Crawl(context.Background(), "https://example.com/", auth, nil)

	require.NoError(t, err)
	require.Len(t, fetcher.calls, 1)
	require.Equal(t, auth, fetcher.calls[0].Auth)
}

func TestCrawlStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	fetcher := &mapFetcher{pages: sitePages()}
	c, err := New(Config{MaxPages: 5}, fetcher, errWaiter{err: context.Canceled}, nil)
	require.NoError(t, err)

	_, err = c.Crawl(context.Background(), "https://example.com/", nil, nil)

	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetcher.fetched())
}

func TestCrawlRejectsInvalidStartURL(t *testing.T) {
	t.Parallel()

	c, err := New(Config{}, &mapFetcher{}, nil, nil)
	require.NoError(t, err)

	_, err = c.Crawl(context.Background(), "ftp://example.com/", nil, nil)

	require.Error(t, err)
}

func TestNewRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ExcludePatterns: []string{"("}}, &mapFetcher{}, nil, nil)

	require.ErrorContains(t, err, "compile exclude pattern")
}

func TestFilter(t *testing.T) {
	t.Parallel()

	c, err := New(Config{MaxPages: 3, ExcludePatterns: []string{`\.pdf$`}}, &mapFetcher{}, nil, nil)
	require.NoError(t, err)

	got := c.Filter([]string{
		"https://example.com/",
		"https://example.com",
		"not a url",
		"https://example.com/menu.pdf",
		"https://example.com/access#map",
		"https://example.com/staff",
		"https://example.com/overflow",
	})

	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/access",
		"https://example.com/staff",
	}, got)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "lowercases host", in: "https://Example.COM/Path", want: "https://example.com/Path"},
		{name: "drops default port", in: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "drops default tls port", in: "https://example.com:443", want: "https://example.com/"},
		{name: "keeps other ports", in: "http://127.0.0.1:8080/x", want: "http://127.0.0.1:8080/x"},
		{name: "sorts query", in: "https://example.com/?b=2&a=1", want: "https://example.com/?a=1&b=2"},
		{name: "strips fragment", in: "https://example.com/a#b", want: "https://example.com/a"},
		{name: "rejects mailto", in: "mailto:a@example.com", wantErr: true},
		{name: "rejects relative", in: "/about", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCrawlAgainstLiveServer(t *testing.T) {
	t.Parallel()

	// Arrange
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><a href="/access">access</a><a href="/missing">gone</a></body></html>`)
	})
	mux.HandleFunc("/access", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><p>アクセス</p><a href="/">home</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: "test-agent"}, zap.NewNop())
	c, err := New(Config{MaxPages: 10}, fetcher, nil, zap.NewNop())
	require.NoError(t, err)

	// Act
	pages, err := c.Crawl(context.Background(), srv.URL, nil, nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Contains(t, pages, srv.URL+"/access")
	require.Contains(t, pages[srv.URL+"/access"].Text, "アクセス")
}
