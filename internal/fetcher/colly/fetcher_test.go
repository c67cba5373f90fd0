package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil)
	collector := f.buildCollector(audit.FetchRequest{URL: "https://example.com"}, &rawResponse{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	req := audit.FetchRequest{
		URL:  "https://example.com",
		Auth: &audit.BasicAuth{Username: "preview", Password: "secret"},
	}
	var result rawResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "Basic cHJldmlldzpzZWNyZXQ=", collyReq.Headers.Get("Authorization"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "https://example.com/final", result.FinalURL)
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestOnRequestSkipsIncompleteCredential(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, audit.FetchRequest{Auth: &audit.BasicAuth{Username: "only"}},
		&rawResponse{}, new(error))

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Empty(t, collyReq.Headers.Get("Authorization"))
}

func TestFetchParsesPage(t *testing.T) {
	t.Parallel()

	var gotAuth, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title> 医院 </title><script>var x = 1;</script></head>
<body><p>  診療時間  </p><p></p><a href="/access#map">アクセス</a></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "DentalCheckerBot/1.0", Timeout: 2 * time.Second}, nil)
	page, err := f.Fetch(context.Background(), audit.FetchRequest{
		URL:  srv.URL + "/#top",
		Auth: &audit.BasicAuth{Username: "u", Password: "p"},
	})
	require.NoError(t, err)

	require.Equal(t, srv.URL+"/", page.URL)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, "医院\n診療時間\nアクセス", page.Text)
	require.NotNil(t, page.Doc)
	require.Equal(t, "DentalCheckerBot/1.0", gotUA)
	require.Equal(t, "Basic dTpw", gotAuth)
	require.Equal(t, []string{"/access#map"}, page.Hrefs())
}

func TestFetchConcurrentCallsShareClient(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>" + r.URL.Path + "</p></body></html>"))
	}))
	t.Cleanup(srv.Close)
	f := New(Config{UserAgent: "DentalCheckerBot/1.0", Timeout: 2 * time.Second}, nil)
	paths := []string{"/a", "/b", "/c", "/d", "/e", "/f", "/g", "/h"}

	// Act
	texts := make([]string, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := f.Fetch(context.Background(), audit.FetchRequest{URL: srv.URL + p})
			texts[i], errs[i] = page.Text, err
		}()
	}
	wg.Wait()

	// Assert
	for i, p := range paths {
		require.NoError(t, errs[i])
		require.Equal(t, p, texts[i])
	}
}

func TestFetchSniffsMetaCharset(t *testing.T) {
	t.Parallel()

	body, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(
		`<html><head><meta charset="Shift_JIS"></head><body><p>電話番号</p></body></html>`))
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	page, err := New(Config{}, nil).Fetch(context.Background(), audit.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "電話番号", page.Text)
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}, nil).Fetch(context.Background(), audit.FetchRequest{URL: srv.URL + "/missing"})
	var ferr *audit.FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, audit.FetchHTTPStatus, ferr.Kind)
	require.Equal(t, http.StatusNotFound, ferr.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(Config{Timeout: 50 * time.Millisecond}, nil).
		Fetch(context.Background(), audit.FetchRequest{URL: srv.URL})
	var ferr *audit.FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, audit.FetchTimeout, ferr.Kind)
}

func TestFetchRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil).Fetch(context.Background(), audit.FetchRequest{URL: "/relative"})
	var ferr *audit.FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, audit.FetchNetwork, ferr.Kind)
}

func TestDecodeBodyKeepsLateUTF8(t *testing.T) {
	t.Parallel()

	padding := make([]byte, 2048)
	for i := range padding {
		padding[i] = 'a'
	}
	body := append(padding, []byte("診療")...)
	require.Equal(t, body, decodeBody("text/html", body))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
