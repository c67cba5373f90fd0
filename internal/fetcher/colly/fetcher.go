// Package collyfetcher implements audit.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements audit.Fetcher using the Colly collector.
type Fetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// rawResponse is what the collector hooks capture before decoding.
type rawResponse struct {
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	// Clones share the visited store, so revisits must be allowed for repeat fetches.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.DetectCharset = false
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	// Clones share one http.Client, so the client is configured here and never per fetch.
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET and parses the response into a Page.
func (f *Fetcher) Fetch(ctx context.Context, request audit.FetchRequest) (audit.Page, error) {
	target, err := stripFragment(request.URL)
	if err != nil {
		return audit.Page{}, &audit.FetchError{URL: request.URL, Kind: audit.FetchNetwork, Err: err}
	}

	var (
		resp     rawResponse
		fetchErr error
	)
	collector := f.buildCollector(request, &resp, &fetchErr)
	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		ferr := classifyError(target, err)
		metrics.ObserveFetch(target, string(ferr.Kind))
		return audit.Page{}, ferr
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		metrics.ObserveFetch(target, string(audit.FetchHTTPStatus))
		return audit.Page{}, &audit.FetchError{URL: target, Kind: audit.FetchHTTPStatus, StatusCode: resp.StatusCode}
	}

	page, err := buildPage(target, resp)
	if err != nil {
		metrics.ObserveFetch(target, "parse_error")
		return audit.Page{}, &audit.FetchError{URL: target, Kind: audit.FetchNetwork, Err: err}
	}
	metrics.ObserveFetch(target, "ok")
	f.logger.Debug("page fetched",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
	)
	return page, nil
}

func (f *Fetcher) buildCollector(
	request audit.FetchRequest,
	result *rawResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	f.configureCollectorHooks(collector, request, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request audit.FetchRequest,
	result *rawResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if request.Auth.Usable() {
			r.Headers.Set("Authorization", basicAuthHeader(request.Auth))
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = rawResponse{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func classifyError(target string, err error) *audit.FetchError {
	kind := audit.FetchNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = audit.FetchTimeout
	}
	return &audit.FetchError{URL: target, Kind: kind, Err: err}
}

func basicAuthHeader(auth *audit.BasicAuth) string {
	token := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
	return "Basic " + token
}

func stripFragment(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
