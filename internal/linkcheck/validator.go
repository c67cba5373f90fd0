package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/metrics"
)

const (
	// DefaultUserAgent is a desktop browser string; several hosts reject bot agents on HEAD.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	defaultTimeout = 10 * time.Second
	maxDrainBytes  = 64 << 10
)

// Config controls how links are probed.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	ExternalDelay time.Duration
	SocialDomains []string
	// HTTPClient overrides the default client. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Outcome is the memoized result of validating one URL.
type Outcome struct {
	Valid bool
	Label string
	Kind  audit.FetchErrorKind
}

// Validator probes links with HEAD, falling back to GET.
type Validator struct {
	cfg    Config
	client *http.Client
	auth   *audit.BasicAuth
	social *domainList
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	cache map[string]Outcome
	group singleflight.Group
}

// NewValidator returns a Validator with an empty cache. auth is only attached to
// internal links.
func NewValidator(cfg Config, auth *audit.BasicAuth, logger *zap.Logger) *Validator {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ExternalDelay < 0 {
		cfg.ExternalDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if !auth.Usable() {
		auth = nil
	}
	return &Validator{
		cfg:    cfg,
		client: client,
		auth:   auth,
		social: newDomainList(cfg.SocialDomains),
		logger: logger,
		sleep:  sleepContext,
		cache:  make(map[string]Outcome),
	}
}

// Skip reports whether href is excluded from validation entirely: in-page anchors,
// script, mail and phone links, and social-network hosts.
func (v *Validator) Skip(href string) bool {
	trimmed := strings.TrimSpace(href)
	lower := strings.ToLower(trimmed)
	switch {
	case trimmed == "", strings.HasPrefix(trimmed, "#"):
		return true
	case strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"):
		return true
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return false
	}
	return v.social.Contains(u.Hostname())
}

// Validate checks rawURL once per Validator lifetime. baseDomain is the host of the
// page the link was found on.
func (v *Validator) Validate(ctx context.Context, rawURL, baseDomain string) Outcome {
	if out, ok := v.cached(rawURL); ok {
		return out
	}
	res, _, _ := v.group.Do(rawURL, func() (any, error) {
		if out, ok := v.cached(rawURL); ok {
			return out, nil
		}
		out, final := v.probe(ctx, rawURL, baseDomain)
		if final {
			v.mu.Lock()
			v.cache[rawURL] = out
			v.mu.Unlock()
		}
		return out, nil
	})
	out, _ := res.(Outcome)
	return out
}

func (v *Validator) cached(rawURL string) (Outcome, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out, ok := v.cache[rawURL]
	return out, ok
}

// probe runs the HEAD/GET protocol. final is false when the run context ended,
// so an interrupted probe is never memoized.
func (v *Validator) probe(ctx context.Context, rawURL, baseDomain string) (Outcome, bool) {
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return Outcome{Label: "invalid url", Kind: audit.FetchNetwork}, true
	}
	internal := IsInternal(target.Host, baseDomain)
	scope := "external"
	if internal {
		scope = "internal"
	} else if v.cfg.ExternalDelay > 0 {
		if err := v.sleep(ctx, v.cfg.ExternalDelay); err != nil {
			return Outcome{Label: "canceled", Kind: audit.FetchNetwork}, false
		}
	}

	status, err := v.do(ctx, http.MethodHead, rawURL, internal)
	if err == nil && success(status) {
		return v.record(scope, Outcome{Valid: true, Label: httpLabel(status)}), true
	}
	if err != nil {
		v.logger.Debug("head failed; retrying with get", zap.String("url", rawURL), zap.Error(err))
	}

	status, err = v.do(ctx, http.MethodGet, rawURL, internal)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Label: "canceled", Kind: audit.FetchNetwork}, false
		}
		out := transportOutcome(err)
		v.logger.Debug("link unreachable", zap.String("url", rawURL), zap.String("label", out.Label), zap.Error(err))
		return v.record(scope, out), true
	}
	if success(status) {
		return v.record(scope, Outcome{Valid: true, Label: httpLabel(status)}), true
	}
	return v.record(scope, Outcome{Label: httpLabel(status), Kind: audit.FetchHTTPStatus}), true
}

func (v *Validator) do(ctx context.Context, method, rawURL string, internal bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)
	if internal && v.auth != nil {
		req.SetBasicAuth(v.auth.Username, v.auth.Password)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func (v *Validator) record(scope string, out Outcome) Outcome {
	result := "valid"
	if !out.Valid {
		result = string(out.Kind)
	}
	metrics.ObserveLinkProbe(scope, result)
	return out
}

// IsInternal reports whether host belongs to the audited site. A leading "www." is
// ignored on either side.
func IsInternal(host, baseDomain string) bool {
	strip := func(h string) string {
		return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
	}
	return baseDomain != "" && strip(host) == strip(baseDomain)
}

func success(status int) bool {
	return status >= 200 && status < 400
}

func httpLabel(status int) string {
	return fmt.Sprintf("HTTP %d", status)
}

func transportOutcome(err error) Outcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Outcome{Label: "timeout", Kind: audit.FetchTimeout}
	}
	return Outcome{Label: "network error", Kind: audit.FetchNetwork}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
