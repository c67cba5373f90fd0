package checks

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	collyfetcher "github.com/JakeFAU/prelaunch-audit/internal/fetcher/colly"
	"github.com/JakeFAU/prelaunch-audit/internal/linkcheck"
)

func newPage(t *testing.T, rawURL, html string) audit.Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	doc.Url, err = url.Parse(rawURL)
	require.NoError(t, err)
	return audit.Page{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: 200,
		HTML:       html,
		Text:       collyfetcher.ExtractText(doc),
		Doc:        doc,
	}
}

// stubValidator reports every URL valid unless listed in broken.
type stubValidator struct {
	real   *linkcheck.Validator
	broken map[string]string

	mu        sync.Mutex
	validated []string
	bases     []string
}

func newStubValidator(broken map[string]string) *stubValidator {
	return &stubValidator{
		real:   linkcheck.NewValidator(linkcheck.Config{SocialDomains: []string{"instagram.com", "x.com", "facebook.com", "twitter.com"}}, nil, nil),
		broken: broken,
	}
}

func (s *stubValidator) Skip(href string) bool { return s.real.Skip(href) }

func (s *stubValidator) Validate(_ context.Context, rawURL, baseDomain string) linkcheck.Outcome {
	s.mu.Lock()
	s.validated = append(s.validated, rawURL)
	s.bases = append(s.bases, baseDomain)
	s.mu.Unlock()
	if label, ok := s.broken[rawURL]; ok {
		return linkcheck.Outcome{Label: label, Kind: audit.FetchHTTPStatus}
	}
	return linkcheck.Outcome{Valid: true, Label: "HTTP 200"}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func boolPtr(v bool) *bool { return &v }
