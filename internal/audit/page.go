package audit

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Base returns the URL relative links on the page resolve against.
func (p Page) Base() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Hrefs returns every a[href] value on the page in document order.
func (p Page) Hrefs() []string {
	if p.Doc == nil {
		return nil
	}
	var out []string
	p.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, strings.TrimSpace(href))
		}
	})
	return out
}

// Resolve turns href into an absolute URL with the fragment removed.
func (p Page) Resolve(href string) (*url.URL, bool) {
	base, err := url.Parse(p.Base())
	if err != nil {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, true
}
