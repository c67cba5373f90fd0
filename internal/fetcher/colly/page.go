package collyfetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

func buildPage(target string, resp rawResponse) (audit.Page, error) {
	body := decodeBody(resp.Headers.Get("Content-Type"), resp.Body)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return audit.Page{}, fmt.Errorf("parse html: %w", err)
	}
	finalURL := resp.FinalURL
	if finalURL == "" {
		finalURL = target
	}
	if u, err := url.Parse(finalURL); err == nil {
		doc.Url = u
	}
	return audit.Page{
		URL:        target,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Text:       ExtractText(doc),
		HTML:       string(body),
		Doc:        doc,
	}, nil
}

// decodeBody converts body to UTF-8. Colly already transcodes bodies whose Content-Type
// names a charset; everything else is sniffed from BOM and <meta> declarations.
func decodeBody(contentType string, body []byte) []byte {
	if len(body) == 0 || strings.Contains(strings.ToLower(contentType), "charset") {
		return body
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body
	}
	// The sniffer only inspects the first 1024 bytes and defaults to windows-1252.
	if name == "windows-1252" && utf8.Valid(body) {
		return body
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}

// ExtractText renders the visible text of doc, one trimmed text node per line.
func ExtractText(doc *goquery.Document) string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}
