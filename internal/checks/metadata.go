package checks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxImageMeta = 20

type imageMeta struct {
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

// pageMetadata is the structured context handed to the analyzer next to the body text.
type pageMetadata struct {
	Title         string            `json:"title,omitempty"`
	Description   string            `json:"description,omitempty"`
	OGTitle       string            `json:"og:title,omitempty"`
	OGDescription string            `json:"og:description,omitempty"`
	Images        []imageMeta       `json:"images,omitempty"`
	JSONLD        []json.RawMessage `json:"json_ld,omitempty"`
}

func extractMetadata(doc *goquery.Document) pageMetadata {
	var meta pageMetadata
	if doc == nil {
		return meta
	}
	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	meta.Description = metaContent(doc, `meta[name="description"]`)
	meta.OGTitle = metaContent(doc, `meta[property="og:title"]`)
	meta.OGDescription = metaContent(doc, `meta[property="og:description"]`)

	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		img := imageMeta{
			Alt:   strings.TrimSpace(s.AttrOr("alt", "")),
			Title: strings.TrimSpace(s.AttrOr("title", "")),
		}
		if img.Alt != "" || img.Title != "" {
			meta.Images = append(meta.Images, img)
		}
		return len(meta.Images) < maxImageMeta
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		block := strings.TrimSpace(s.Text())
		if block == "" {
			return
		}
		if json.Valid([]byte(block)) {
			meta.JSONLD = append(meta.JSONLD, json.RawMessage(block))
			return
		}
		// Broken markup is still worth showing to the reviewer verbatim.
		if quoted, err := json.Marshal(block); err == nil {
			meta.JSONLD = append(meta.JSONLD, quoted)
		}
	})
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

// prettyJSON renders v indented without HTML escaping, so Japanese and markup stay legible.
func prettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}

// truncateRunes keeps the first limit characters of s.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
