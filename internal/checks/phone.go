package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
)

const phoneCheckName = "電話番号"

// Digits and spaces are matched across Unicode so full-width numbers are detected too.
var (
	phonePattern   = regexp.MustCompile(`\p{Nd}{2,4}[-\s\p{Zs}]?\p{Nd}{2,4}[-\s\p{Zs}]?\p{Nd}{4}`)
	phoneSeparator = regexp.MustCompile(`[-\s\p{Zs}]`)
)

// PhoneChecker compares phone numbers on the page with the reference number.
// A page that shows only the reference number yields no result at all.
type PhoneChecker struct {
	base
	reference string
}

// NewPhoneChecker reads the reference number from checks.phone_check.correct_phone.
func NewPhoneChecker(settings config.Config) *PhoneChecker {
	return &PhoneChecker{
		base:      base{name: PhoneName, settings: settings},
		reference: strings.TrimSpace(settings.CorrectPhone()),
	}
}

// Check implements audit.Checker.
func (c *PhoneChecker) Check(_ context.Context, page audit.Page) ([]audit.CheckResult, error) {
	if c.reference == "" {
		return c.single(page, audit.StatusWarning, "正しい電話番号が設定されていません（設定ファイルで設定してください）"), nil
	}
	want := normalizePhone(c.reference)

	if wrong := c.wrongTelLinks(page, want); len(wrong) > 0 {
		return c.single(page, audit.StatusError, fmt.Sprintf(
			"★ 電話番号リンク(tel:)が正しくありません。\n正: %s\n誤: %s",
			c.reference, strings.Join(uniqueOrdered(wrong), ", "),
		)), nil
	}

	found := phonePattern.FindAllString(page.Text, -1)
	if len(found) == 0 {
		return c.single(page, audit.StatusWarning, "電話番号が見つかりませんでした"), nil
	}

	present := false
	var others []string
	for _, raw := range found {
		normalized := normalizePhone(raw)
		if normalized == want {
			present = true
			continue
		}
		others = append(others, normalized)
	}
	switch {
	case !present:
		return c.single(page, audit.StatusError, fmt.Sprintf(
			"★ 正しい番号(%s)が見つかりません。\n検出された番号: %s",
			c.reference, strings.Join(uniqueOrdered(found), ", "),
		)), nil
	case len(others) > 0:
		return c.single(page, audit.StatusWarning, fmt.Sprintf(
			"★ 正しい番号(%s)が見つかりましたが、他の番号も検出されました。\n他: %s",
			c.reference, strings.Join(uniqueOrdered(others), ", "),
		)), nil
	}
	return nil, nil
}

func (c *PhoneChecker) wrongTelLinks(page audit.Page, want string) []string {
	if page.Doc == nil {
		return nil
	}
	var wrong []string
	page.Doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		number := strings.ReplaceAll(href, "tel:", "")
		if normalizePhone(number) != want {
			wrong = append(wrong, number)
		}
	})
	return wrong
}

func (c *PhoneChecker) single(page audit.Page, status audit.Status, details string) []audit.CheckResult {
	return []audit.CheckResult{c.result(page, phoneCheckName, status, details)}
}

// normalizePhone strips hyphens and whitespace only; it does not reformat digits.
func normalizePhone(raw string) string {
	return phoneSeparator.ReplaceAllString(raw, "")
}
