package checks

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/linkcheck"
)

const (
	linkCheckName   = "リンク切れ"
	maxBrokenListed = 10
)

// LinkValidator is the subset of linkcheck.Validator the link checker needs.
type LinkValidator interface {
	Skip(href string) bool
	Validate(ctx context.Context, rawURL, baseDomain string) linkcheck.Outcome
}

// LinkChecker reports broken hyperlinks. One validator is shared by every page of a run.
type LinkChecker struct {
	base
	validator LinkValidator
	logger    *zap.Logger
}

// NewLinkChecker wires a checker to a run's validator.
func NewLinkChecker(settings config.Config, validator LinkValidator, logger *zap.Logger) *LinkChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkChecker{
		base:      base{name: LinkName, settings: settings},
		validator: validator,
		logger:    logger,
	}
}

type brokenLink struct {
	url   string
	label string
}

// Check validates every eligible link on the page and emits exactly one result.
func (c *LinkChecker) Check(ctx context.Context, page audit.Page) ([]audit.CheckResult, error) {
	baseDomain := ""
	if u, err := url.Parse(page.Base()); err == nil {
		baseDomain = u.Host
	}

	checked := 0
	var broken []brokenLink
	reported := make(map[string]struct{})
	for _, href := range page.Hrefs() {
		if c.validator.Skip(href) {
			continue
		}
		abs, ok := page.Resolve(href)
		if !ok || (abs.Scheme != "http" && abs.Scheme != "https") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("link check canceled: %w", err)
		}
		target := abs.String()
		checked++
		out := c.validator.Validate(ctx, target, baseDomain)
		if out.Valid {
			continue
		}
		if _, dup := reported[target]; dup {
			continue
		}
		reported[target] = struct{}{}
		broken = append(broken, brokenLink{url: target, label: out.Label})
	}

	switch {
	case checked == 0:
		return []audit.CheckResult{c.result(page, linkCheckName, audit.StatusOK, "チェック対象のリンクがありません")}, nil
	case len(broken) == 0:
		return []audit.CheckResult{
			c.result(page, linkCheckName, audit.StatusOK, fmt.Sprintf("%d個のリンクをチェック、問題なし", checked)),
		}, nil
	}
	c.logger.Debug("broken links found", zap.String("url", page.URL), zap.Int("broken", len(broken)))
	return []audit.CheckResult{c.result(page, linkCheckName, audit.StatusError, brokenDetails(broken))}, nil
}

func brokenDetails(broken []brokenLink) string {
	var b strings.Builder
	b.WriteString("リンク切れを検出")
	for i, link := range broken {
		if i == maxBrokenListed {
			fmt.Fprintf(&b, "\n他%d件", len(broken)-maxBrokenListed)
			break
		}
		fmt.Fprintf(&b, "\n%s (%s)", link.url, link.label)
	}
	return b.String()
}
