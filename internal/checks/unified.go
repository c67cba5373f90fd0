package checks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/metrics"
)

const (
	ga4CheckName        = "GA4設定"
	aiCheckName         = "AI統合チェック"
	ga4MasterKey        = "GA4コード"
	noIssuesSentinel    = "問題なし"
	defaultTextBudget   = 4000
	typoSubCheck        = "typo"
	ngWordSubCheck      = "ng_word"
	consistencySubCheck = "consistency"
)

var ga4Pattern = regexp.MustCompile(`G-[A-Z0-9]{5,}`)

// UnifiedChecker runs the typo, NG-word and consistency reviews in one analyzer call,
// plus a direct GA4 measurement-ID check against the master data.
type UnifiedChecker struct {
	base
	analyzer    audit.TextAnalyzer
	clock       audit.Clock
	logger      *zap.Logger
	profile     audit.Profile
	typo        bool
	ngWord      bool
	consistency bool
	textBudget  int
}

// NewUnifiedChecker builds the checker. A nil analyzer degrades the AI review to a warning.
func NewUnifiedChecker(
	settings config.Config,
	analyzer audit.TextAnalyzer,
	clock audit.Clock,
	logger *zap.Logger,
) *UnifiedChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	budget := settings.AI.TextBudget
	if budget <= 0 {
		budget = defaultTextBudget
	}
	return &UnifiedChecker{
		base:        base{name: UnifiedAIName, settings: settings},
		analyzer:    analyzer,
		clock:       clock,
		logger:      logger,
		profile:     settings.Profile,
		typo:        settings.CheckEnabled(typoSubCheck),
		ngWord:      settings.CheckEnabled(ngWordSubCheck),
		consistency: settings.CheckEnabled(consistencySubCheck),
		textBudget:  budget,
	}
}

// Enabled is false when the checker or all of its sub-checks are switched off.
func (c *UnifiedChecker) Enabled() bool {
	return c.base.Enabled() && (c.typo || c.ngWord || c.consistency)
}

// Check implements audit.Checker. Analyzer failures are logged and cost only the AI
// review; the GA4 result is still returned.
func (c *UnifiedChecker) Check(ctx context.Context, page audit.Page) ([]audit.CheckResult, error) {
	var results []audit.CheckResult
	if c.consistency {
		if res, ok := c.checkGA4(page); ok {
			results = append(results, res)
		}
	}

	if c.analyzer == nil {
		metrics.ObserveAIRequest("unavailable")
		return append(results, c.unavailable(page)), nil
	}
	reply, err := c.analyzer.Generate(ctx, c.prompt(page))
	switch {
	case errors.Is(err, audit.ErrAnalyzerUnavailable):
		metrics.ObserveAIRequest("unavailable")
		return append(results, c.unavailable(page)), nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analyze %s: %w", page.URL, ctxErr)
		}
		metrics.ObserveAIRequest("error")
		c.logger.Warn("text analysis failed", zap.String("url", page.URL), zap.Error(err))
		return results, nil
	}
	metrics.ObserveAIRequest("ok")

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.Contains(reply, noIssuesSentinel) {
		return results, nil
	}
	return append(results, audit.CheckResult{
		PageURL:   page.URL,
		CheckName: aiCheckName,
		Status:    audit.StatusWarning,
		Details:   reply,
		Severity:  audit.SeverityMedium,
	}), nil
}

func (c *UnifiedChecker) unavailable(page audit.Page) audit.CheckResult {
	return audit.CheckResult{
		PageURL:   page.URL,
		CheckName: aiCheckName,
		Status:    audit.StatusWarning,
		Details:   "AI分析が利用できないため、誤字脱字・NG表現・整合性のチェックを実行できませんでした（APIキーを確認してください）",
		Severity:  audit.SeverityMedium,
	}
}

// checkGA4 looks for measurement IDs in the raw markup and compares them with the master data.
func (c *UnifiedChecker) checkGA4(page audit.Page) (audit.CheckResult, bool) {
	want := masterValue(c.profile.MasterData, ga4MasterKey)
	if want == "" {
		return audit.CheckResult{}, false
	}
	found := uniqueOrdered(ga4Pattern.FindAllString(page.HTML, -1))
	if len(found) == 0 {
		return audit.CheckResult{
			PageURL:   page.URL,
			CheckName: ga4CheckName,
			Status:    audit.StatusError,
			Details:   fmt.Sprintf("★ マスターデータに指定されたGA4コード（%s）がソース内に見つかりません。", want),
			Severity:  audit.SeverityHigh,
		}, true
	}
	for _, id := range found {
		if id == want {
			return audit.CheckResult{}, false
		}
	}
	return audit.CheckResult{
		PageURL:   page.URL,
		CheckName: ga4CheckName,
		Status:    audit.StatusError,
		Details: fmt.Sprintf("★ 検出されたGA4コード（%s）が、マスターデータ（%s）と一致しません。",
			strings.Join(found, ", "), want),
		Severity: audit.SeverityCritical,
	}, true
}

// masterValue matches keys case-insensitively; configuration loaders lowercase map keys.
func masterValue(master map[string]string, key string) string {
	if v, ok := master[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range master {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (c *UnifiedChecker) prompt(page audit.Page) string {
	now := time.Now()
	if c.clock != nil {
		now = c.clock.Now()
	}

	var instructions []string
	if c.typo {
		instructions = append(instructions, fmt.Sprintf(
			"1. **誤字脱字・不自然な表現**: 文脈の誤り、タイプミス、不自然な言い回し、日付の矛盾（現在は%d年）。", now.Year()))
	}
	if c.ngWord {
		rules := make([]string, 0, len(c.profile.NGRules))
		for _, r := range c.profile.NGRules {
			rules = append(rules, fmt.Sprintf("- %s ⇒ %s", r.Bad, r.Good))
		}
		instructions = append(instructions,
			"2. **NG表現**: 以下のリストに該当する（またはその変形、活用形）表現を検出。\n"+strings.Join(rules, "\n"))
	}
	if c.consistency {
		instructions = append(instructions,
			"3. **詳細情報の整合性**: 医院名（統一性）、郵便番号・電話番号（半角推奨）、所在地住所（全角推奨）、診療時間、経歴の矛盾。")
	}

	master := c.profile.MasterData
	if master == nil {
		master = map[string]string{}
	}

	var b strings.Builder
	b.WriteString("あなたは歯科Webサイト制作と校正の専門家です。\n")
	fmt.Fprintf(&b, "【重要】本日は **%s** です。現在は **%d年** であることを認識して精査してください。\n",
		now.Format("2006年01月02日"), now.Year())
	b.WriteString("以下の【ページ情報】を精査し、指定された【チェック項目】に基づき不備を指摘してください。\n\n")
	b.WriteString("【ページ情報】\n")
	fmt.Fprintf(&b, "URL: %s\n", page.URL)
	fmt.Fprintf(&b, "Meta情報: %s\n", prettyJSON(extractMetadata(page.Doc)))
	fmt.Fprintf(&b, "本文（抜粋）:\n%s\n\n", truncateRunes(page.Text, c.textBudget))
	fmt.Fprintf(&b, "【マスターデータ (比較用)】\n%s\n\n", prettyJSON(master))
	fmt.Fprintf(&b, "【チェック項目】\n%s\n\n", strings.Join(instructions, "\n"))
	b.WriteString(`【出力形式：厳守】
- 指摘がある場合のみ、以下の形式で出力してください。
- 複数の指摘がある場合は、間に必ず【空行】を1行入れてください。
- 行頭は必ず「★」で始めてください。
- 各指摘の冒頭に [項目名] を付けてください（[誤字脱字], [NG表現], [整合性] 等）。
- 挨拶や前置きは【絶対に】含めないでください。

形式例：
★ [誤字脱字]: 「該当箇所」 → 正: 「修正案（理由）」
★ [NG表現]: 該当箇所 ⇒ 正しい表現
★ [整合性]: 「該当箇所」 ⇒ 指摘理由と修正案

不備がない場合は「問題なし」とだけ回答してください。`)
	return b.String()
}
