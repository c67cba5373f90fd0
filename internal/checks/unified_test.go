package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

var auditDay = fixedClock{now: time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)}

const ga4Page = `<html><head><title>さくら歯科</title>
<meta name="description" content="福井の歯医者">
<meta property="og:title" content="さくら歯科 | 福井">
<script async src="https://www.googletagmanager.com/gtag/js?id=G-ABC12345"></script>
<script type="application/ld+json">{"@type":"Dentist","name":"さくら歯科"}</script>
</head><body><img src="a.jpg" alt="院内の様子"><p>診療時間 9:00-18:00</p></body></html>`

func unifiedSettings(master map[string]string, disabled ...string) config.Config {
	cfg := config.Config{Checks: map[string]config.CheckConfig{}}
	for _, name := range disabled {
		cfg.Checks[name] = config.CheckConfig{Enabled: boolPtr(false)}
	}
	return cfg.WithProfile(audit.Profile{
		MasterData: master,
		NGRules:    []audit.NGRule{{Bad: "歯医者さん", Good: "歯科医院"}},
	})
}

func TestUnifiedCheckerGA4(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		html         string
		master       string
		wantSeverity audit.Severity
		wantDetail   string
	}{
		{name: "matching id", html: ga4Page, master: "G-ABC12345"},
		{
			name:         "missing id",
			html:         `<html><body>no tag</body></html>`,
			master:       "G-ABC12345",
			wantSeverity: audit.SeverityHigh,
			wantDetail:   "★ マスターデータに指定されたGA4コード（G-ABC12345）がソース内に見つかりません。",
		},
		{
			name:         "different id",
			html:         ga4Page,
			master:       "G-ZZZ99999",
			wantSeverity: audit.SeverityCritical,
			wantDetail:   "★ 検出されたGA4コード（G-ABC12345）が、マスターデータ（G-ZZZ99999）と一致しません。",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			analyzer := new(MockAnalyzer)
			analyzer.On("Generate", mock.Anything, mock.Anything).Return("問題なし", nil)
			checker := NewUnifiedChecker(unifiedSettings(map[string]string{"GA4コード": tt.master}), analyzer, auditDay, zap.NewNop())
			page := newPage(t, "https://clinic.example.jp/", tt.html)

			// Act
			results, err := checker.Check(context.Background(), page)

			// Assert
			require.NoError(t, err)
			if tt.wantDetail == "" {
				require.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			require.Equal(t, "GA4設定", results[0].CheckName)
			require.Equal(t, audit.StatusError, results[0].Status)
			require.Equal(t, tt.wantSeverity, results[0].Severity)
			require.Equal(t, tt.wantDetail, results[0].Details)
			analyzer.AssertExpectations(t)
		})
	}
}

func TestUnifiedCheckerGA4LowercasedKey(t *testing.T) {
	t.Parallel()

	analyzer := new(MockAnalyzer)
	analyzer.On("Generate", mock.Anything, mock.Anything).Return("", nil)
	checker := NewUnifiedChecker(unifiedSettings(map[string]string{"ga4コード": "G-ZZZ99999"}), analyzer, auditDay, nil)

	results, err := checker.Check(context.Background(), newPage(t, "https://clinic.example.jp/", ga4Page))

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, audit.SeverityCritical, results[0].Severity)
}

func TestUnifiedCheckerSkipsGA4WhenConsistencyDisabled(t *testing.T) {
	t.Parallel()

	analyzer := new(MockAnalyzer)
	analyzer.On("Generate", mock.Anything, mock.Anything).Return("問題なし", nil)
	settings := unifiedSettings(map[string]string{"GA4コード": "G-ZZZ99999"}, "consistency_check")
	checker := NewUnifiedChecker(settings, analyzer, auditDay, nil)

	results, err := checker.Check(context.Background(), newPage(t, "https://clinic.example.jp/", ga4Page))

	require.NoError(t, err)
	require.Empty(t, results)
	prompt := analyzer.Calls[0].Arguments.String(1)
	require.NotContains(t, prompt, "詳細情報の整合性")
}

func TestUnifiedCheckerWrapsAnalyzerReply(t *testing.T) {
	t.Parallel()

	// Arrange
	reply := "★ [誤字脱字]: 「診僚時間」 → 正: 「診療時間」"
	analyzer := new(MockAnalyzer)
	analyzer.On("Generate", mock.Anything, mock.Anything).Return("\n"+reply+"\n", nil)
	checker := NewUnifiedChecker(unifiedSettings(nil), analyzer, auditDay, nil)

	// Act
	results, err := checker.Check(context.Background(), newPage(t, "https://clinic.example.jp/", ga4Page))

	// Assert
	require.NoError(t, err)
	require.Equal(t, []audit.CheckResult{{
		PageURL:   "https://clinic.example.jp/",
		CheckName: "AI統合チェック",
		Status:    audit.StatusWarning,
		Details:   reply,
		Severity:  audit.SeverityMedium,
	}}, results)
}

func TestUnifiedCheckerPromptContents(t *testing.T) {
	t.Parallel()

	// Arrange
	analyzer := new(MockAnalyzer)
	analyzer.On("Generate", mock.Anything, mock.Anything).Return("問題なし", nil)
	settings := unifiedSettings(map[string]string{"医院名": "さくら歯科"})
	settings.AI.TextBudget = 5
	checker := NewUnifiedChecker(settings, analyzer, auditDay, nil)

	// Act
	_, err := checker.Check(context.Background(), newPage(t, "https://clinic.example.jp/", ga4Page))

	// Assert
	require.NoError(t, err)
	prompt := analyzer.Calls[0].Arguments.String(1)
	require.Contains(t, prompt, "本日は **2026年03月04日** です")
	require.Contains(t, prompt, "URL: https://clinic.example.jp/")
	require.Contains(t, prompt, `"title": "さくら歯科"`)
	require.Contains(t, prompt, `"og:title": "さくら歯科 | 福井"`)
	require.Contains(t, prompt, `"alt": "院内の様子"`)
	require.Contains(t, prompt, `"@type": "Dentist"`)
	require.Contains(t, prompt, "本文（抜粋）:\nさくら歯科\n\n【マスターデータ")
	require.NotContains(t, prompt, "9:00")
	require.Contains(t, prompt, `"医院名": "さくら歯科"`)
	require.Contains(t, prompt, "- 歯医者さん ⇒ 歯科医院")
	require.True(t, strings.HasSuffix(prompt, "不備がない場合は「問題なし」とだけ回答してください。"))
}

func TestUnifiedCheckerDegradesWithoutAnalyzer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		analyzer audit.TextAnalyzer
	}{
		{name: "nil analyzer"},
		{name: "missing credential", analyzer: func() audit.TextAnalyzer {
			m := new(MockAnalyzer)
			m.On("Generate", mock.Anything, mock.Anything).Return("", audit.ErrAnalyzerUnavailable)
			return m
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewUnifiedChecker(unifiedSettings(map[string]string{"GA4コード": "G-ZZZ99999"}), tt.analyzer, auditDay, nil)

			results, err := checker.Check(context.Background(), newPage(t, "https://clinic.example.jp/", ga4Page))

			require.NoError(t, err)
			require.Len(t, results, 2)
			require.Equal(t, "GA4設定", results[0].CheckName)
			require.Equal(t, "AI統合チェック", results[1].CheckName)
			require.Equal(t, audit.StatusWarning, results[1].Status)
		})
	}
}

func TestUnifiedCheckerAnalyzerErrorKeepsGA4(t *testing.T) {
	t.Parallel()

	analyzer := new(MockAnalyzer)
	analyzer.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("upstream 529"))
	checker := NewUnifiedChecker(unifiedSettings(map[string]string{"GA4コード": "G-ZZZ99999"}), analyzer, auditDay, nil)

	results, err := checker.Check(context.Background(), newPage(t, "https://clinic.example.jp/", ga4Page))

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "GA4設定", results[0].CheckName)
}

func TestUnifiedCheckerEnabled(t *testing.T) {
	t.Parallel()

	allOff := unifiedSettings(nil, "typo_check", "ng_word_check", "consistency_check")
	require.False(t, NewUnifiedChecker(allOff, nil, auditDay, nil).Enabled())

	oneOn := unifiedSettings(nil, "typo_check", "ng_word_check")
	require.True(t, NewUnifiedChecker(oneOn, nil, auditDay, nil).Enabled())

	switchedOff := unifiedSettings(nil, "unifiedai_check")
	require.False(t, NewUnifiedChecker(switchedOff, nil, auditDay, nil).Enabled())
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "診療", truncateRunes("診療時間", 2))
	require.Equal(t, "abc", truncateRunes("abc", 10))
	require.Equal(t, "abc", truncateRunes("abc", 0))
}
