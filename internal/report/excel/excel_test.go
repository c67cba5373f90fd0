package excel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

func sampleResults() []audit.CheckResult {
	return []audit.CheckResult{
		{PageURL: "https://clinic.example.jp/", CheckName: "リンク切れ", Status: audit.StatusOK, Details: "3個のリンクをチェック、問題なし", Severity: audit.SeverityMedium},
		{PageURL: "https://clinic.example.jp/", CheckName: "電話番号", Status: audit.StatusWarning, Details: "電話番号が見つかりませんでした", Severity: audit.SeverityMedium},
		{PageURL: "https://clinic.example.jp/access", CheckName: "GA4設定", Status: audit.StatusError, Details: "★ 不一致", Severity: audit.SeverityCritical},
	}
}

func TestRenderWritesRows(t *testing.T) {
	t.Parallel()

	// Arrange
	var buf bytes.Buffer

	// Act
	err := Render(&buf, sampleResults())

	// Assert
	require.NoError(t, err)
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"No", "ページ", "チェック項目", "結果", "詳細", "重要度"}, rows[0])
	require.Equal(t, []string{"1", "https://clinic.example.jp/", "リンク切れ", "✅", "3個のリンクをチェック、問題なし", "medium"}, rows[1])
	require.Equal(t, "⚠️", rows[2][3])
	require.Equal(t, "❌", rows[3][3])
	require.Equal(t, "critical", rows[3][5])
}

func TestBuildStylesAndWidths(t *testing.T) {
	t.Parallel()

	f, err := Build(sampleResults())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	width, err := f.GetColWidth(SheetName, "E")
	require.NoError(t, err)
	require.InDelta(t, 60, width, 0.01)
	width, err = f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	require.InDelta(t, 8, width, 0.01)

	headerStyle := cellStyle(t, f, "A1")
	require.True(t, headerStyle.Font.Bold)
	require.Equal(t, "FFFFFF", rgb(headerStyle.Font.Color))
	require.Equal(t, "4472C4", fillColor(headerStyle))
	require.Equal(t, "center", headerStyle.Alignment.Horizontal)

	require.Equal(t, "C6EFCE", fillColor(cellStyle(t, f, "D2")))
	require.Equal(t, "FFEB9C", fillColor(cellStyle(t, f, "D3")))
	require.Equal(t, "FFC7CE", fillColor(cellStyle(t, f, "D4")))

	detail := cellStyle(t, f, "E4")
	require.True(t, detail.Alignment.WrapText)
	require.Equal(t, "top", detail.Alignment.Vertical)
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestPopulateFailsWithoutDefaultSheet(t *testing.T) {
	t.Parallel()

	// Arrange
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	require.NoError(t, f.SetSheetName("Sheet1", "Other"))

	// Act
	err := populate(f, []audit.CheckResult{{PageURL: "https://a.example/", Status: audit.StatusOK}})

	// Assert
	require.ErrorContains(t, err, "rename sheet")
}

func TestFileName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "さくら歯科チェック結果.xlsx", FileName(" さくら歯科 "))
	require.Equal(t, "A_B歯科チェック結果.xlsx", FileName("A/B歯科"))
}

func cellStyle(t *testing.T, f *excelize.File, cell string) *excelize.Style {
	t.Helper()
	id, err := f.GetCellStyle(SheetName, cell)
	require.NoError(t, err)
	style, err := f.GetStyle(id)
	require.NoError(t, err)
	return style
}

// rgb drops an alpha prefix so ARGB and RGB spellings compare equal.
func rgb(color string) string {
	if len(color) == 8 {
		return color[2:]
	}
	return color
}

func fillColor(style *excelize.Style) string {
	if len(style.Fill.Color) == 0 {
		return ""
	}
	return rgb(style.Fill.Color[0])
}
