// Package excel renders audit results as an xlsx workbook.
package excel

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

// SheetName is the title of the single results sheet.
const SheetName = "チェック結果"

// ContentType is the media type of rendered reports.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type column struct {
	title string
	width float64
}

var columns = []column{
	{title: "No", width: 8},
	{title: "ページ", width: 40},
	{title: "チェック項目", width: 20},
	{title: "結果", width: 10},
	{title: "詳細", width: 60},
	{title: "重要度", width: 12},
}

const statusColumn = 4

var statusSymbols = map[audit.Status]string{
	audit.StatusOK:      "✅",
	audit.StatusWarning: "⚠️",
	audit.StatusError:   "❌",
}

var statusFills = map[audit.Status]string{
	audit.StatusOK:      "C6EFCE",
	audit.StatusWarning: "FFEB9C",
	audit.StatusError:   "FFC7CE",
}

// FileName is the download name for a clinic's report.
func FileName(clinicName string) string {
	name := strings.TrimSpace(clinicName)
	name = strings.NewReplacer("/", "_", "\\", "_", "\"", "_", "\n", "").Replace(name)
	return name + "チェック結果.xlsx"
}

// Render writes one row per result, in the given order, to w.
func Render(w io.Writer, results []audit.CheckResult) error {
	f, err := Build(results)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build returns the populated workbook. Callers own Close.
func Build(results []audit.CheckResult) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := populate(f, results); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func populate(f *excelize.File, results []audit.CheckResult) error {
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	styles, err := newStyleSet(f)
	if err != nil {
		return err
	}
	if err := writeHeader(f, styles.header); err != nil {
		return err
	}
	for i, res := range results {
		if err := writeRow(f, styles, i+1, res); err != nil {
			return err
		}
	}
	for i, col := range columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, col.width); err != nil {
			return fmt.Errorf("set width %s: %w", name, err)
		}
	}
	return nil
}

type styleSet struct {
	header int
	body   int
	status map[audit.Status]int
}

func newStyleSet(f *excelize.File) (styleSet, error) {
	set := styleSet{status: make(map[audit.Status]int, len(statusFills))}
	var err error
	set.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return set, fmt.Errorf("header style: %w", err)
	}
	body := &excelize.Alignment{Vertical: "top", WrapText: true}
	set.body, err = f.NewStyle(&excelize.Style{Alignment: body})
	if err != nil {
		return set, fmt.Errorf("body style: %w", err)
	}
	for status, color := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Alignment: body,
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return set, fmt.Errorf("%s style: %w", status, err)
		}
		set.status[status] = id
	}
	return set, nil
}

func writeHeader(f *excelize.File, style int) error {
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, col.title); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, styles styleSet, seq int, res audit.CheckResult) error {
	row := seq + 1
	symbol, ok := statusSymbols[res.Status]
	if !ok {
		symbol = string(res.Status)
	}
	values := []any{seq, res.PageURL, res.CheckName, symbol, res.Details, string(res.Severity)}
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("row cell: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, value); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
		style := styles.body
		if i+1 == statusColumn {
			if id, ok := styles.status[res.Status]; ok {
				style = id
			}
		}
		if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
			return fmt.Errorf("style %s: %w", cell, err)
		}
	}
	return nil
}
