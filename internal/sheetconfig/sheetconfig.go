// Package sheetconfig reads site profiles from the operator-maintained checklist workbook.
//
// Values are located by label: a cell whose text (newlines removed, trimmed) equals a
// known keyword holds the label, and the cell to its right holds the value.
package sheetconfig

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

// Sheet names used by the checklist workbook.
const (
	ChecklistSheet = "チェックリスト"
	PremiumSheet   = "プレミアムプラン用"
	NGWordSheet    = "NGワード"
)

// Label keywords.
const (
	KeyClinicName = "医院名"
	KeyURL        = "URL"
	KeyAddress    = "住所"
	KeyDirectors  = "院長名・副院長名"
	KeyPhone      = "電話番号"
	KeyHours      = "診療時間"
	KeyHonorific  = "敬称統一表記"
	KeyGA4        = "GA4コード"
)

// Keywords lists every label copied between sheets and exposed as master data.
var Keywords = []string{
	KeyClinicName, KeyURL, KeyAddress, KeyDirectors,
	KeyPhone, KeyHours, KeyHonorific, KeyGA4,
}

// ErrSheetMissing is returned when a required sheet is absent from the workbook.
var ErrSheetMissing = errors.New("sheet missing")

// Import reads a profile from the checklist sheet of the workbook in r.
func Import(r io.Reader) (audit.Profile, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return audit.Profile{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ProfileFrom(f)
}

// ImportFile is Import for a workbook on disk.
func ImportFile(path string) (audit.Profile, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return audit.Profile{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ProfileFrom(f)
}

// ProfileFrom extracts the profile from an open workbook.
func ProfileFrom(f *excelize.File) (audit.Profile, error) {
	rows, err := sheetRows(f, ChecklistSheet)
	if err != nil {
		return audit.Profile{}, err
	}
	profile := audit.Profile{MasterData: make(map[string]string)}
	for _, kw := range Keywords {
		loc, ok := findLabel(rows, kw)
		if !ok {
			continue
		}
		value := strings.TrimSpace(loc.value)
		if value == "" {
			continue
		}
		profile.MasterData[kw] = value
		switch kw {
		case KeyURL:
			profile.StartURL = value
		case KeyClinicName:
			profile.ClinicName = value
		case KeyPhone:
			profile.Phone = value
		}
	}

	rules, err := ngRules(f)
	if err != nil {
		return audit.Profile{}, err
	}
	profile.NGRules = rules
	return profile, nil
}

// Sync copies label values from the premium sheet onto the checklist sheet. Only
// non-empty source values whose label also exists on the checklist are written. It
// returns the number of values copied.
func Sync(f *excelize.File) (int, error) {
	src, err := sheetRows(f, PremiumSheet)
	if err != nil {
		return 0, err
	}
	dst, err := sheetRows(f, ChecklistSheet)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, kw := range Keywords {
		from, ok := findLabel(src, kw)
		if !ok || strings.TrimSpace(from.value) == "" {
			continue
		}
		to, ok := findLabel(dst, kw)
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(to.col+2, to.row+1)
		if err != nil {
			return copied, fmt.Errorf("locate %s: %w", kw, err)
		}
		if err := f.SetCellValue(ChecklistSheet, cell, from.value); err != nil {
			return copied, fmt.Errorf("write %s: %w", kw, err)
		}
		copied++
	}
	return copied, nil
}

// SyncFile runs Sync on the workbook at path and saves it in place.
func SyncFile(path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	copied, err := Sync(f)
	if err != nil {
		return copied, err
	}
	if err := f.Save(); err != nil {
		return copied, fmt.Errorf("save %s: %w", path, err)
	}
	return copied, nil
}

// labelCell is the zero-based position of a label and the text beside it.
type labelCell struct {
	row, col int
	value    string
}

func findLabel(rows [][]string, keyword string) (labelCell, bool) {
	for r, row := range rows {
		for c, text := range row {
			if normalizeLabel(text) != keyword {
				continue
			}
			loc := labelCell{row: r, col: c}
			if c+1 < len(row) {
				loc.value = row[c+1]
			}
			return loc, true
		}
	}
	return labelCell{}, false
}

func normalizeLabel(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", "")
	return strings.TrimSpace(text)
}

func sheetRows(f *excelize.File, sheet string) ([][]string, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetMissing, sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	return rows, nil
}

// ngRules reads the optional NG-word sheet: a header row, then bad/good pairs.
func ngRules(f *excelize.File) ([]audit.NGRule, error) {
	rows, err := sheetRows(f, NGWordSheet)
	if errors.Is(err, ErrSheetMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rules []audit.NGRule
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		bad := strings.TrimSpace(row[0])
		if bad == "" {
			continue
		}
		rule := audit.NGRule{Bad: bad}
		if len(row) > 1 {
			rule.Good = strings.TrimSpace(row[1])
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
