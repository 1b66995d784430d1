package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
)

var MonthsIT = [12]string{"Gen", "Feb", "Mar", "Apr", "Mag", "Giu", "Lug", "Ago", "Set", "Ott", "Nov", "Dic"}

const (
	maxSheetTitle  = 31
	firstColWidth  = 12
	minColWidth    = 10
	maxColWidth    = 30
	colPadding     = 2
	upperCaseWidth = 1.2
	borderColor    = "D0D7E2"
	headerFill     = "EEF3FA"
	defaultSheet   = "Sheet1"
)

// OrderSheets puts month sheets first, starting at now's month and
// wrapping around the year, then every other sheet in request order.
func OrderSheets(sheets []Sheet, now time.Time) []Sheet {
	byName := make(map[string]Sheet, len(sheets))
	for _, s := range sheets {
		byName[s.Name] = s
	}
	ordered := make([]Sheet, 0, len(sheets))
	placed := make(map[string]bool, len(sheets))
	start := int(now.Month()) - 1
	for i := 0; i < len(MonthsIT); i++ {
		key := MonthsIT[(start+i)%len(MonthsIT)]
		if s, ok := byName[key]; ok {
			ordered = append(ordered, s)
			placed[key] = true
		}
	}
	for _, s := range sheets {
		if !placed[s.Name] {
			ordered = append(ordered, s)
			placed[s.Name] = true
		}
	}
	return ordered
}

// Build renders sheets into a styled workbook: centered bordered cells,
// a bold filled header row frozen at A2, fitted column widths and an
// autofilter over the used range.
func Build(sheets []Sheet, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	bodyStyle, err := f.NewStyle(cellStyle(false))
	if err != nil {
		return nil, err
	}
	headStyle, err := f.NewStyle(cellStyle(true))
	if err != nil {
		return nil, err
	}

	titles := make(map[string]bool)
	for _, sheet := range OrderSheets(sheets, now) {
		title := sheetTitle(sheet.Name)
		if titles[title] {
			continue
		}
		titles[title] = true
		if err := writeSheet(f, title, sheet.Rows, bodyStyle, headStyle); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", title, err)
		}
	}
	if len(titles) == 0 {
		return nil, ErrMissingSheets
	}
	if !titles[defaultSheet] {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	ok = true
	return f, nil
}

// Render builds the workbook and returns the xlsx bytes.
func Render(sheets []Sheet, now time.Time) ([]byte, error) {
	f, err := Build(sheets, now)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, title string, rows [][]any, bodyStyle, headStyle int) error {
	if title != defaultSheet {
		if _, err := f.NewSheet(title); err != nil {
			return err
		}
	}

	lastCol := 1
	for _, row := range rows {
		lastCol = max(lastCol, len(row))
	}
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(title, cell, cellValue(value)); err != nil {
				return err
			}
			style := bodyStyle
			if r == 0 {
				style = headStyle
			}
			if err := f.SetCellStyle(title, cell, cell, style); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(title, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	for c := 1; c <= lastCol; c++ {
		col, err := excelize.ColumnNumberToName(c)
		if err != nil {
			return err
		}
		width := float64(firstColWidth)
		if c > 1 {
			values := make([]any, 0, len(rows))
			for _, row := range rows {
				if c-1 < len(row) {
					values = append(values, row[c-1])
				}
			}
			width = float64(BestColWidth(values))
		}
		if err := f.SetColWidth(title, col, col, width); err != nil {
			return err
		}
	}

	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(lastCol, len(rows))
	if err != nil {
		return err
	}
	return f.AutoFilter(title, "A1:"+last, nil)
}

// BestColWidth sizes a column from its longest value, counting upper-case
// letters as 1.2 characters, clamped to [10, 30].
func BestColWidth(values []any) int {
	maxLen := 0.0
	for _, v := range values {
		if v == nil {
			continue
		}
		length := 0.0
		for _, r := range displayString(v) {
			if unicode.IsUpper(r) {
				length += upperCaseWidth
			} else {
				length++
			}
		}
		maxLen = max(maxLen, length)
	}
	return max(minColWidth, min(maxColWidth, int(maxLen+colPadding)))
}

func sheetTitle(name string) string {
	runes := []rune(name)
	if len(runes) > maxSheetTitle {
		runes = runes[:maxSheetTitle]
	}
	if len(runes) == 0 {
		return defaultSheet
	}
	return string(runes)
}

func cellValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if fl, err := n.Float64(); err == nil {
		return fl
	}
	return n.String()
}

func displayString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func cellStyle(header bool) *excelize.Style {
	style := &excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: borderColor, Style: 1},
			{Type: "right", Color: borderColor, Style: 1},
			{Type: "top", Color: borderColor, Style: 1},
			{Type: "bottom", Color: borderColor, Style: 1},
		},
	}
	if header {
		style.Font = &excelize.Font{Bold: true}
		style.Fill = excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1}
	}
	return style
}
