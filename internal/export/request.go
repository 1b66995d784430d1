package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrMissingJSON   = errors.New("JSON mancante")
	ErrMissingSheets = errors.New("'sheets' mancante o vuoto")
)

// Sheet is one worksheet as sent by the client: a title and its rows.
// Cell values are strings, json.Number, bools or nil.
type Sheet struct {
	Name string
	Rows [][]any
}

type Request struct {
	Sheets   []Sheet
	Filename string
}

type requestBody struct {
	Sheets   json.RawMessage `json:"sheets"`
	Filename string          `json:"filename"`
}

// ParseRequest decodes {"sheets": {...}, "filename": "..."}. The filename
// is sanitized and defaults to monthly_data_{year}.xlsx.
func ParseRequest(data []byte, now time.Time) (Request, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Request{}, ErrMissingJSON
	}
	var body requestBody
	if err := json.Unmarshal(data, &body); err != nil {
		return Request{}, ErrMissingJSON
	}
	sheets, err := DecodeSheets(body.Sheets)
	if err != nil {
		return Request{}, err
	}
	name := strings.TrimSpace(body.Filename)
	if name == "" {
		name = DefaultFilename(now)
	}
	return Request{Sheets: sheets, Filename: SecureFilename(name)}, nil
}

// DecodeSheets reads a JSON object of sheet name to rows, keeping the
// order the keys appear in.
func DecodeSheets(raw json.RawMessage) ([]Sheet, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrMissingSheets
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, ErrMissingSheets
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrMissingSheets
	}

	var sheets []Sheet
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("sheets: %w", err)
		}
		name, _ := tok.(string)
		var rows []json.RawMessage
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("sheet %q: rows must be an array of arrays", name)
		}
		sheet := Sheet{Name: name, Rows: make([][]any, 0, len(rows))}
		for i, rawRow := range rows {
			row, err := decodeRow(rawRow)
			if err != nil {
				return nil, fmt.Errorf("sheet %q row %d: %w", name, i+1, err)
			}
			sheet.Rows = append(sheet.Rows, row)
		}
		if idx, dup := seen[name]; dup {
			sheets[idx] = sheet
			continue
		}
		seen[name] = len(sheets)
		sheets = append(sheets, sheet)
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("sheets: %w", err)
	}
	if len(sheets) == 0 {
		return nil, ErrMissingSheets
	}
	return sheets, nil
}

func decodeRow(raw json.RawMessage) ([]any, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row []any
	if err := dec.Decode(&row); err != nil {
		return nil, errors.New("row must be an array")
	}
	return row, nil
}
