package store

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var _ Store = (*SheetsStore)(nil)

// SheetsStore persists tracked posts in one worksheet of a Google
// spreadsheet, authenticated as a service account.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	schema        *Schema
}

// SheetsOptions configures the Sheets backend. Exactly one of
// CredentialsFile / CredentialsJSON must be set.
type SheetsOptions struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
	CredentialsJSON string
}

// NewSheets opens the worksheet. It performs no reads; EnsureHeader does the
// first round trip.
func NewSheets(ctx context.Context, schema *Schema, opts SheetsOptions) (*SheetsStore, error) {
	var cred option.ClientOption
	switch {
	case opts.CredentialsJSON != "":
		cred = option.WithCredentialsJSON([]byte(opts.CredentialsJSON))
	case opts.CredentialsFile != "":
		cred = option.WithCredentialsFile(opts.CredentialsFile)
	default:
		return nil, fmt.Errorf("sheets: no service account credentials configured")
	}

	svc, err := sheets.NewService(ctx, cred, option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}

	return &SheetsStore{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		worksheet:     opts.Worksheet,
		schema:        schema,
	}, nil
}

func (s *SheetsStore) Close() error { return nil }

func (s *SheetsStore) EnsureHeader(ctx context.Context) (bool, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, s.rangeName("1:1")).
		Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("sheets: read header: %w", err)
	}

	if len(resp.Values) > 0 {
		header := make([]string, len(resp.Values[0]))
		for i, v := range resp.Values[0] {
			header[i] = fmt.Sprint(v)
		}
		if err := s.schema.Validate(header); err != nil {
			return false, fmt.Errorf("sheets: %w", err)
		}
		return false, nil
	}

	if err := s.append(ctx, s.schema.Columns()); err != nil {
		return false, fmt.Errorf("sheets: write header: %w", err)
	}
	return true, nil
}

func (s *SheetsStore) Identities(ctx context.Context) (map[string]bool, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, s.rangeName("A2:A")).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read identities: %w", err)
	}

	ids := make(map[string]bool, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := fmt.Sprint(row[0]); id != "" {
			ids[id] = true
		}
	}
	return ids, nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, row []string) error {
	if len(row) != s.schema.NumCols() {
		return fmt.Errorf("sheets: row has %d cells, want %d", len(row), s.schema.NumCols())
	}
	if err := s.append(ctx, row); err != nil {
		return fmt.Errorf("sheets: append row: %w", err)
	}
	return nil
}

func (s *SheetsStore) ReadRows(ctx context.Context) ([]Row, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, s.worksheet).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read rows: %w", err)
	}
	if len(resp.Values) <= 1 {
		return nil, nil
	}

	rows := make([]Row, 0, len(resp.Values)-1)
	for i, raw := range resp.Values[1:] {
		cells := make([]string, len(raw))
		for j, v := range raw {
			cells[j] = fmt.Sprint(v)
		}
		// Sheet rows are 1-based and row 1 is the header.
		rows = append(rows, Row{Index: i + 2, Cells: cells})
	}
	return rows, nil
}

func (s *SheetsStore) WriteCells(ctx context.Context, rowIndex int, updates map[int]string) error {
	if len(updates) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, 0, len(updates))
	for offset, value := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  s.rangeName(fmt.Sprintf("%s%d", colLetter(offset), rowIndex)),
			Values: [][]any{{value}},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	if _, err := s.svc.Spreadsheets.Values.
		BatchUpdate(s.spreadsheetID, req).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: write cells row %d: %w", rowIndex, err)
	}
	return nil
}

func (s *SheetsStore) append(ctx context.Context, row []string) error {
	cells := make([]any, len(row))
	for i, v := range row {
		cells[i] = v
	}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.worksheet, &sheets.ValueRange{Values: [][]any{cells}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return err
}

func (s *SheetsStore) rangeName(ref string) string {
	return fmt.Sprintf("'%s'!%s", s.worksheet, ref)
}

// colLetter converts a zero-based column offset to A1 notation (0=A, 26=AA).
func colLetter(offset int) string {
	name := ""
	n := offset
	for {
		name = string(rune('A'+n%26)) + name
		n = n/26 - 1
		if n < 0 {
			return name
		}
	}
}
