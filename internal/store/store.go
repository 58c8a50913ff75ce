package store

import (
	"context"
)

// Row is one tracked record as persisted, with the backend's stable row
// index attached. The index is whatever WriteCells expects back.
type Row struct {
	Index int
	Cells []string
}

// Get returns the cell at offset, or "" when the row is shorter than the
// schema (sheets trim trailing empty cells).
func (r Row) Get(offset int) string {
	if offset < 0 || offset >= len(r.Cells) {
		return ""
	}
	return r.Cells[offset]
}

// Store is the tabular persistence interface. Backends hold no tracking
// logic; they move rows and cells and nothing else.
type Store interface {
	// EnsureHeader creates the header if the table is empty, otherwise
	// validates it against the schema. Returns true if it was created.
	EnsureHeader(ctx context.Context) (bool, error)
	// Identities returns the set of post_ids currently in the table.
	Identities(ctx context.Context) (map[string]bool, error)
	// AppendRow appends one full row. len(row) must equal the schema width.
	AppendRow(ctx context.Context, row []string) error
	// ReadRows returns all data rows in insertion order.
	ReadRows(ctx context.Context) ([]Row, error)
	// WriteCells writes the given offset->value cells of one row together.
	WriteCells(ctx context.Context, rowIndex int, updates map[int]string) error

	Close() error
}
