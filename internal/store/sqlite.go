package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteTable = "tracked_posts"

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists tracked posts in a local SQLite table with the same
// row contract as the Sheets backend. The seq column is the stable row
// index handed back through Row.Index.
type SQLiteStore struct {
	db     *sqlx.DB
	schema *Schema
}

// NewSQLite opens (or creates) the database file. Use ":memory:" for an
// ephemeral store.
func NewSQLite(path string, schema *Schema) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db, schema: schema}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureHeader(ctx context.Context) (bool, error) {
	var existing []string
	err := s.db.SelectContext(ctx, &existing,
		"SELECT name FROM pragma_table_info(?) WHERE name != 'seq' ORDER BY cid", sqliteTable)
	if err != nil {
		return false, fmt.Errorf("sqlite: inspect table: %w", err)
	}

	if len(existing) > 0 {
		if err := s.schema.Validate(existing); err != nil {
			return false, fmt.Errorf("sqlite: %w", err)
		}
		return false, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n    seq INTEGER PRIMARY KEY AUTOINCREMENT", sqliteTable)
	for _, col := range s.schema.Columns() {
		fmt.Fprintf(&b, ",\n    %s TEXT NOT NULL DEFAULT ''", col)
	}
	b.WriteString("\n)")

	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return false, fmt.Errorf("sqlite: create table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("CREATE UNIQUE INDEX idx_%s_post_id ON %s(post_id)", sqliteTable, sqliteTable)); err != nil {
		return false, fmt.Errorf("sqlite: create index: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Identities(ctx context.Context) (map[string]bool, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		fmt.Sprintf("SELECT post_id FROM %s WHERE post_id != ''", sqliteTable))
	if err != nil {
		return nil, fmt.Errorf("sqlite: read identities: %w", err)
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (s *SQLiteStore) AppendRow(ctx context.Context, row []string) error {
	cols := s.schema.Columns()
	if len(row) != len(cols) {
		return fmt.Errorf("sqlite: row has %d cells, want %d", len(row), len(cols))
	}

	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqliteTable,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: append row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadRows(ctx context.Context) ([]Row, error) {
	cols := s.schema.Columns()
	query := fmt.Sprintf("SELECT seq, %s FROM %s ORDER BY seq",
		strings.Join(cols, ", "), sqliteTable)

	raw, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read rows: %w", err)
	}
	defer raw.Close()

	var rows []Row
	for raw.Next() {
		vals, err := raw.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}
		seq, ok := vals[0].(int64)
		if !ok {
			return nil, fmt.Errorf("sqlite: seq is %T, want int64", vals[0])
		}
		cells := make([]string, len(vals)-1)
		for i, v := range vals[1:] {
			cells[i] = cellString(v)
		}
		rows = append(rows, Row{Index: int(seq), Cells: cells})
	}
	if err := raw.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read rows: %w", err)
	}
	return rows, nil
}

func cellString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (s *SQLiteStore) WriteCells(ctx context.Context, rowIndex int, updates map[int]string) error {
	if len(updates) == 0 {
		return nil
	}
	cols := s.schema.Columns()

	offsets := make([]int, 0, len(updates))
	for off := range updates {
		if off < 0 || off >= len(cols) {
			return fmt.Errorf("sqlite: column offset %d out of range", off)
		}
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	sets := make([]string, 0, len(offsets))
	args := make([]any, 0, len(offsets)+1)
	for _, off := range offsets {
		sets = append(sets, cols[off]+" = ?")
		args = append(args, updates[off])
	}
	args = append(args, rowIndex)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE seq = ?", sqliteTable, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: write cells row %d: %w", rowIndex, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: write cells: row %d not found", rowIndex)
	}
	return nil
}
