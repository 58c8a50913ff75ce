package store

import (
	"fmt"
)

// Fixed column offsets. The static columns come first, then two columns per
// tracked day, then the trailing bookkeeping pair.
const (
	ColPostID = iota
	ColSubreddit
	ColTitle
	ColAuthor
	ColPermalink
	ColCreatedUTC
	ColInsertedUTC
	ColIsSelf
	ColBody
	ColInitialScore
	ColInitialComments

	numStaticCols
)

// Schema is the enumerated column layout of the tracking table, generated
// once from the configured number of tracked days and validated against the
// persisted header at startup.
type Schema struct {
	TrackDays int
	columns   []string
}

// NewSchema builds the layout for trackDays daily slots.
func NewSchema(trackDays int) *Schema {
	cols := []string{
		"post_id",
		"subreddit",
		"title",
		"author",
		"permalink",
		"created_utc",
		"inserted_utc",
		"is_self",
		"body",
		"initial_score",
		"initial_comments",
	}
	for d := 1; d <= trackDays; d++ {
		cols = append(cols, fmt.Sprintf("day%d_score", d), fmt.Sprintf("day%d_comments", d))
	}
	cols = append(cols, "last_checked_utc", "status")
	return &Schema{TrackDays: trackDays, columns: cols}
}

// Columns returns the full ordered header.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// NumCols returns the total column count.
func (s *Schema) NumCols() int { return len(s.columns) }

// DayScore returns the offset of the score cell for day (1-based).
func (s *Schema) DayScore(day int) int { return numStaticCols + 2*(day-1) }

// DayComments returns the offset of the comment-count cell for day (1-based).
func (s *Schema) DayComments(day int) int { return numStaticCols + 2*(day-1) + 1 }

// LastChecked returns the offset of the last_checked_utc cell.
func (s *Schema) LastChecked() int { return len(s.columns) - 2 }

// Status returns the offset of the status cell.
func (s *Schema) Status() int { return len(s.columns) - 1 }

// Validate checks a persisted header against the expected layout. Any
// mismatch aborts startup rather than risking writes to the wrong cells.
func (s *Schema) Validate(header []string) error {
	if len(header) != len(s.columns) {
		return fmt.Errorf("header has %d columns, want %d (is TRACK_DAYS consistent with the table?)",
			len(header), len(s.columns))
	}
	for i, name := range s.columns {
		if header[i] != name {
			return fmt.Errorf("header column %d is %q, want %q", i, header[i], name)
		}
	}
	return nil
}
