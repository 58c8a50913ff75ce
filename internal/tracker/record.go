package tracker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mkoster/subtrack/internal/store"
	"github.com/mkoster/subtrack/pkg/feed"
)

// Row status values. An observation failure is recorded as "error:<kind>";
// removed and deleted are reserved for operators, nothing sets them here.
const (
	StatusActive  = "active"
	StatusDone    = "done"
	StatusRemoved = "removed"
	StatusDeleted = "deleted"
)

func errorStatus(kind string) string { return "error:" + kind }

// terminalStatus reports whether a row is finished for good. error:* rows
// stay eligible so a transient fetch failure never strands a record.
func terminalStatus(status string) bool {
	switch status {
	case StatusDone, StatusRemoved, StatusDeleted:
		return true
	}
	return false
}

// All persisted timestamps use this exact form, UTC at second precision.
const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	// time.Parse is lenient (fractional seconds, short fields); only the
	// exact persisted form is valid.
	if t.Format(timeLayout) != s {
		return time.Time{}, fmt.Errorf("timestamp %q is not in %s form", s, timeLayout)
	}
	return t, nil
}

// newRow serializes a freshly discovered post into a full table row: static
// snapshot, initial counters, all slots empty, status active.
func (t *Tracker) newRow(post feed.Post, now time.Time) []string {
	row := make([]string, t.schema.NumCols())
	row[store.ColPostID] = post.ID
	row[store.ColSubreddit] = t.subreddit
	row[store.ColTitle] = post.Title
	row[store.ColAuthor] = post.Author
	row[store.ColPermalink] = post.Permalink
	row[store.ColCreatedUTC] = formatTime(post.CreatedAt)
	row[store.ColInsertedUTC] = formatTime(now)
	row[store.ColIsSelf] = boolCell(post.IsSelf)
	if t.storeBody {
		row[store.ColBody] = shorten(post.Body, t.bodyMaxChars)
	}
	row[store.ColInitialScore] = strconv.Itoa(post.Score)
	row[store.ColInitialComments] = strconv.Itoa(post.Comments)
	row[t.schema.Status()] = StatusActive
	return row
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// shorten caps text at max runes, replacing the tail with an ellipsis.
func shorten(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}
