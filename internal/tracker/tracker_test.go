package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoster/subtrack/internal/store"
	"github.com/mkoster/subtrack/pkg/feed"
)

// memStore is an in-memory store.Store for driving the state machine.
type memStore struct {
	schema    *store.Schema
	rows      [][]string
	hasHeader bool
}

var _ store.Store = (*memStore)(nil)

func newMemStore(schema *store.Schema) *memStore {
	return &memStore{schema: schema}
}

func (m *memStore) EnsureHeader(ctx context.Context) (bool, error) {
	if m.hasHeader {
		return false, nil
	}
	m.hasHeader = true
	return true, nil
}

func (m *memStore) Identities(ctx context.Context) (map[string]bool, error) {
	ids := make(map[string]bool)
	for _, row := range m.rows {
		if row[store.ColPostID] != "" {
			ids[row[store.ColPostID]] = true
		}
	}
	return ids, nil
}

func (m *memStore) AppendRow(ctx context.Context, row []string) error {
	if len(row) != m.schema.NumCols() {
		return fmt.Errorf("row has %d cells, want %d", len(row), m.schema.NumCols())
	}
	m.rows = append(m.rows, append([]string(nil), row...))
	return nil
}

func (m *memStore) ReadRows(ctx context.Context) ([]store.Row, error) {
	out := make([]store.Row, len(m.rows))
	for i, row := range m.rows {
		out[i] = store.Row{Index: i + 2, Cells: append([]string(nil), row...)}
	}
	return out, nil
}

func (m *memStore) WriteCells(ctx context.Context, rowIndex int, updates map[int]string) error {
	i := rowIndex - 2
	if i < 0 || i >= len(m.rows) {
		return fmt.Errorf("row %d not found", rowIndex)
	}
	for off, val := range updates {
		m.rows[i][off] = val
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) cell(rowOffset, col int) string { return m.rows[rowOffset][col] }

// fakeFeed is a feed.Client serving canned posts.
type fakeFeed struct {
	newest  []feed.Post
	byID    map[string]feed.Post
	failing map[string]error
	fetches int
}

func (f *fakeFeed) FetchNewest(ctx context.Context, subreddit string, limit int) ([]feed.Post, error) {
	return f.newest, nil
}

func (f *fakeFeed) FetchByID(ctx context.Context, postID string) (*feed.Post, error) {
	f.fetches++
	if err, ok := f.failing[postID]; ok {
		return nil, err
	}
	post, ok := f.byID[postID]
	if !ok {
		return nil, &feed.Error{Kind: feed.KindNotFound}
	}
	return &post, nil
}

type fixture struct {
	tracker *Tracker
	store   *memStore
	feed    *fakeFeed
	schema  *store.Schema
	now     time.Time
}

func newFixture(t *testing.T, trackDays int) *fixture {
	t.Helper()
	schema := store.NewSchema(trackDays)
	fx := &fixture{
		store:  newMemStore(schema),
		feed:   &fakeFeed{byID: make(map[string]feed.Post), failing: make(map[string]error)},
		schema: schema,
	}
	fx.tracker = New(fx.store, fx.feed, schema, Options{
		Subreddit:    "golang",
		FetchLimit:   50,
		StoreBody:    true,
		BodyMaxChars: 100,
		Now:          func() time.Time { return fx.now },
		Logger:       zerolog.Nop(),
	})
	return fx
}

func (fx *fixture) setDate(t *testing.T, date string) {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, date+"T10:30:00Z")
	require.NoError(t, err)
	fx.now = ts
}

func post(id string, score, comments int) feed.Post {
	return feed.Post{
		ID:        id,
		Title:     "title " + id,
		Author:    "someone",
		Permalink: "https://www.reddit.com/r/golang/comments/" + id,
		CreatedAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		IsSelf:    true,
		Body:      "body " + id,
		Score:     score,
		Comments:  comments,
	}
}

func TestPoll_AppendsOnlyNewPosts(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2), post("bbb", 5, 0)}

	added, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	require.Len(t, fx.store.rows, 2)

	assert.Equal(t, "aaa", fx.store.cell(0, store.ColPostID))
	assert.Equal(t, "golang", fx.store.cell(0, store.ColSubreddit))
	assert.Equal(t, "10", fx.store.cell(0, store.ColInitialScore))
	assert.Equal(t, "2", fx.store.cell(0, store.ColInitialComments))
	assert.Equal(t, "TRUE", fx.store.cell(0, store.ColIsSelf))
	assert.Equal(t, "2026-01-01T10:30:00Z", fx.store.cell(0, store.ColInsertedUTC))
	assert.Equal(t, StatusActive, fx.store.cell(0, fx.schema.Status()))
	assert.Equal(t, "", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, "", fx.store.cell(0, fx.schema.LastChecked()))
}

func TestPoll_DedupIdempotence(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2), post("bbb", 5, 0)}

	added, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// Unchanged feed: the second run appends nothing.
	added, err = fx.tracker.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, fx.store.rows, 2)

	// A new post among known ones appends exactly that one.
	fx.feed.newest = append(fx.feed.newest, post("ccc", 1, 1))
	added, err = fx.tracker.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Len(t, fx.store.rows, 3)
}

func TestObserve_SameDayIsNoOp(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)
	assert.Equal(t, 0, fx.feed.fetches)
	assert.Equal(t, "", fx.store.cell(0, fx.schema.DayScore(1)))
}

func TestObserve_FillsDueSlot(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.feed.byID["aaa"] = post("aaa", 42, 7)
	fx.setDate(t, "2026-01-02")
	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Updated: 1}, res)

	assert.Equal(t, "42", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, "7", fx.store.cell(0, fx.schema.DayComments(1)))
	assert.Equal(t, StatusActive, fx.store.cell(0, fx.schema.Status()))
	assert.Equal(t, "2026-01-02T10:30:00Z", fx.store.cell(0, fx.schema.LastChecked()))
}

func TestObserve_SecondRunSameDayFillsNothing(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.feed.byID["aaa"] = post("aaa", 42, 7)
	fx.setDate(t, "2026-01-02")
	_, err = fx.tracker.Observe(context.Background())
	require.NoError(t, err)

	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)
	assert.Equal(t, 1, fx.feed.fetches)
	assert.Equal(t, "", fx.store.cell(0, fx.schema.DayScore(2)))
}

func TestObserve_FilledSlotIsImmutable(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.feed.byID["aaa"] = post("aaa", 42, 7)
	fx.setDate(t, "2026-01-02")
	_, err = fx.tracker.Observe(context.Background())
	require.NoError(t, err)

	// Even with different live values, a filled slot never changes.
	fx.feed.byID["aaa"] = post("aaa", 9999, 9999)
	_, err = fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, "7", fx.store.cell(0, fx.schema.DayComments(1)))
}

func TestObserve_HalfFilledSlotIsRetried(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	// A slot with only one of its two cells written (outside interference
	// or a torn write) does not count as filled.
	fx.store.rows[0][fx.schema.DayScore(1)] = "42"

	fx.feed.byID["aaa"] = post("aaa", 50, 8)
	fx.setDate(t, "2026-01-02")
	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Updated: 1}, res)
	assert.Equal(t, "50", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, "8", fx.store.cell(0, fx.schema.DayComments(1)))
}

func TestObserve_WindowClosure(t *testing.T) {
	fx := newFixture(t, 3)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 10, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.setDate(t, "2026-01-05") // days_since = 4 > 3
	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Done: 1}, res)
	assert.Equal(t, 0, fx.feed.fetches, "window closure must not fetch counters")
	assert.Equal(t, StatusDone, fx.store.cell(0, fx.schema.Status()))
	assert.Equal(t, "2026-01-05T10:30:00Z", fx.store.cell(0, fx.schema.LastChecked()))

	// Terminal: later runs never touch the record again.
	fx.setDate(t, "2026-01-06")
	res, err = fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)
	assert.Equal(t, "2026-01-05T10:30:00Z", fx.store.cell(0, fx.schema.LastChecked()))
}

func TestObserve_ErrorIsolation(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 1, 1), post("bbb", 2, 2), post("ccc", 3, 3)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.feed.byID["aaa"] = post("aaa", 11, 1)
	fx.feed.byID["ccc"] = post("ccc", 33, 3)
	fx.feed.failing["bbb"] = &feed.Error{Kind: "http_429"}

	fx.setDate(t, "2026-01-02")
	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Updated: 2, Failed: 1}, res)

	assert.Equal(t, "11", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, "33", fx.store.cell(2, fx.schema.DayScore(1)))

	assert.Equal(t, "error:http_429", fx.store.cell(1, fx.schema.Status()))
	assert.Equal(t, "", fx.store.cell(1, fx.schema.DayScore(1)), "failed fetch must leave the slot empty")
	assert.Equal(t, "2026-01-02T10:30:00Z", fx.store.cell(1, fx.schema.LastChecked()))
}

func TestObserve_ErrorRowStaysEligible(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 1, 1)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.feed.failing["aaa"] = &feed.Error{Kind: feed.KindNetwork}
	fx.setDate(t, "2026-01-02")
	_, err = fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "error:network", fx.store.cell(0, fx.schema.Status()))

	// The failure clears; the same still-due slot fills on the next run.
	delete(fx.feed.failing, "aaa")
	fx.feed.byID["aaa"] = post("aaa", 15, 4)
	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Updated: 1}, res)
	assert.Equal(t, "15", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, StatusActive, fx.store.cell(0, fx.schema.Status()))
}

func TestObserve_ReservedTerminalStatusesSkipped(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 1, 1), post("bbb", 2, 2)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.store.rows[0][fx.schema.Status()] = StatusRemoved
	fx.store.rows[1][fx.schema.Status()] = StatusDeleted

	fx.setDate(t, "2026-01-02")
	res, err := fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)
	assert.Equal(t, 0, fx.feed.fetches)
}

func TestObserve_NonFeedErrorTaggedAsFetch(t *testing.T) {
	fx := newFixture(t, 7)
	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("aaa", 1, 1)}
	_, err := fx.tracker.Poll(context.Background())
	require.NoError(t, err)

	fx.feed.failing["aaa"] = fmt.Errorf("boom")
	fx.setDate(t, "2026-01-02")
	_, err = fx.tracker.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "error:fetch", fx.store.cell(0, fx.schema.Status()))
}

// The full lifecycle from the tracking contract: discover on Jan 1 with a
// 3-day window, observe across the window with a missed run, close out.
func TestLifecycle_ThreeDayWindow(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 3)

	fx.setDate(t, "2026-01-01")
	fx.feed.newest = []feed.Post{post("ppp", 5, 1)}
	added, err := fx.tracker.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, StatusActive, fx.store.cell(0, fx.schema.Status()))

	// Same day: too soon.
	res, err := fx.tracker.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)

	// Day 1.
	fx.feed.byID["ppp"] = post("ppp", 20, 3)
	fx.setDate(t, "2026-01-02")
	res, err = fx.tracker.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Updated: 1}, res)
	assert.Equal(t, "20", fx.store.cell(0, fx.schema.DayScore(1)))
	assert.Equal(t, StatusActive, fx.store.cell(0, fx.schema.Status()))

	// Day 1 again: no-op.
	res, err = fx.tracker.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)

	// Days 2 and 3 are missed entirely; on day 4 the window has elapsed.
	// The missed slots stay empty, no fetch happens, the record is done.
	fx.setDate(t, "2026-01-05")
	fetchesBefore := fx.feed.fetches
	res, err = fx.tracker.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{Done: 1}, res)
	assert.Equal(t, fetchesBefore, fx.feed.fetches)
	assert.Equal(t, StatusDone, fx.store.cell(0, fx.schema.Status()))
	assert.Equal(t, "", fx.store.cell(0, fx.schema.DayScore(2)))
	assert.Equal(t, "", fx.store.cell(0, fx.schema.DayScore(3)))

	// And repeated runs afterward are no-ops.
	fx.setDate(t, "2026-01-09")
	res, err = fx.tracker.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObserveResult{}, res)
}
