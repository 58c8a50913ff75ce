// Package tracker is the tracking state machine: it discovers new posts,
// assigns each one daily observation slots, and walks every record from
// active to done. All temporal and idempotency logic lives here; the store
// and feed adapters stay dumb.
package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkoster/subtrack/internal/store"
	"github.com/mkoster/subtrack/pkg/feed"
)

// Options configures a Tracker.
type Options struct {
	Subreddit    string
	FetchLimit   int
	StoreBody    bool
	BodyMaxChars int
	// Location is the reference time zone for calendar-day arithmetic.
	Location *time.Location
	// Now is the clock; defaults to time.Now. Tests drive the calendar
	// through it.
	Now    func() time.Time
	Logger zerolog.Logger
}

// Tracker runs the two phases over one shared table.
type Tracker struct {
	store        store.Store
	feed         feed.Client
	schema       *store.Schema
	subreddit    string
	fetchLimit   int
	storeBody    bool
	bodyMaxChars int
	loc          *time.Location
	now          func() time.Time
	log          zerolog.Logger
}

func New(st store.Store, fc feed.Client, schema *store.Schema, opts Options) *Tracker {
	t := &Tracker{
		store:        st,
		feed:         fc,
		schema:       schema,
		subreddit:    opts.Subreddit,
		fetchLimit:   opts.FetchLimit,
		storeBody:    opts.StoreBody,
		bodyMaxChars: opts.BodyMaxChars,
		loc:          opts.Location,
		now:          opts.Now,
		log:          opts.Logger,
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Poll fetches the newest posts and appends the ones not already tracked.
// Dedup is re-evaluated against a fresh identity read every run, so a crash
// mid-phase is healed by the next invocation. Returns the count appended.
func (t *Tracker) Poll(ctx context.Context) (int, error) {
	if _, err := t.store.EnsureHeader(ctx); err != nil {
		return 0, err
	}

	existing, err := t.store.Identities(ctx)
	if err != nil {
		return 0, err
	}

	posts, err := t.feed.FetchNewest(ctx, t.subreddit, t.fetchLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch newest r/%s: %w", t.subreddit, err)
	}

	added := 0
	for _, post := range posts {
		if existing[post.ID] {
			continue
		}
		if err := t.store.AppendRow(ctx, t.newRow(post, t.now())); err != nil {
			return added, err
		}
		t.log.Debug().Str("post_id", post.ID).Msg("tracking new post")
		added++
	}

	t.log.Info().Int("added", added).Int("fetched", len(posts)).Msg("poll complete")
	return added, nil
}

// ObserveResult are the per-phase counts Observe reports.
type ObserveResult struct {
	Updated int // slots filled
	Done    int // records whose window closed
	Failed  int // records marked error:<kind> this run
}

// Observe scans every non-terminal record and, where a daily slot is due,
// snapshots the post's current counters into it. A record whose observation
// window has elapsed is marked done without a fetch; slots missed in between
// are not backfilled. Each record is independent: a fetch failure is recorded
// as error:<kind> on that row and the scan moves on. Store write failures
// abort the phase.
func (t *Tracker) Observe(ctx context.Context) (ObserveResult, error) {
	var res ObserveResult

	if _, err := t.store.EnsureHeader(ctx); err != nil {
		return res, err
	}

	rows, err := t.store.ReadRows(ctx)
	if err != nil {
		return res, err
	}

	for _, row := range rows {
		status := strings.ToLower(strings.TrimSpace(row.Get(t.schema.Status())))
		if terminalStatus(status) {
			continue
		}

		postID := strings.TrimSpace(row.Get(store.ColPostID))
		insertedCell := strings.TrimSpace(row.Get(store.ColInsertedUTC))
		if postID == "" || insertedCell == "" {
			continue
		}

		inserted, err := parseTime(insertedCell)
		if err != nil {
			t.log.Warn().Str("post_id", postID).Err(err).Msg("skipping row with bad inserted_utc")
			continue
		}

		now := t.now()
		day := daysBetween(inserted, now, t.loc)
		switch {
		case day < 1:
			// Inserted today; slot 1 becomes due tomorrow.
			continue

		case day > t.schema.TrackDays:
			updates := map[int]string{
				t.schema.Status():      StatusDone,
				t.schema.LastChecked(): formatTime(now),
			}
			if err := t.store.WriteCells(ctx, row.Index, updates); err != nil {
				return res, err
			}
			t.log.Debug().Str("post_id", postID).Msg("window closed")
			res.Done++

		default:
			// Idempotent: a slot with both cells filled is never rewritten.
			if strings.TrimSpace(row.Get(t.schema.DayScore(day))) != "" &&
				strings.TrimSpace(row.Get(t.schema.DayComments(day))) != "" {
				continue
			}

			post, ferr := t.feed.FetchByID(ctx, postID)
			if ferr != nil {
				kind := feed.ErrorKind(ferr)
				t.log.Warn().Str("post_id", postID).Str("kind", kind).Err(ferr).
					Msg("observation fetch failed")
				updates := map[int]string{
					t.schema.LastChecked(): formatTime(now),
					t.schema.Status():      errorStatus(kind),
				}
				if err := t.store.WriteCells(ctx, row.Index, updates); err != nil {
					return res, err
				}
				res.Failed++
				continue
			}

			updates := map[int]string{
				t.schema.DayScore(day):    strconv.Itoa(post.Score),
				t.schema.DayComments(day): strconv.Itoa(post.Comments),
				t.schema.LastChecked():    formatTime(now),
				t.schema.Status():         StatusActive,
			}
			if err := t.store.WriteCells(ctx, row.Index, updates); err != nil {
				return res, err
			}
			t.log.Debug().Str("post_id", postID).Int("day", day).
				Int("score", post.Score).Int("comments", post.Comments).Msg("slot filled")
			res.Updated++
		}
	}

	t.log.Info().Int("updated", res.Updated).Int("done", res.Done).
		Int("failed", res.Failed).Msg("observe complete")
	return res, nil
}
