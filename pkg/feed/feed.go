package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Post is the standardized view of a subreddit submission.
type Post struct {
	ID        string
	Title     string
	Author    string
	Permalink string
	CreatedAt time.Time
	IsSelf    bool
	Body      string
	Score     int
	Comments  int
}

// Client is the interface the tracker uses to talk to the feed.
type Client interface {
	// FetchNewest returns up to limit of the newest posts in the subreddit.
	FetchNewest(ctx context.Context, subreddit string, limit int) ([]Post, error)
	// FetchByID returns the current state of a single post.
	FetchByID(ctx context.Context, postID string) (*Post, error)
}

// Error wraps a fetch failure with a short kind tag. The tag is what the
// tracker records on a row's status (error:network, error:http_429, ...).
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "feed: " + e.Kind
	}
	return fmt.Sprintf("feed: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Error kinds.
const (
	KindAuth     = "auth"
	KindNetwork  = "network"
	KindDecode   = "decode"
	KindNotFound = "not_found"
)

// KindHTTP tags a non-200 response by its status code.
func KindHTTP(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// ErrorKind extracts the kind tag from err, falling back to "fetch" for
// errors that did not come from a feed client.
func ErrorKind(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return "fetch"
}
