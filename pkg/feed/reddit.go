package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	tokenURL = "https://www.reddit.com/api/v1/access_token"
	apiBase  = "https://oauth.reddit.com"
)

var _ Client = (*Reddit)(nil)

// Reddit is a Client backed by the Reddit OAuth API using the
// client-credentials (script app) grant.
type Reddit struct {
	client       *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	baseURL      string
	authURL      string
	mu           sync.Mutex
	token        string
	tokenExpiry  time.Time
}

// NewReddit creates a Reddit client. userAgent is required by the Reddit API
// and should identify the deployment.
func NewReddit(clientID, clientSecret, userAgent string) *Reddit {
	return &Reddit{
		client:       &http.Client{Timeout: 30 * time.Second},
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		baseURL:      apiBase,
		authURL:      tokenURL,
	}
}

func (r *Reddit) FetchNewest(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	reqURL := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", r.baseURL, subreddit, limit)
	listing, err := r.getListing(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data.toPost())
	}
	return posts, nil
}

func (r *Reddit) FetchByID(ctx context.Context, postID string) (*Post, error) {
	reqURL := fmt.Sprintf("%s/api/info.json?id=t3_%s&raw_json=1", r.baseURL, url.QueryEscape(postID))
	listing, err := r.getListing(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	if len(listing.Data.Children) == 0 {
		return nil, &Error{Kind: KindNotFound, Err: fmt.Errorf("post %s not in listing", postID)}
	}
	post := listing.Data.Children[0].Data.toPost()
	return &post, nil
}

func (r *Reddit) getListing(ctx context.Context, reqURL string) (*redditListing, error) {
	if err := r.authenticate(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &Error{Kind: KindNotFound, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindHTTP(resp.StatusCode), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	return &listing, nil
}

func (r *Reddit) authenticate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return &Error{Kind: KindAuth, Err: err}
	}

	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return &Error{Kind: KindAuth, Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindAuth, Err: fmt.Errorf("token status %d", resp.StatusCode)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return &Error{Kind: KindAuth, Err: fmt.Errorf("decode token: %w", err)}
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
}

func (p redditPost) toPost() Post {
	return Post{
		ID:        p.ID,
		Title:     p.Title,
		Author:    p.Author,
		Permalink: "https://www.reddit.com" + p.Permalink,
		CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		IsSelf:    p.IsSelf,
		Body:      p.Selftext,
		Score:     p.Score,
		Comments:  p.NumComments,
	}
}
