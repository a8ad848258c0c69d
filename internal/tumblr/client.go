// Package tumblr implements gateway.Client against the Tumblr v2 REST API.
package tumblr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/gateway"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.tumblr.com/v2"

const maxBodyBytes = 8 << 20

// ErrInvalidName is returned for blog names that cannot be a single path segment.
var ErrInvalidName = errors.New("tumblr: invalid blog name")

// Config configures the API client.
type Config struct {
	BaseURL string
	// APIKey is the OAuth consumer key, sent as the api_key query parameter.
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the Tumblr API over HTTP.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	apiKey    string
	userAgent string
	logger    *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tumblr: api key is required")
	}
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   base,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}, nil
}

type meta struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

type envelope struct {
	Meta     meta            `json:"meta"`
	Response json.RawMessage `json:"response"`
}

type avatarPayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

type blogPayload struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
	Posts       int             `json:"posts"`
	Updated     int64           `json:"updated"`
	Avatar      []avatarPayload `json:"avatar"`
}

type notePayload struct {
	Type     string `json:"type"`
	BlogName string `json:"blog_name"`
}

type postPayload struct {
	IDString string        `json:"id_string"`
	BlogName string        `json:"blog_name"`
	Notes    []notePayload `json:"notes"`
}

type blogInfoResponse struct {
	Blog *blogPayload `json:"blog"`
}

type postsResponse struct {
	Posts *[]postPayload `json:"posts"`
}

// BlogInfo fetches /blog/{name}/info.
func (c *Client) BlogInfo(ctx context.Context, name string) (gateway.BlogInfoResult, error) {
	status, env, err := c.get(ctx, name, "info", nil)
	if err != nil {
		return gateway.BlogInfoResult{}, err
	}
	switch {
	case status == http.StatusNotFound:
		return gateway.BlogNotFound(), nil
	case status < 200 || status > 299:
		return gateway.BlogFailed(status, failureMessage(env)), nil
	}

	var body blogInfoResponse
	if env == nil || json.Unmarshal(env.Response, &body) != nil || body.Blog == nil {
		c.logger.Warn("Unrecognized blog info payload", zap.String("blog", name), zap.Int("status_code", status))
		return gateway.BlogFailed(status, "malformed blog info payload"), nil
	}
	return gateway.FoundBlog(toBlogInfo(*body.Blog)), nil
}

// Posts fetches /blog/{name}/posts with notes and reblog info.
func (c *Client) Posts(ctx context.Context, name string, limit, offset int) (gateway.PostsResult, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("notes_info", "true")
	q.Set("reblog_info", "true")
	status, env, err := c.get(ctx, name, "posts", q)
	if err != nil {
		return gateway.PostsResult{}, err
	}
	switch {
	case status == http.StatusNotFound:
		return gateway.PostsNotFound(), nil
	case status < 200 || status > 299:
		return gateway.PostsFailed(status, failureMessage(env)), nil
	}

	var body postsResponse
	if env == nil || json.Unmarshal(env.Response, &body) != nil || body.Posts == nil {
		c.logger.Warn("Unrecognized posts payload", zap.String("blog", name), zap.Int("status_code", status))
		return gateway.PostsFailed(status, "malformed posts payload"), nil
	}
	posts := make([]gateway.Post, 0, len(*body.Posts))
	for _, p := range *body.Posts {
		post := gateway.Post{ID: p.IDString, BlogName: p.BlogName}
		for _, n := range p.Notes {
			post.Notes = append(post.Notes, gateway.Note{Type: n.Type, BlogName: n.BlogName})
		}
		posts = append(posts, post)
	}
	return gateway.FoundPosts(posts), nil
}

// get requests /blog/{name}/{endpoint} and returns the HTTP status with the
// decoded envelope. A body that is not an envelope yields a nil envelope, not an error.
func (c *Client) get(ctx context.Context, name, endpoint string, q url.Values) (int, *envelope, error) {
	if name == "" || name == "." || name == ".." {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	path := "/blog/" + name + "/" + endpoint
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawPath = c.baseURL.EscapedPath() + "/blog/" + url.PathEscape(name) + "/" + endpoint
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("Failed to close response body", zap.Error(cerr))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, &env, nil
}

func failureMessage(env *envelope) string {
	if env == nil {
		return "unparseable error payload"
	}
	return env.Meta.Msg
}

func toBlogInfo(p blogPayload) gateway.BlogInfo {
	info := gateway.BlogInfo{
		Name:        p.Name,
		Title:       p.Title,
		Description: p.Description,
		URL:         p.URL,
		PostCount:   p.Posts,
	}
	if p.Updated > 0 {
		info.UpdatedAt = time.Unix(p.Updated, 0).UTC()
	}
	for _, a := range p.Avatar {
		info.Avatars = append(info.Avatars, gateway.Avatar{Width: a.Width, Height: a.Height, URL: a.URL})
	}
	return info
}
