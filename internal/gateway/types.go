package gateway

import (
	"context"
	"time"
)

// Kind tags which variant of a remote result is populated.
type Kind int

// Result variants.
const (
	// KindFound carries a recognised success payload.
	KindFound Kind = iota
	// KindNotFound is the platform's 404 answer.
	KindNotFound
	// KindFailed is any other status or an unparseable payload.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not_found"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Avatar is one size variant of a blog avatar.
type Avatar struct {
	Width  int
	Height int
	URL    string
}

// BlogInfo is the blog metadata payload.
type BlogInfo struct {
	Name        string
	Title       string
	Description string
	URL         string
	Avatars     []Avatar
	PostCount   int
	UpdatedAt   time.Time
}

// AvatarURL returns the URL of the variant with the given height, or "".
func (b BlogInfo) AvatarURL(height int) string {
	for _, a := range b.Avatars {
		if a.Height == height {
			return a.URL
		}
	}
	return ""
}

// BlogInfoResult is Found(Blog) | NotFound | Failed(StatusCode).
type BlogInfoResult struct {
	Kind       Kind
	Blog       BlogInfo
	StatusCode int
	Message    string
}

// FoundBlog builds a success result.
func FoundBlog(info BlogInfo) BlogInfoResult {
	return BlogInfoResult{Kind: KindFound, Blog: info, StatusCode: 200}
}

// BlogNotFound builds the 404 result.
func BlogNotFound() BlogInfoResult {
	return BlogInfoResult{Kind: KindNotFound, StatusCode: 404}
}

// BlogFailed builds an unclassified failure.
func BlogFailed(status int, msg string) BlogInfoResult {
	return BlogInfoResult{Kind: KindFailed, StatusCode: status, Message: msg}
}

// Note is an engagement record attached to a post. BlogName may be empty.
type Note struct {
	Type     string
	BlogName string
}

// Post is the subset of a post used for frontier expansion.
type Post struct {
	ID       string
	BlogName string
	Notes    []Note
}

// PostsResult is Found(Posts) | NotFound | Failed(StatusCode).
type PostsResult struct {
	Kind       Kind
	Posts      []Post
	StatusCode int
	Message    string
}

// FoundPosts builds a success result.
func FoundPosts(posts []Post) PostsResult {
	return PostsResult{Kind: KindFound, Posts: posts, StatusCode: 200}
}

// PostsNotFound builds the 404 result.
func PostsNotFound() PostsResult {
	return PostsResult{Kind: KindNotFound, StatusCode: 404}
}

// PostsFailed builds an unclassified failure.
func PostsFailed(status int, msg string) PostsResult {
	return PostsResult{Kind: KindFailed, StatusCode: status, Message: msg}
}

// Client is the remote API transport. Errors are reserved for calls that could
// not complete; any HTTP answer maps to a result Kind.
type Client interface {
	BlogInfo(ctx context.Context, name string) (BlogInfoResult, error)
	Posts(ctx context.Context, name string, limit, offset int) (PostsResult, error)
}
