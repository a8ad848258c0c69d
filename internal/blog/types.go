// Package blog defines the tracked-blog model, its lifecycle, and the persistence
// contracts shared across subsystems.
package blog

import (
	"math"
	"time"
)

// State is the lifecycle state of a tracked blog.
type State string

// Lifecycle states persisted in the registry.
const (
	StateEnabled   State = "enabled"
	StateDisabled  State = "disabled"
	StatePotential State = "potential"
	StateNotFound  State = "not_found"
)

// ParseState converts a persisted or user-supplied value into a State.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateEnabled, StateDisabled, StatePotential, StateNotFound:
		return State(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no transition may leave the state.
func (s State) Terminal() bool {
	return s == StateNotFound
}

// Metadata holds the display fields reported by the platform.
type Metadata struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	URL         string `json:"url" yaml:"url"`
	AvatarURL   string `json:"avatar_url" yaml:"avatar_url"`
}

// Record is the registry row for one blog, keyed by Name.
type Record struct {
	Name string `json:"name" yaml:"name"`
	// Meta is nil until the first successful fetch and always nil for StateNotFound.
	Meta  *Metadata `json:"meta,omitempty" yaml:"meta,omitempty"`
	State State     `json:"state" yaml:"state"`
	// PostCount is the last known total number of posts on the blog.
	PostCount int `json:"post_count" yaml:"post_count"`
	// LastPostSeen counts posts already processed by discovery.
	LastPostSeen int `json:"last_post_seen" yaml:"last_post_seen"`
	// UpdatedAt is the blog's own last content update; zero when unknown.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	// LastVisitedAt is when this system last fetched the blog.
	LastVisitedAt time.Time `json:"last_visited_at" yaml:"last_visited_at"`
	AgeHours      int       `json:"age_hours" yaml:"age_hours"`
}

// NotFound builds the terminal record for a blog the platform does not know.
func NotFound(name string, visitedAt time.Time) Record {
	return Record{
		Name:          name,
		State:         StateNotFound,
		LastVisitedAt: visitedAt,
	}
}

// AgeHours returns the whole hours elapsed between a blog's last update and
// the visit that observed it.
func AgeHours(updatedAt, visitedAt time.Time) int {
	if updatedAt.IsZero() || visitedAt.IsZero() {
		return 0
	}
	return int(math.Floor(visitedAt.Sub(updatedAt).Hours()))
}

// Operation tags a remote call in the ledger.
type Operation string

// Remote operations issued through the gateway.
const (
	OpBlogInfo Operation = "blog_info"
	OpPosts    Operation = "posts"
)

// CallRecord is one append-only ledger row.
type CallRecord struct {
	ID             string
	Timestamp      time.Time
	Operation      Operation
	Quantity       int
	DurationMicros int64
}
