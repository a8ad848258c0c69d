package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/gateway"
	"github.com/JakeFAU/tuml/internal/metrics"
)

// Remote is the subset of the gateway the engine uses.
type Remote interface {
	FetchBlogInfo(ctx context.Context, name string) (gateway.BlogInfoResult, error)
	FetchPosts(ctx context.Context, name string, limit, offset int) (gateway.PostsResult, error)
}

// Config tunes discovery.
type Config struct {
	// PostsPerBlog is how many recent posts frontier expansion reads per enabled blog.
	PostsPerBlog int
	// AvatarHeight selects the avatar variant stored on the record.
	AvatarHeight int
}

// Result describes what a single-blog operation did.
type Result struct {
	Name string
	// Previous is empty when the record did not exist.
	Previous blog.State
	// State is empty when the operation yields no record.
	State   blog.State
	Outcome blog.Outcome
	Created bool
	// Fetched reports whether a remote call was issued.
	Fetched bool
	// Failed marks an unclassified remote error; StatusCode is 0 for transport failures.
	Failed     bool
	StatusCode int
}

// BatchReport summarises a batch operation.
type BatchReport struct {
	Visited    int `json:"visited" yaml:"visited"`
	Refreshed  int `json:"refreshed" yaml:"refreshed"`
	Vanished   int `json:"vanished" yaml:"vanished"`
	Discovered int `json:"discovered" yaml:"discovered"`
	Failed     int `json:"failed" yaml:"failed"`
}

func (r BatchReport) add(o BatchReport) BatchReport {
	return BatchReport{
		Visited:    r.Visited + o.Visited,
		Refreshed:  r.Refreshed + o.Refreshed,
		Vanished:   r.Vanished + o.Vanished,
		Discovered: r.Discovered + o.Discovered,
		Failed:     r.Failed + o.Failed,
	}
}

// Engine orchestrates the registry and the remote gateway.
type Engine struct {
	registry blog.Registry
	remote   Remote
	clock    blog.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(registry blog.Registry, remote Remote, clock blog.Clock, cfg Config, logger *zap.Logger) *Engine {
	if cfg.PostsPerBlog <= 0 {
		cfg.PostsPerBlog = 1
	}
	if cfg.AvatarHeight <= 0 {
		cfg.AvatarHeight = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		remote:   remote,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Enable tracks a blog as ENABLED, fetching it first if it is unknown.
func (e *Engine) Enable(ctx context.Context, name string) (Result, error) {
	return e.applyOrCreate(ctx, name, blog.EventEnable, blog.StateEnabled)
}

// Disable moves a tracked blog to DISABLED. Unknown names are left alone.
func (e *Engine) Disable(ctx context.Context, name string) (Result, error) {
	rec, err := e.registry.Get(ctx, name)
	if errors.Is(err, blog.ErrNotFound) {
		e.logger.Info("Blog is not tracked; nothing to disable", zap.String("blog", name))
		return Result{Name: name, Outcome: blog.Unchanged}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load blog %q: %w", name, err)
	}
	return e.apply(ctx, rec, blog.EventDisable)
}

// DiscoverPotential records an unknown blog as POTENTIAL. Existing records, in
// any state, are never touched and cost no remote call.
func (e *Engine) DiscoverPotential(ctx context.Context, name string) (Result, error) {
	return e.applyOrCreate(ctx, name, blog.EventDiscover, blog.StatePotential)
}

func (e *Engine) applyOrCreate(ctx context.Context, name string, event blog.Event, initial blog.State) (Result, error) {
	rec, err := e.registry.Get(ctx, name)
	switch {
	case err == nil:
		return e.apply(ctx, rec, event)
	case errors.Is(err, blog.ErrNotFound):
		return e.create(ctx, name, initial)
	default:
		return Result{}, fmt.Errorf("load blog %q: %w", name, err)
	}
}

func (e *Engine) apply(ctx context.Context, rec blog.Record, event blog.Event) (Result, error) {
	next, outcome := blog.Transition(rec.State, event)
	res := Result{Name: rec.Name, Previous: rec.State, State: next, Outcome: outcome}
	log := e.logger.With(zap.String("blog", rec.Name), zap.String("event", string(event)))

	switch outcome {
	case blog.Rejected:
		log.Info("Blog is marked as terminal; ignoring", zap.String("state", string(rec.State)))
	case blog.Unchanged:
		if event == blog.EventDiscover {
			log.Debug("Blog already tracked", zap.String("state", string(rec.State)))
		} else {
			log.Info("Blog is already in requested state", zap.String("state", string(rec.State)))
		}
	case blog.Changed:
		rec.State = next
		if err := e.registry.Save(ctx, rec); err != nil {
			return Result{}, fmt.Errorf("save blog %q: %w", rec.Name, err)
		}
		metrics.ObserveTransition(string(res.Previous), string(next))
		log.Info("Blog state changed",
			zap.String("from", string(res.Previous)),
			zap.String("to", string(next)),
		)
	}
	return res, nil
}

func (e *Engine) create(ctx context.Context, name string, initial blog.State) (Result, error) {
	info, err := e.remote.FetchBlogInfo(ctx, name)
	if err != nil {
		if errors.Is(err, gateway.ErrTransport) {
			e.logger.Warn("Failed to retrieve blog", zap.String("blog", name), zap.Error(err))
			return Result{Name: name, Fetched: true, Failed: true}, nil
		}
		return Result{}, err
	}

	now := e.clock.Now().UTC()
	var rec blog.Record
	switch info.Kind {
	case gateway.KindFound:
		rec = blog.Record{Name: name, State: initial}
		e.applyInfo(&rec, info.Blog, now)
	case gateway.KindNotFound:
		rec = blog.NotFound(name, now)
	default:
		e.logger.Warn("Error occurred while retrieving blog",
			zap.String("blog", name),
			zap.Int("status_code", info.StatusCode),
			zap.String("message", info.Message),
		)
		return Result{Name: name, Fetched: true, Failed: true, StatusCode: info.StatusCode}, nil
	}

	if err := e.registry.Create(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("create blog %q: %w", name, err)
	}
	metrics.ObserveTransition("", string(rec.State))
	e.logger.Info("Blog saved", zap.String("blog", name), zap.String("state", string(rec.State)))
	return Result{
		Name:       name,
		State:      rec.State,
		Outcome:    blog.Changed,
		Created:    true,
		Fetched:    true,
		StatusCode: info.StatusCode,
	}, nil
}

func (e *Engine) applyInfo(rec *blog.Record, info gateway.BlogInfo, now time.Time) {
	rec.Meta = &blog.Metadata{
		Title:       info.Title,
		Description: info.Description,
		URL:         info.URL,
		AvatarURL:   info.AvatarURL(e.cfg.AvatarHeight),
	}
	rec.PostCount = info.PostCount
	rec.UpdatedAt = info.UpdatedAt
	rec.LastVisitedAt = now
	rec.AgeHours = blog.AgeHours(info.UpdatedAt, now)
}
