package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/gateway"
	"github.com/JakeFAU/tuml/internal/metrics"
)

// RefreshEnabled re-fetches every ENABLED blog and updates its counters. A blog
// the platform no longer knows becomes NOT_FOUND.
func (e *Engine) RefreshEnabled(ctx context.Context) (BatchReport, error) {
	var report BatchReport
	recs, err := e.registry.ListByState(ctx, blog.StateEnabled)
	if err != nil {
		return report, fmt.Errorf("list enabled blogs: %w", err)
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("refresh: %w", err)
		}
		report.Visited++

		info, err := e.remote.FetchBlogInfo(ctx, rec.Name)
		if err != nil {
			if errors.Is(err, gateway.ErrTransport) {
				e.logger.Warn("Failed to refresh blog", zap.String("blog", rec.Name), zap.Error(err))
				report.Failed++
				continue
			}
			return report, err
		}

		now := e.clock.Now().UTC()
		switch info.Kind {
		case gateway.KindFound:
			e.applyInfo(&rec, info.Blog, now)
			if err := e.registry.Save(ctx, rec); err != nil {
				return report, fmt.Errorf("save blog %q: %w", rec.Name, err)
			}
			report.Refreshed++
			e.logger.Debug("Blog refreshed",
				zap.String("blog", rec.Name),
				zap.Int("post_count", rec.PostCount),
				zap.Int("age_hours", rec.AgeHours),
			)
		case gateway.KindNotFound:
			next, outcome := blog.Transition(rec.State, blog.EventVanish)
			if outcome != blog.Changed {
				continue
			}
			gone := blog.NotFound(rec.Name, now)
			if err := e.registry.Save(ctx, gone); err != nil {
				return report, fmt.Errorf("save blog %q: %w", rec.Name, err)
			}
			metrics.ObserveTransition(string(rec.State), string(next))
			report.Vanished++
			e.logger.Info("Blog no longer exists", zap.String("blog", rec.Name))
		default:
			report.Failed++
			e.logger.Warn("Error occurred while refreshing blog",
				zap.String("blog", rec.Name),
				zap.Int("status_code", info.StatusCode),
				zap.String("message", info.Message),
			)
		}
	}
	return report, nil
}

// ExpandFrontier reads the latest posts of every ENABLED blog and records each
// blog named in their notes as POTENTIAL.
func (e *Engine) ExpandFrontier(ctx context.Context) (BatchReport, error) {
	var report BatchReport
	recs, err := e.registry.ListByState(ctx, blog.StateEnabled)
	if err != nil {
		return report, fmt.Errorf("list enabled blogs: %w", err)
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("expand frontier: %w", err)
		}
		report.Visited++

		posts, err := e.remote.FetchPosts(ctx, rec.Name, e.cfg.PostsPerBlog, 0)
		if err != nil {
			if errors.Is(err, gateway.ErrTransport) {
				e.logger.Warn("Failed to fetch posts", zap.String("blog", rec.Name), zap.Error(err))
				report.Failed++
				continue
			}
			return report, err
		}
		switch posts.Kind {
		case gateway.KindFound:
		case gateway.KindNotFound:
			// Left to RefreshEnabled, which owns the NOT_FOUND transition.
			e.logger.Info("Posts not found for blog", zap.String("blog", rec.Name))
			continue
		default:
			report.Failed++
			e.logger.Warn("Error occurred while fetching posts",
				zap.String("blog", rec.Name),
				zap.Int("status_code", posts.StatusCode),
				zap.String("message", posts.Message),
			)
			continue
		}

		for _, post := range posts.Posts {
			for _, note := range post.Notes {
				if note.BlogName == "" || note.BlogName == rec.Name {
					continue
				}
				res, err := e.DiscoverPotential(ctx, note.BlogName)
				if err != nil {
					return report, err
				}
				switch {
				case res.Created && res.State == blog.StatePotential:
					report.Discovered++
				case res.Failed:
					report.Failed++
				}
			}
		}
	}
	return report, nil
}

// Update refreshes enabled blogs and then expands the frontier.
func (e *Engine) Update(ctx context.Context) (BatchReport, error) {
	refreshed, err := e.RefreshEnabled(ctx)
	if err != nil {
		return refreshed, err
	}
	expanded, err := e.ExpandFrontier(ctx)
	total := refreshed.add(expanded)
	if err != nil {
		return total, err
	}
	e.logger.Info("Update finished",
		zap.Int("visited", total.Visited),
		zap.Int("refreshed", total.Refreshed),
		zap.Int("vanished", total.Vanished),
		zap.Int("discovered", total.Discovered),
		zap.Int("failed", total.Failed),
	)
	return total, nil
}
