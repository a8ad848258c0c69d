// Package gateway is the call-counted proxy over the remote API: every call is
// admitted by the quota governor and appended to the call ledger.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/id/uuid"
	"github.com/JakeFAU/tuml/internal/metrics"
)

var (
	// ErrAccounting wraps governor and ledger failures. Quota accounting cannot be
	// trusted after one, so callers must stop the run.
	ErrAccounting = errors.New("call accounting failed")
	// ErrTransport wraps remote calls that did not complete.
	ErrTransport = errors.New("remote call failed")
)

// Admitter blocks until another remote call is allowed.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Pacer smooths bursts per operation.
type Pacer interface {
	Wait(ctx context.Context, operation string) error
}

// Gateway wraps a Client with admission and call accounting.
type Gateway struct {
	client   Client
	governor Admitter
	ledger   blog.Ledger
	pacer    Pacer
	clock    blog.Clock
	ids      blog.IDGenerator
	logger   *zap.Logger
}

// New constructs a Gateway. pacer and ids are optional.
func New(
	client Client,
	governor Admitter,
	ledger blog.Ledger,
	pacer Pacer,
	clock blog.Clock,
	ids blog.IDGenerator,
	logger *zap.Logger,
) (*Gateway, error) {
	if client == nil || governor == nil || ledger == nil || clock == nil {
		return nil, errors.New("gateway: client, governor, ledger and clock are required")
	}
	if ids == nil {
		ids = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:   client,
		governor: governor,
		ledger:   ledger,
		pacer:    pacer,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}, nil
}

// FetchBlogInfo fetches blog metadata. It costs one unit of quota.
func (g *Gateway) FetchBlogInfo(ctx context.Context, name string) (BlogInfoResult, error) {
	var res BlogInfoResult
	err := g.invoke(ctx, blog.OpBlogInfo, 1, func(ctx context.Context) (Kind, error) {
		var err error
		res, err = g.client.BlogInfo(ctx, name)
		return res.Kind, err
	})
	if err != nil {
		return BlogInfoResult{}, err
	}
	return res, nil
}

// FetchPosts fetches the most recent posts of a blog. It costs limit units of quota.
func (g *Gateway) FetchPosts(ctx context.Context, name string, limit, offset int) (PostsResult, error) {
	var res PostsResult
	err := g.invoke(ctx, blog.OpPosts, limit, func(ctx context.Context) (Kind, error) {
		var err error
		res, err = g.client.Posts(ctx, name, limit, offset)
		return res.Kind, err
	})
	if err != nil {
		return PostsResult{}, err
	}
	return res, nil
}

func (g *Gateway) invoke(
	ctx context.Context,
	op blog.Operation,
	quantity int,
	call func(context.Context) (Kind, error),
) error {
	if err := g.governor.Admit(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("admit %s: %w", op, err)
		}
		return fmt.Errorf("%w: admit %s: %w", ErrAccounting, op, err)
	}
	if g.pacer != nil {
		if err := g.pacer.Wait(ctx, string(op)); err != nil {
			return fmt.Errorf("pace %s: %w", op, err)
		}
	}

	start := g.clock.Now().UTC()
	kind, callErr := call(ctx)
	elapsed := g.clock.Now().Sub(start)

	id, err := g.ids.NewID()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccounting, err)
	}
	record := blog.CallRecord{
		ID:             id,
		Timestamp:      start,
		Operation:      op,
		Quantity:       quantity,
		DurationMicros: elapsed.Microseconds(),
	}
	// The call was issued, so it must be counted even if the caller has gone away.
	if err := g.ledger.Record(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("%w: record %s call: %w", ErrAccounting, op, err)
	}

	outcome := kind.String()
	if callErr != nil {
		outcome = "error"
	}
	metrics.ObserveRemoteCall(string(op), outcome, elapsed)
	g.logger.Debug("Remote call completed",
		zap.String("operation", string(op)),
		zap.String("outcome", outcome),
		zap.Int("quantity", quantity),
		zap.Duration("duration", elapsed),
	)

	if callErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, callErr)
	}
	return nil
}
