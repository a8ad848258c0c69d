package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/storage/memory"
)

type fakeAdmitter struct {
	err   error
	calls int
}

func (a *fakeAdmitter) Admit(_ context.Context) error {
	a.calls++
	return a.err
}

// steppingClock advances by step on every read so calls have a measurable duration.
type steppingClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type fakeIDGen struct{ n int }

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return "call-" + string(rune('0'+g.n)), nil
}

type failingLedger struct{}

func (failingLedger) Record(context.Context, blog.CallRecord) error {
	return errors.New("ledger offline")
}

func (failingLedger) CountSince(context.Context, time.Time) (int, error) { return 0, nil }

func newTestGateway(t *testing.T, client Client, admit Admitter, ledger blog.Ledger) *Gateway {
	t.Helper()
	clock := &steppingClock{now: time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC), step: 250 * time.Millisecond}
	g, err := New(client, admit, ledger, nil, clock, &fakeIDGen{}, nil)
	require.NoError(t, err)
	return g
}

func TestFetchBlogInfoRecordsCall(t *testing.T) {
	t.Parallel()

	client := &MockClient{}
	client.On("BlogInfo", mock.Anything, "staff").
		Return(FoundBlog(BlogInfo{Name: "staff", PostCount: 42}), nil).Once()
	ledger := memory.New()
	admit := &fakeAdmitter{}
	g := newTestGateway(t, client, admit, ledger)

	res, err := g.FetchBlogInfo(context.Background(), "staff")
	require.NoError(t, err)
	require.Equal(t, KindFound, res.Kind)
	require.Equal(t, 42, res.Blog.PostCount)
	require.Equal(t, 1, admit.calls)

	calls := ledger.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, blog.OpBlogInfo, calls[0].Operation)
	require.Equal(t, 1, calls[0].Quantity)
	require.Equal(t, int64(250000), calls[0].DurationMicros)
	require.Equal(t, "call-1", calls[0].ID)
	require.Equal(t, time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC), calls[0].Timestamp)
	client.AssertExpectations(t)
}

func TestFetchPostsQuantityIsLimit(t *testing.T) {
	t.Parallel()

	client := &MockClient{}
	client.On("Posts", mock.Anything, "staff", 3, 0).
		Return(FoundPosts([]Post{{ID: "1"}}), nil).Once()
	ledger := memory.New()
	g := newTestGateway(t, client, &fakeAdmitter{}, ledger)

	res, err := g.FetchPosts(context.Background(), "staff", 3, 0)
	require.NoError(t, err)
	require.Len(t, res.Posts, 1)
	calls := ledger.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, blog.OpPosts, calls[0].Operation)
	require.Equal(t, 3, calls[0].Quantity)
}

func TestNotFoundAndFailedAreResultsNotErrors(t *testing.T) {
	t.Parallel()

	client := &MockClient{}
	client.On("BlogInfo", mock.Anything, "ghost").Return(BlogNotFound(), nil).Once()
	client.On("BlogInfo", mock.Anything, "flaky").Return(BlogFailed(503, "unavailable"), nil).Once()
	ledger := memory.New()
	g := newTestGateway(t, client, &fakeAdmitter{}, ledger)

	res, err := g.FetchBlogInfo(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, KindNotFound, res.Kind)

	res, err = g.FetchBlogInfo(context.Background(), "flaky")
	require.NoError(t, err)
	require.Equal(t, KindFailed, res.Kind)
	require.Equal(t, 503, res.StatusCode)
	require.Len(t, ledger.Calls(), 2)
}

func TestTransportErrorIsRecordedAndWrapped(t *testing.T) {
	t.Parallel()

	client := &MockClient{}
	client.On("BlogInfo", mock.Anything, "staff").
		Return(BlogInfoResult{}, errors.New("connection reset")).Once()
	ledger := memory.New()
	g := newTestGateway(t, client, &fakeAdmitter{}, ledger)

	_, err := g.FetchBlogInfo(context.Background(), "staff")
	require.ErrorIs(t, err, ErrTransport)
	require.NotErrorIs(t, err, ErrAccounting)
	require.Len(t, ledger.Calls(), 1)
}

func TestAdmitFailureSkipsCall(t *testing.T) {
	t.Parallel()

	client := &MockClient{}
	ledger := memory.New()
	g := newTestGateway(t, client, &fakeAdmitter{err: errors.New("count failed")}, ledger)

	_, err := g.FetchPosts(context.Background(), "staff", 1, 0)
	require.ErrorIs(t, err, ErrAccounting)
	require.Empty(t, ledger.Calls())
	client.AssertNotCalled(t, "Posts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdmitCanceledIsNotAccountingFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := newTestGateway(t, &MockClient{}, &fakeAdmitter{err: context.Canceled}, memory.New())

	_, err := g.FetchBlogInfo(ctx, "staff")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrAccounting)
}

func TestLedgerFailureIsAccountingFailure(t *testing.T) {
	t.Parallel()

	client := &MockClient{}
	client.On("BlogInfo", mock.Anything, "staff").Return(FoundBlog(BlogInfo{Name: "staff"}), nil).Once()
	g := newTestGateway(t, client, &fakeAdmitter{}, failingLedger{})

	_, err := g.FetchBlogInfo(context.Background(), "staff")
	require.ErrorIs(t, err, ErrAccounting)
	require.Contains(t, err.Error(), "ledger offline")
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &fakeAdmitter{}, memory.New(), nil, &steppingClock{}, nil, nil)
	require.Error(t, err)
}

func TestAvatarURLPicksHeight(t *testing.T) {
	t.Parallel()

	info := BlogInfo{Avatars: []Avatar{
		{Width: 512, Height: 512, URL: "https://a/512"},
		{Width: 64, Height: 64, URL: "https://a/64"},
	}}
	require.Equal(t, "https://a/64", info.AvatarURL(64))
	require.Empty(t, info.AvatarURL(128))
}
