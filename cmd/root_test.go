package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/tuml/internal/app"
	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/config"
	"github.com/JakeFAU/tuml/internal/gateway"
	"github.com/JakeFAU/tuml/internal/storage/memory"
)

var testNow = time.Date(2024, 7, 1, 15, 30, 20, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (fixedClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// blockingClock parks every Sleep until ctx ends and reports the first one.
type blockingClock struct {
	now      time.Time
	once     sync.Once
	sleeping chan struct{}
}

func (c *blockingClock) Now() time.Time { return c.now }

func (c *blockingClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.once.Do(func() { close(c.sleeping) })
	<-ctx.Done()
	return ctx.Err()
}

// closeRecorder notes whether run closed the App it built.
type closeRecorder struct {
	App
	closed *atomic.Bool
}

func (a closeRecorder) Close() error {
	a.closed.Store(true)
	return a.App.Close()
}

type harness struct {
	store  *memory.Store
	client *gateway.MockClient
	cfg    config.Config
	clock  app.Clock
}

func newHarness() *harness {
	return &harness{
		store:  memory.New(),
		client: &gateway.MockClient{},
		cfg: config.Config{
			API:       config.APIConfig{ConsumerKey: "k", TimeoutSeconds: 5},
			Quota:     config.QuotaConfig{PerMinute: 100, PerHour: 1000, PerDay: 5000},
			Storage:   config.StorageConfig{Driver: "memory"},
			Discovery: config.DiscoveryConfig{PostsPerBlog: 1, AvatarHeight: 64},
			Server:    config.ServerConfig{Port: 8080},
		},
	}
}

func (h *harness) factory(_ context.Context, _ string) (App, error) {
	clock := h.clock
	if clock == nil {
		clock = fixedClock{now: testNow}
	}
	return app.New(h.cfg, nil, h.store, h.client, clock)
}

func (h *harness) seedCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.store.Record(context.Background(), blog.CallRecord{
			ID:        fmt.Sprintf("c%d", i),
			Timestamp: testNow.Add(-10 * time.Second),
			Operation: blog.OpBlogInfo,
			Quantity:  1,
		}))
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), h.factory, args, &out, &errOut)
	return out.String(), err
}

func TestEnableFetchesAndPrints(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.client.On("BlogInfo", mock.Anything, "staff").
		Return(gateway.FoundBlog(gateway.BlogInfo{Name: "staff", PostCount: 10}), nil).Once()
	h.client.On("BlogInfo", mock.Anything, "ghost").
		Return(gateway.BlogNotFound(), nil).Once()

	out, err := h.run(t, "enable", "staff", "ghost")
	require.NoError(t, err)
	assert.Contains(t, out, "staff: enabled (changed)")
	assert.Contains(t, out, "ghost: not_found (changed)")

	out, err = h.run(t, "enable", "staff")
	require.NoError(t, err)
	assert.Contains(t, out, "staff: enabled (unchanged)")
	h.client.AssertExpectations(t)
	assert.Len(t, h.store.Calls(), 2)
}

func TestEnableRequiresArgument(t *testing.T) {
	t.Parallel()

	_, err := newHarness().run(t, "enable")
	require.Error(t, err)
}

func TestDisableUntrackedAndTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness()
	require.NoError(t, h.store.Create(context.Background(), blog.NotFound("gone", testNow)))

	out, err := h.run(t, "disable", "nobody", "gone")
	require.NoError(t, err)
	assert.Contains(t, out, "nobody: not tracked")
	assert.Contains(t, out, "gone: not_found (terminal, ignored)")
	assert.Empty(t, h.store.Calls())
}

func TestEnableNoWaitFailsWhenQuotaExhausted(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedCalls(t, 96)

	_, err := h.run(t, "enable", "--no-wait", "staff")
	require.ErrorIs(t, err, ErrQuotaExhausted)
	h.client.AssertNotCalled(t, "BlogInfo", mock.Anything, mock.Anything)
}

func TestUpdateStopsWhenCanceledDuringQuotaWait(t *testing.T) {
	t.Parallel()

	h := newHarness()
	require.NoError(t, h.store.Create(context.Background(), blog.Record{Name: "x", State: blog.StateEnabled}))
	h.seedCalls(t, 96)
	clock := &blockingClock{now: testNow, sleeping: make(chan struct{})}
	h.clock = clock

	var closed atomic.Bool
	factory := func(ctx context.Context, path string) (App, error) {
		a, err := h.factory(ctx, path)
		if err != nil {
			return nil, err
		}
		return closeRecorder{App: a, closed: &closed}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, factory, []string{"update"}, &bytes.Buffer{}, &bytes.Buffer{})
	}()

	select {
	case <-clock.sleeping:
	case <-time.After(5 * time.Second):
		t.Fatal("update never waited for quota")
	}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("update did not return after cancellation")
	}
	assert.True(t, closed.Load(), "app must be closed on the way out")
	h.client.AssertNotCalled(t, "BlogInfo", mock.Anything, mock.Anything)
}

func TestTransportFailureIsPerBlog(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.client.On("BlogInfo", mock.Anything, "staff").
		Return(gateway.BlogInfoResult{}, errors.New("connection refused")).Once()

	out, err := h.run(t, "enable", "staff")
	require.NoError(t, err, "transport failures are per blog")
	assert.Contains(t, out, "staff: failed (transport error)")
}

func TestUpdatePrintsReport(t *testing.T) {
	t.Parallel()

	h := newHarness()
	require.NoError(t, h.store.Create(context.Background(), blog.Record{Name: "x", State: blog.StateEnabled}))
	h.client.On("BlogInfo", mock.Anything, "x").
		Return(gateway.FoundBlog(gateway.BlogInfo{Name: "x", PostCount: 5}), nil).Once()
	h.client.On("Posts", mock.Anything, "x", 1, 0).
		Return(gateway.FoundPosts([]gateway.Post{{ID: "1", Notes: []gateway.Note{{Type: "reblog", BlogName: "alpha"}}}}), nil).Once()
	h.client.On("BlogInfo", mock.Anything, "alpha").
		Return(gateway.FoundBlog(gateway.BlogInfo{Name: "alpha", PostCount: 2}), nil).Once()

	out, err := h.run(t, "update")
	require.NoError(t, err)
	assert.Contains(t, out, "Visited 2, refreshed 1, vanished 0, discovered 1, failed 0.")

	alpha, err := h.store.Get(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, blog.StatePotential, alpha.State)
	h.client.AssertExpectations(t)
}

func TestLimitsOutputs(t *testing.T) {
	t.Parallel()

	h := newHarness()
	for i := 0; i < 6; i++ {
		require.NoError(t, h.store.Record(context.Background(), blog.CallRecord{
			ID: fmt.Sprintf("c%d", i), Timestamp: testNow, Operation: blog.OpPosts, Quantity: 1,
		}))
	}

	out, err := h.run(t, "limits")
	require.NoError(t, err)
	assert.Contains(t, out, "WINDOW")
	assert.Regexp(t, `minute\s+100\s+6\s+94`, out)

	out, err = h.run(t, "limits", "--output", "yaml")
	require.NoError(t, err)
	var got struct {
		Remaining struct {
			Minute int `yaml:"minute"`
		} `yaml:"remaining"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, 94, got.Remaining.Minute)

	_, err = h.run(t, "limits", "--output", "xml")
	require.Error(t, err)
}

func TestListSortsAndFilters(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx := context.Background()
	for _, r := range []blog.Record{
		{Name: "small", State: blog.StatePotential, PostCount: 1},
		{Name: "large", State: blog.StatePotential, PostCount: 500},
		{Name: "mine", State: blog.StateEnabled, PostCount: 50},
	} {
		require.NoError(t, h.store.Create(ctx, r))
	}

	out, err := h.run(t, "list", "--state", "potential", "--output", "json")
	require.NoError(t, err)
	var recs []blog.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "large", recs[0].Name)
	assert.Equal(t, "small", recs[1].Name)

	out, err = h.run(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "large"))
	assert.True(t, strings.HasPrefix(lines[2], "mine"))

	_, err = h.run(t, "list", "--state", "asleep")
	require.Error(t, err)
}

func TestInitResetsStore(t *testing.T) {
	t.Parallel()

	h := newHarness()
	require.NoError(t, h.store.Create(context.Background(), blog.Record{Name: "x", State: blog.StateEnabled}))

	out, err := h.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized")
	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFactoryErrorIsReported(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, string) (App, error) { return nil, errors.New("bad config") }
	err := run(context.Background(), failing, []string{"limits"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, "bad config")
}
