package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/config"
	"github.com/JakeFAU/tuml/internal/gateway"
	"github.com/JakeFAU/tuml/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		API:       config.APIConfig{ConsumerKey: "k", TimeoutSeconds: 5},
		Quota:     config.QuotaConfig{PerMinute: 100, PerHour: 1000, PerDay: 5000},
		Storage:   config.StorageConfig{Driver: "memory"},
		Discovery: config.DiscoveryConfig{PostsPerBlog: 1, AvatarHeight: 64},
		Server:    config.ServerConfig{Port: 8080},
	}
}

func TestNewWiresEngineThroughLedger(t *testing.T) {
	t.Parallel()

	st := memory.New()
	client := &gateway.MockClient{}
	client.On("BlogInfo", mock.Anything, "staff").
		Return(gateway.FoundBlog(gateway.BlogInfo{Name: "staff", PostCount: 12}), nil).Once()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}

	a, err := New(testConfig(), nil, st, client, clock)
	require.NoError(t, err)

	res, err := a.Engine().Enable(context.Background(), "staff")
	require.NoError(t, err)
	assert.Equal(t, blog.StateEnabled, res.State)
	assert.Len(t, st.Calls(), 1)

	usage, err := a.Governor().Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used.Minute)
	client.AssertExpectations(t)
}

func TestNewRejectsInvalidCeilings(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Quota.PerHour = 0
	_, err := New(cfg, nil, memory.New(), &gateway.MockClient{}, &fakeClock{})
	require.Error(t, err)
}

func TestHandlerServesLimits(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), nil, memory.New(), &gateway.MockClient{}, &fakeClock{now: time.Now().UTC()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/limits", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"remaining"`)
}

func TestBuildWithSQLite(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage = config.StorageConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "tuml.db")}
	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Store())
	require.Equal(t, cfg, a.Config())
	require.NoError(t, a.Close())
}

func TestBuildFailsOnBadStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage = config.StorageConfig{Driver: "mongo"}
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

type closeFailStore struct {
	*memory.Store
}

func (closeFailStore) Close() error { return errors.New("busy") }

func TestCloseReportsStoreErrors(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), nil, closeFailStore{Store: memory.New()}, &gateway.MockClient{}, &fakeClock{})
	require.NoError(t, err)
	require.ErrorContains(t, a.Close(), "busy")
}
