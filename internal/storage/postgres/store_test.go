package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tuml/internal/blog"
)

var columns = []string{
	"name", "state", "meta", "post_count", "last_post_seen", "updated_at", "last_visited_at", "age_hours",
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return mock, s
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	updated := time.Unix(1700000000, 0).UTC()
	visited := updated.Add(2 * time.Hour)
	rec := blog.Record{
		Name:          "staff",
		State:         blog.StateEnabled,
		Meta:          &blog.Metadata{Title: "Staff"},
		PostCount:     42,
		UpdatedAt:     updated,
		LastVisitedAt: visited,
		AgeHours:      2,
	}

	mock.ExpectExec("INSERT INTO blogs").
		WithArgs(
			"staff",
			"enabled",
			[]byte(`{"title":"Staff","description":"","url":"","avatar_url":""}`),
			42,
			0,
			updated,
			visited,
			2,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Create(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateReturnsErrExists(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectExec("INSERT INTO blogs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.Create(context.Background(), blog.Record{Name: "staff", State: blog.StateEnabled})
	require.ErrorIs(t, err, blog.ErrExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectExec("UPDATE blogs SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Save(context.Background(), blog.Record{Name: "ghost", State: blog.StateDisabled})
	require.ErrorIs(t, err, blog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecodesRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	updated := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM blogs WHERE name").
		WithArgs("staff").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("staff", "enabled", []byte(`{"title":"Staff","avatar_url":"https://img/64"}`),
				42, 0, updated, updated.Add(time.Hour), 1))

	rec, err := s.Get(context.Background(), "staff")
	require.NoError(t, err)
	require.Equal(t, blog.StateEnabled, rec.State)
	require.Equal(t, 42, rec.PostCount)
	require.NotNil(t, rec.Meta)
	require.Equal(t, "https://img/64", rec.Meta.AvatarURL)
	require.Equal(t, updated, rec.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM blogs WHERE name").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(columns))

	_, err := s.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, blog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStateKeepsOrder(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	var zero time.Time
	mock.ExpectQuery("SELECT (.+) FROM blogs WHERE state (.+) ORDER BY seq").
		WithArgs("enabled").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("zeta", "enabled", []byte(nil), 1, 0, zero, zero, 0).
			AddRow("alpha", "enabled", []byte(nil), 2, 0, zero, zero, 0))

	recs, err := s.ListByState(context.Background(), blog.StateEnabled)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "zeta", recs[0].Name)
	require.Equal(t, "alpha", recs[1].Name)
	require.Nil(t, recs[0].Meta)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAndCountSince(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	call := blog.CallRecord{ID: "0190-abc", Timestamp: ts, Operation: blog.OpPosts, Quantity: 1, DurationMicros: 1500}

	mock.ExpectExec("INSERT INTO calls").
		WithArgs("0190-abc", ts, "posts", 1, int64(1500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(ts).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, call))
	n, err := s.CountSince(ctx, ts)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountSinceWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := s.CountSince(context.Background(), time.Now())
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetDropsAndRecreates(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectExec("DROP TABLE IF EXISTS blogs, calls").
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS blogs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
