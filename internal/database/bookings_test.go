package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"p5glab/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "bookings.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustCreate(t *testing.T, db *DB, expKey, user string, start, end time.Time) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ExpKey:    expKey,
		Username:  user,
		StartTime: start,
		EndTime:   end,
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.CreateBookingWithLock(context.Background(), b))
	return b
}

func TestCreateBookingWithLock_Conflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	mustCreate(t, db, "exp1", "alice", base, base.Add(time.Hour))

	// Overlapping window on the same experiment is rejected.
	overlap := &models.Booking{
		ExpKey:    "exp1",
		Username:  "bob",
		StartTime: base.Add(30 * time.Minute),
		EndTime:   base.Add(90 * time.Minute),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	err := db.CreateBookingWithLock(ctx, overlap)
	assert.ErrorIs(t, err, ErrConflict)

	// Touching boundary is not an overlap for half-open windows.
	touching := &models.Booking{
		ExpKey:    "exp1",
		Username:  "bob",
		StartTime: base.Add(time.Hour),
		EndTime:   base.Add(2 * time.Hour),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBookingWithLock(ctx, touching))

	// Same window on another experiment never conflicts.
	other := &models.Booking{
		ExpKey:    "exp2",
		Username:  "bob",
		StartTime: base,
		EndTime:   base.Add(time.Hour),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBookingWithLock(ctx, other))
}

func TestCreateBookingWithLock_CancelledDoesNotBlock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	first := mustCreate(t, db, "exp1", "alice", base, base.Add(time.Hour))
	require.NoError(t, db.UpdateBookingStatus(ctx, first.ID, models.StatusCancelled))

	// The identical window must be re-bookable: the unique index on
	// (exp_key, start_time) is partial over active rows only.
	identical := &models.Booking{
		ExpKey:    "exp1",
		Username:  "bob",
		StartTime: base,
		EndTime:   base.Add(time.Hour),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBookingWithLock(ctx, identical))

	require.NoError(t, db.UpdateBookingStatus(ctx, identical.ID, models.StatusCancelled))

	// Overlapping but different start: cancelled rows are ignored too.
	again := &models.Booking{
		ExpKey:    "exp1",
		Username:  "bob",
		StartTime: base.Add(5 * time.Minute),
		EndTime:   base.Add(65 * time.Minute),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBookingWithLock(ctx, again))
}

func TestGetBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	created := mustCreate(t, db, "exp1", "alice", base, base.Add(time.Hour))

	got, err := db.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "exp1", got.ExpKey)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.StartTime.Equal(base))
	assert.True(t, got.EndTime.Equal(base.Add(time.Hour)))
	assert.Equal(t, models.StatusActive, got.Status)

	_, err = db.GetBooking(ctx, 99999)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestUpdateBookingStatus_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.UpdateBookingStatus(context.Background(), 42, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestListActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	past := mustCreate(t, db, "exp1", "alice", base, base.Add(time.Hour))
	_ = past
	running := mustCreate(t, db, "exp1", "bob", base.Add(2*time.Hour), base.Add(3*time.Hour))
	upcoming := mustCreate(t, db, "exp1", "carol", base.Add(4*time.Hour), base.Add(5*time.Hour))
	cancelled := mustCreate(t, db, "exp1", "dave", base.Add(6*time.Hour), base.Add(7*time.Hour))
	require.NoError(t, db.UpdateBookingStatus(ctx, cancelled.ID, models.StatusCancelled))

	// From the middle of the "running" window: past one is excluded,
	// cancelled one is excluded, order is by start.
	from := base.Add(2*time.Hour + 30*time.Minute)
	got, err := db.ListActive(ctx, "exp1", from)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, running.ID, got[0].ID)
	assert.Equal(t, upcoming.ID, got[1].ID)
}

func TestOverlapping(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	a := mustCreate(t, db, "exp1", "alice", base, base.Add(time.Hour))
	b := mustCreate(t, db, "exp1", "bob", base.Add(2*time.Hour), base.Add(3*time.Hour))
	_ = b

	got, err := db.Overlapping(ctx, "exp1", base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	// Half-open: a window starting exactly at a.EndTime does not overlap.
	got, err = db.Overlapping(ctx, "exp1", base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Status filter.
	require.NoError(t, db.UpdateBookingStatus(ctx, a.ID, models.StatusCancelled))
	got, err = db.Overlapping(ctx, "exp1", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = db.Overlapping(ctx, "exp1", base, base.Add(time.Hour), models.StatusCancelled)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestListUserBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	mine := mustCreate(t, db, "exp1", "alice", base.Add(time.Hour), base.Add(2*time.Hour))
	mustCreate(t, db, "exp2", "bob", base.Add(time.Hour), base.Add(2*time.Hour))

	got, err := db.ListUserBookings(ctx, "alice", base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestCurrentBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	live := mustCreate(t, db, "exp1", "alice", base, base.Add(time.Hour))
	mustCreate(t, db, "exp2", "bob", base.Add(2*time.Hour), base.Add(3*time.Hour))

	got, err := db.CurrentBookings(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, live.ID, got[0].ID)
}

func TestGetBookingsByDateRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mustCreate(t, db, "exp1", "alice", base.Add(10*time.Hour), base.Add(11*time.Hour))
	mustCreate(t, db, "exp1", "bob", base.Add(48*time.Hour), base.Add(49*time.Hour))

	got, err := db.GetBookingsByDateRange(ctx, base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
