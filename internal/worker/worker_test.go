package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"p5glab/internal/catalog"
	"p5glab/internal/database"
	"p5glab/internal/models"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	err   error
	calls int
	last  []*models.Booking
}

func (f *fakeWriter) UpdateScheduleSheet(ctx context.Context, startDate, endDate time.Time, bookings []*models.Booking, experiments []models.Experiment) error {
	f.calls++
	f.last = bookings
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestWorker(t *testing.T, db *database.DB, writer *fakeWriter, redisClient *goredis.Client, retry RetryPolicy) *ScheduleWorker {
	t.Helper()
	cat, err := catalog.New([]models.Experiment{{Key: "exp1", Name: "Testbed"}})
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	return NewScheduleWorker(db, writer, cat, redisClient, retry, &logger)
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{}
	w := newTestWorker(t, db, writer, nil, RetryPolicy{})

	ctx := context.Background()
	require.NoError(t, w.EnqueueSyncSchedule(ctx, 1))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, "completed", status)
	assert.Zero(t, retryCount)
	assert.False(t, nextRetry.Valid)
	assert.Equal(t, 1, writer.calls)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{err: errors.New("boom")}
	w := newTestWorker(t, db, writer, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second})

	ctx := context.Background()
	require.NoError(t, w.EnqueueSyncSchedule(ctx, 2))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, "retry", status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))
}

func TestProcessTaskFailAfterRetries(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{err: errors.New("fatal")}
	w := newTestWorker(t, db, writer, nil, RetryPolicy{MaxRetries: 1})

	ctx := context.Background()
	require.NoError(t, w.EnqueueSyncSchedule(ctx, 3))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, "failed", status)
}

func TestProcessTaskUnknownType(t *testing.T) {
	db := newTestDB(t)
	w := newTestWorker(t, db, &fakeWriter{}, nil, RetryPolicy{})

	ctx := context.Background()
	task := models.SyncTask{TaskType: "bogus", BookingID: 1, Payload: "{}", Status: "pending", CreatedAt: time.Now()}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	w.processTask(ctx, &task)
	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, "failed", status)
}

func TestEnqueueSyncSchedule(t *testing.T) {
	db := newTestDB(t)
	w := newTestWorker(t, db, &fakeWriter{}, nil, RetryPolicy{})
	ctx := context.Background()

	require.NoError(t, w.EnqueueSyncSchedule(ctx, 7))

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskSyncSchedule, tasks[0].TaskType)
	assert.Equal(t, int64(7), tasks[0].BookingID)

	assert.Error(t, w.EnqueueSyncSchedule(ctx, 0))
}

func TestEnqueueRoutesThroughRedis(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := newTestWorker(t, db, &fakeWriter{}, client, RetryPolicy{})
	ctx := context.Background()

	require.NoError(t, w.EnqueueSyncSchedule(ctx, 9))

	// The task went to redis, not the local channel.
	_, ok := w.tryLocalQueue()
	assert.False(t, ok)
	assert.True(t, mr.Exists(w.redisQueueKey))

	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(9), task.BookingID)
}

func TestPublishScheduleCoversUpcomingWindow(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{}
	w := newTestWorker(t, db, writer, nil, RetryPolicy{})
	ctx := context.Background()

	inWindow := &models.Booking{
		ExpKey:    "exp1",
		Username:  "alice",
		StartTime: time.Now().Add(24 * time.Hour),
		EndTime:   time.Now().Add(25 * time.Hour),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.CreateBookingWithLock(ctx, inWindow))

	outOfWindow := &models.Booking{
		ExpKey:    "exp1",
		Username:  "alice",
		StartTime: time.Now().AddDate(0, 0, scheduleWindowDays+2),
		EndTime:   time.Now().AddDate(0, 0, scheduleWindowDays+2).Add(time.Hour),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.CreateBookingWithLock(ctx, outOfWindow))

	require.NoError(t, w.publishSchedule(ctx))
	require.Len(t, writer.last, 1)
	assert.Equal(t, inWindow.ID, writer.last[0].ID)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, policy.NextDelay(0))
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{}.withDefaults()

	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 2*time.Second, policy.NextDelay(1))
	assert.Equal(t, time.Minute, policy.NextDelay(10))

	partial := RetryPolicy{MaxRetries: 1}.withDefaults()
	assert.Equal(t, 1, partial.MaxRetries)
	assert.Equal(t, 2*time.Second, partial.InitialDelay)
}
