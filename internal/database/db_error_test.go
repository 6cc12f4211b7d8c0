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

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "err.db"), &logger)
	require.NoError(t, err)
	db.Close() // closed handle makes every call fail

	ctx := context.Background()
	now := time.Now()

	t.Run("CreateBookingWithLock_Error", func(t *testing.T) {
		err := db.CreateBookingWithLock(ctx, &models.Booking{
			ExpKey: "exp1", Username: "u", StartTime: now, EndTime: now.Add(time.Hour),
			Status: models.StatusActive,
		})
		assert.Error(t, err)
	})

	t.Run("GetBooking_Error", func(t *testing.T) {
		_, err := db.GetBooking(ctx, 1)
		assert.Error(t, err)
	})

	t.Run("ListActive_Error", func(t *testing.T) {
		_, err := db.ListActive(ctx, "exp1", now)
		assert.Error(t, err)
	})

	t.Run("Overlapping_Error", func(t *testing.T) {
		_, err := db.Overlapping(ctx, "exp1", now, now.Add(time.Hour))
		assert.Error(t, err)
	})

	t.Run("CreateSyncTask_Error", func(t *testing.T) {
		err := db.CreateSyncTask(ctx, &models.SyncTask{TaskType: "sync_schedule"})
		assert.Error(t, err)
	})
}
