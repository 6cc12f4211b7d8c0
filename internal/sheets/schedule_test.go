package sheets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"p5glab/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScheduleRows(t *testing.T) {
	start := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	bookings := []*models.Booking{
		{
			ID:        1,
			ExpKey:    "exp1",
			Username:  "alice",
			StartTime: start.Add(10 * time.Hour),
			EndTime:   start.Add(11 * time.Hour),
			Status:    models.StatusActive,
		},
		{
			ID:        2,
			ExpKey:    "unknown",
			Username:  "bob",
			StartTime: start.Add(12 * time.Hour),
			EndTime:   start.Add(13 * time.Hour),
			Status:    models.StatusActive,
		},
	}
	names := map[string]string{"exp1": "Open RAN Testbed"}

	rows := buildScheduleRows(start, end, bookings, names)

	require.Len(t, rows, 5)
	assert.Equal(t, "Lab schedule 2026-03-10 - 2026-03-17", rows[0][0])
	assert.Equal(t, []interface{}{"Date", "Start", "End", "Experiment", "User", "Status"}, rows[2])
	assert.Equal(t, []interface{}{"2026-03-10", "10:00", "11:00", "Open RAN Testbed", "alice", "active"}, rows[3])
	// Keys without a catalog name fall back to the raw key.
	assert.Equal(t, "unknown", rows[4][3])
}

func TestBuildScheduleRowsEmpty(t *testing.T) {
	start := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	rows := buildScheduleRows(start, start.AddDate(0, 0, 7), nil, nil)
	require.Len(t, rows, 3)
}

func TestServiceAccountEmail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"bot@project.iam.gserviceaccount.com"}`), 0o600))

	email, err := ServiceAccountEmail(path)
	require.NoError(t, err)
	assert.Equal(t, "bot@project.iam.gserviceaccount.com", email)

	_, err = ServiceAccountEmail(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
