package domain

import (
	"context"
	"time"

	"p5glab/internal/models"
)

// Ledger is the authoritative reservation store. CreateBookingWithLock must
// run its overlap check and insert as one atomic unit per experiment.
type Ledger interface {
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status string) error
	ListActive(ctx context.Context, expKey string, from time.Time) ([]*models.Booking, error)
	Overlapping(ctx context.Context, expKey string, start, end time.Time, statuses ...string) ([]*models.Booking, error)
	ListUserBookings(ctx context.Context, username string, from time.Time) ([]*models.Booking, error)
	CurrentBookings(ctx context.Context, now time.Time) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ActionRunner executes restart actions asynchronously. Submit never blocks
// on the script and never reports its outcome; failures are logged by the
// runner itself.
type ActionRunner interface {
	Submit(ref models.ActionRef)
}

// RateLimiter answers whether a caller is within its allowance for a window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SyncWorker accepts schedule-publication work.
type SyncWorker interface {
	EnqueueSyncSchedule(ctx context.Context, bookingID int64) error
}

// ScheduleWriter renders the lab schedule to an external read model.
type ScheduleWriter interface {
	UpdateScheduleSheet(ctx context.Context, startDate, endDate time.Time, bookings []*models.Booking, experiments []models.Experiment) error
}
