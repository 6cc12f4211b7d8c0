package service

import (
	"context"
	"time"

	"p5glab/internal/catalog"
	"p5glab/internal/clock"
	"p5glab/internal/config"
	"p5glab/internal/database"
	"p5glab/internal/domain"
	"p5glab/internal/events"
	"p5glab/internal/metrics"
	"p5glab/internal/models"

	"github.com/rs/zerolog"
)

type BookingService struct {
	ledger     domain.Ledger
	catalog    *catalog.Catalog
	clk        clock.Clock
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	limiter    domain.RateLimiter
	cfg        config.BookingConfig
	logger     *zerolog.Logger
}

func NewBookingService(
	ledger domain.Ledger,
	cat *catalog.Catalog,
	clk clock.Clock,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	limiter domain.RateLimiter,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = 30
	}
	return &BookingService{
		ledger:     ledger,
		catalog:    cat,
		clk:        clk,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
	}
}

// CreateBooking reserves [start, start+duration) on an experiment. The window
// must be entirely in the future; the overlap check runs atomically inside
// the ledger transaction.
func (s *BookingService) CreateBooking(ctx context.Context, expKey, username string, start time.Time, duration time.Duration) (*models.Booking, error) {
	exp, ok := s.catalog.Get(expKey)
	if !ok {
		return nil, database.ErrUnknownExperiment
	}

	now := s.clk.Now()
	if duration <= 0 {
		return nil, database.ErrInvalidWindow
	}
	if start.Before(now) {
		return nil, database.ErrInvalidWindow
	}
	if start.After(now.AddDate(0, 0, s.cfg.MaxBookingDays)) {
		return nil, database.ErrDateTooFar
	}

	// Rejected requests must not spend the user's allowance, so the
	// window is validated before the limiter is consulted.
	if err := s.checkRateLimit(ctx, username); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ExpKey:    expKey,
		Username:  username,
		StartTime: start,
		EndTime:   start.Add(duration),
		Status:    models.StatusActive,
		CreatedAt: now,
	}

	if err := s.ledger.CreateBookingWithLock(ctx, booking); err != nil {
		if err == database.ErrConflict {
			metrics.IncBookingConflict(expKey)
		}
		return nil, err
	}

	metrics.IncBookingCreated(expKey)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("exp_key", expKey).
		Str("username", username).
		Time("start", booking.StartTime).
		Time("end", booking.EndTime).
		Msg("booking created")

	s.publishEvent(events.EventBookingCreated, booking, exp.Name)
	s.enqueueSync(ctx, booking.ID)

	return booking, nil
}

// CancelBooking cancels a future booking owned by the requester. Running or
// finished bookings stay in the ledger as history.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64, username string) error {
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if booking.Username != username {
		return database.ErrNotOwner
	}
	if !s.clk.Now().Before(booking.StartTime) {
		return database.ErrAlreadyStarted
	}

	if err := s.ledger.UpdateBookingStatus(ctx, bookingID, models.StatusCancelled); err != nil {
		return err
	}
	booking.Status = models.StatusCancelled

	metrics.IncBookingCancelled(booking.ExpKey)
	s.logger.Info().
		Int64("booking_id", bookingID).
		Str("username", username).
		Msg("booking cancelled")

	s.publishEvent(events.EventBookingCancelled, booking, "")
	s.enqueueSync(ctx, bookingID)

	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.ledger.GetBooking(ctx, id)
}

// UserBookings returns the requester's running and upcoming bookings.
func (s *BookingService) UserBookings(ctx context.Context, username string) ([]*models.Booking, error) {
	return s.ledger.ListUserBookings(ctx, username, s.clk.Now())
}

// ListActive returns running and upcoming bookings for one experiment.
func (s *BookingService) ListActive(ctx context.Context, expKey string) ([]*models.Booking, error) {
	if _, ok := s.catalog.Get(expKey); !ok {
		return nil, database.ErrUnknownExperiment
	}
	return s.ledger.ListActive(ctx, expKey, s.clk.Now())
}

func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.ledger.GetBookingsByDateRange(ctx, start, end)
}

// ExperimentStatus pairs a catalog entry with whoever holds it right now.
type ExperimentStatus struct {
	Experiment     models.Experiment `json:"experiment"`
	CurrentBooking *models.Booking   `json:"current_booking,omitempty"`
}

// ExperimentStatuses annotates every experiment with its live booking, if any.
func (s *BookingService) ExperimentStatuses(ctx context.Context) ([]ExperimentStatus, error) {
	current, err := s.ledger.CurrentBookings(ctx, s.clk.Now())
	if err != nil {
		return nil, err
	}

	byExp := make(map[string]*models.Booking, len(current))
	for _, b := range current {
		byExp[b.ExpKey] = b
	}

	experiments := s.catalog.All()
	statuses := make([]ExperimentStatus, 0, len(experiments))
	for _, exp := range experiments {
		statuses = append(statuses, ExperimentStatus{
			Experiment:     exp,
			CurrentBooking: byExp[exp.Key],
		})
	}
	return statuses, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, username string) error {
	if s.limiter == nil || s.cfg.UserRateLimit <= 0 {
		return nil
	}
	window := time.Duration(s.cfg.UserRateWindowSeconds) * time.Second
	allowed, err := s.limiter.CheckRateLimit(ctx, "booking:"+username, s.cfg.UserRateLimit, window)
	if err != nil {
		// Limiter trouble must not block bookings.
		s.logger.Error().Err(err).Str("username", username).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return database.ErrRateLimited
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, expName string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		ExpKey:    booking.ExpKey,
		ExpName:   expName,
		Username:  booking.Username,
		Status:    booking.Status,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, bookingID int64) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueSyncSchedule(ctx, bookingID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("schedule sync enqueue error")
	}
}
