package service

import (
	"context"

	"p5glab/internal/catalog"
	"p5glab/internal/clock"
	"p5glab/internal/database"
	"p5glab/internal/domain"
	"p5glab/internal/events"
	"p5glab/internal/metrics"
	"p5glab/internal/models"

	"github.com/rs/zerolog"
)

// ActivationGate decides whether a requester may trigger an experiment's
// restart action. Only the holder of a booking whose window covers the
// current instant passes; repeated activations inside the same window are
// allowed.
type ActivationGate struct {
	ledger   domain.Ledger
	catalog  *catalog.Catalog
	clk      clock.Clock
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewActivationGate(ledger domain.Ledger, cat *catalog.Catalog, clk clock.Clock, eventBus domain.EventPublisher, logger *zerolog.Logger) *ActivationGate {
	return &ActivationGate{
		ledger:   ledger,
		catalog:  cat,
		clk:      clk,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Activate authorizes the restart action for a booking and returns the
// action to run. The caller hands the ActionRef to the runner; the gate
// itself never executes anything.
func (g *ActivationGate) Activate(ctx context.Context, bookingID int64, requester string) (models.ActionRef, *models.Booking, error) {
	booking, err := g.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return models.ActionRef{}, nil, err
	}

	if booking.Username != requester {
		return models.ActionRef{}, nil, database.ErrNotOwner
	}
	if !booking.IsActive(g.clk.Now()) {
		return models.ActionRef{}, nil, database.ErrNotActiveWindow
	}

	ref, err := g.catalog.ActionRef(booking.ExpKey)
	if err != nil {
		return models.ActionRef{}, nil, database.ErrUnknownExperiment
	}

	metrics.IncActivation(booking.ExpKey)
	g.logger.Info().
		Int64("booking_id", bookingID).
		Str("exp_key", booking.ExpKey).
		Str("username", requester).
		Msg("activation authorized")

	if g.eventBus != nil {
		payload := events.BookingEventPayload{
			BookingID: booking.ID,
			ExpKey:    booking.ExpKey,
			Username:  booking.Username,
			Status:    booking.Status,
			StartTime: booking.StartTime,
			EndTime:   booking.EndTime,
		}
		if err := g.eventBus.PublishJSON(events.EventBookingActivated, payload); err != nil {
			g.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("publish event error")
		}
	}

	return ref, booking, nil
}
