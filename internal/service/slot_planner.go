package service

import (
	"context"
	"time"

	"p5glab/internal/catalog"
	"p5glab/internal/database"
	"p5glab/internal/domain"
	"p5glab/internal/metrics"
	"p5glab/internal/models"
)

// SlotPlanner derives bookable start times for a day. It only reads the
// ledger; annotation never mutates anything, so the same call can be
// repeated safely.
type SlotPlanner struct {
	ledger  domain.Ledger
	catalog *catalog.Catalog
}

func NewSlotPlanner(ledger domain.Ledger, cat *catalog.Catalog) *SlotPlanner {
	return &SlotPlanner{ledger: ledger, catalog: cat}
}

// Generate lists candidate slots of the given duration on targetDate's day,
// stepping every 30 minutes from the anchor. The anchor is the later of the
// day's midnight and now, rounded up to a 5-minute boundary. At most
// models.MaxSlots slots come back, each annotated against existing bookings.
func (p *SlotPlanner) Generate(ctx context.Context, expKey string, targetDate, now time.Time, duration time.Duration, requester string) ([]models.Slot, error) {
	if _, ok := p.catalog.Get(expKey); !ok {
		return nil, database.ErrUnknownExperiment
	}
	if duration <= 0 {
		return nil, database.ErrInvalidWindow
	}

	metrics.IncSlotQuery()

	anchor := p.anchor(targetDate, now)
	dayEnd := startOfDay(targetDate).AddDate(0, 0, 1)

	slots := make([]models.Slot, 0, models.MaxSlots)
	cursor := anchor
	for i := 0; i < models.MaxSlotCandidates && len(slots) < models.MaxSlots; i++ {
		if !cursor.Before(dayEnd) {
			break
		}

		end := cursor.Add(duration)
		status, err := p.annotate(ctx, expKey, cursor, end, requester)
		if err != nil {
			return nil, err
		}

		slots = append(slots, models.Slot{
			Start:   cursor,
			End:     end,
			Display: cursor.Format("15:04"),
			Status:  status,
		})
		cursor = cursor.Add(models.SlotStepMinutes * time.Minute)
	}

	return slots, nil
}

// anchor picks the first candidate start: the later of targetDate's midnight
// and now, rounded up to the next 5-minute boundary. A time already on the
// boundary stays put.
func (p *SlotPlanner) anchor(targetDate, now time.Time) time.Time {
	t := startOfDay(targetDate)
	if now.After(t) {
		t = now
	}

	rounded := t.Truncate(models.SlotRoundMinutes * time.Minute)
	if rounded.Equal(t) {
		return t
	}
	return rounded.Add(models.SlotRoundMinutes * time.Minute)
}

func (p *SlotPlanner) annotate(ctx context.Context, expKey string, start, end time.Time, requester string) (string, error) {
	overlapping, err := p.ledger.Overlapping(ctx, expKey, start, end)
	if err != nil {
		return "", err
	}
	if len(overlapping) == 0 {
		return models.SlotAvailable, nil
	}
	for _, b := range overlapping {
		if b.Username == requester {
			return models.SlotMine, nil
		}
	}
	return models.SlotBooked, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
