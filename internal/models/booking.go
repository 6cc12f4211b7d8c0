package models

import "time"

type Booking struct {
	ID        int64     `json:"id"`
	ExpKey    string    `json:"exp_key"`
	Username  string    `json:"username"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"` // exclusive
	Status    string    `json:"status"`   // active, cancelled
	CreatedAt time.Time `json:"created_at"`
}

// IsActive reports whether the booking window currently holds the experiment.
// "Completed" is never stored; it is always derived from the end time.
func (b *Booking) IsActive(now time.Time) bool {
	return b.Status == StatusActive && !now.Before(b.StartTime) && now.Before(b.EndTime)
}

// IsExpired reports whether the booking window is over.
func (b *Booking) IsExpired(now time.Time) bool {
	return !now.Before(b.EndTime)
}

// Overlaps tests the half-open interval [start, end) against the booking window.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && start.Before(b.EndTime)
}

// MinutesRemaining returns whole minutes left in an active booking, 0 otherwise.
func (b *Booking) MinutesRemaining(now time.Time) int {
	if !b.IsActive(now) {
		return 0
	}
	mins := int(b.EndTime.Sub(now).Minutes())
	if mins < 0 {
		return 0
	}
	return mins
}

// DurationMinutes returns the total booked window length in minutes.
func (b *Booking) DurationMinutes() int {
	return int(b.EndTime.Sub(b.StartTime).Minutes())
}
