package models

import "time"

// Slot is a computed candidate window, never persisted. The status is derived
// from the ledger at query time and is advisory until create() re-validates.
type Slot struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Display string    `json:"display"`
	Status  string    `json:"status"` // available, booked, my_booking
}
