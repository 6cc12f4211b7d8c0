package models

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	// StatusCompleted exists only as a display label; the ledger never writes
	// it, end-of-window is always computed from the clock.
	StatusCompleted = "completed"
)

const (
	SlotAvailable = "available"
	SlotBooked    = "booked"
	SlotMine      = "my_booking"
)

const (
	// DefaultSlotMinutes is the session length when the client omits one.
	DefaultSlotMinutes = 60

	// SlotStepMinutes is the fixed stride between slot candidates. It is
	// independent of the requested duration, so long sessions produce a
	// denser grid rather than a tiled one.
	SlotStepMinutes = 30

	// SlotRoundMinutes is the boundary slots are rounded forward to.
	SlotRoundMinutes = 5

	// MaxSlots caps the number of slots returned per query.
	MaxSlots = 20

	// MaxSlotCandidates bounds the planner loop.
	MaxSlotCandidates = 50
)

const (
	// RunnerQueueSize bounds pending restart-script executions.
	RunnerQueueSize = 64

	// WorkerQueueSize bounds pending schedule sync tasks.
	WorkerQueueSize = 128

	// RateLimitRequests is the per-user booking attempt allowance.
	RateLimitRequests = 30

	// RateLimitWindow is the allowance window in seconds.
	RateLimitWindow = 60
)
