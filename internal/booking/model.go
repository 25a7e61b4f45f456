package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", validationError("unknown status %q", s)
}

// Blocks reports whether an appointment in this status occupies its
// interval on the timeline. Cancelled and completed appointments release
// their interval for other bookings.
func (s Status) Blocks() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment is the unit the ledger stores. Duration and price are
// copied from the service at booking time so later service edits never
// corrupt existing bookings. Appointments are never deleted, only moved
// to a terminal status, to preserve history.
type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	BusinessID      uuid.UUID  `json:"business_id"`
	StaffID         *uuid.UUID `json:"staff_id,omitempty"`
	ServiceID       uuid.UUID  `json:"service_id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	Date            Date       `json:"date"`
	StartTime       TimeOfDay  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	PriceCents      int64      `json:"price_cents"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	CancelReason    string     `json:"cancellation_reason,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EndTime is the exclusive end of the appointment's interval.
func (a *Appointment) EndTime() TimeOfDay {
	return a.StartTime.Add(a.DurationMinutes)
}

// Interval returns the half-open [start, end) occupied by the appointment.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime()}
}

// Interval is a half-open [Start, End) range within a single day.
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}
