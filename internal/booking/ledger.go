package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Scope selects a time window for appointment list projections.
type Scope string

const (
	ScopeAll      Scope = ""
	ScopeUpcoming Scope = "upcoming"
	ScopePast     Scope = "past"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeUpcoming, ScopePast:
		return Scope(s), nil
	}
	return "", validationError("unknown scope %q", s)
}

// ListOptions filter appointment projections.
type ListOptions struct {
	Date   *Date
	Status *Status
	Scope  Scope
	// Now anchors upcoming/past scopes. Zero means time.Now in the
	// caller's frame.
	Now time.Time
}

// Ledger is the authoritative store of appointment intervals. It is the
// sole shared mutable resource: implementations must guarantee that at
// most one writer successfully inserts an overlapping interval on a
// given timeline.
//
// A timeline is business-wide when the appointment has no staff
// assignment, staff-scoped otherwise. Unassigned appointments occupy
// every staff timeline of the business, and an unassigned candidate is
// checked against the whole business.
type Ledger interface {
	// IntervalsOn returns the [start, end) intervals of pending and
	// confirmed appointments on the timeline for the date, ordered by
	// start time.
	IntervalsOn(ctx context.Context, businessID uuid.UUID, staffID *uuid.UUID, date Date) ([]Interval, error)

	// Insert atomically checks the appointment's interval against the
	// timeline and stores it; a lost race returns ConflictError with no
	// partial effects.
	Insert(ctx context.Context, appt *Appointment) error

	// Get returns the appointment or NotFoundError.
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Transition moves the appointment to newStatus, delegating
	// validity to the state machine. Cancellations record the reason
	// and timestamp.
	Transition(ctx context.Context, id uuid.UUID, newStatus Status, reason string) (*Appointment, error)

	// Reschedule atomically cancels the appointment and inserts a new
	// one at the new time on the same timeline. When the new slot is
	// taken the original is left untouched and ConflictError returned.
	Reschedule(ctx context.Context, id uuid.UUID, newDate Date, newStart TimeOfDay) (*Appointment, error)

	// ListByBusiness and ListByCustomer are the companion read
	// projections behind "my bookings" screens.
	ListByBusiness(ctx context.Context, businessID uuid.UUID, opts ListOptions) ([]Appointment, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, opts ListOptions) ([]Appointment, error)
}

const rescheduleReason = "rescheduled"

func matchesScope(a *Appointment, opts ListOptions) bool {
	if opts.Scope == ScopeAll {
		return true
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := DateOf(now)
	switch opts.Scope {
	case ScopeUpcoming:
		return a.Date.String() >= today.String()
	case ScopePast:
		return a.Date.String() < today.String()
	}
	return true
}

func matchesFilter(a *Appointment, opts ListOptions) bool {
	if opts.Date != nil && a.Date != *opts.Date {
		return false
	}
	if opts.Status != nil && a.Status != *opts.Status {
		return false
	}
	return matchesScope(a, opts)
}
