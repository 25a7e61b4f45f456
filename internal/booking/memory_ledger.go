package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger keeps appointments in memory. Writes to a business's
// timelines are serialized by a per-business mutex held across the
// check-then-insert, so concurrent overlapping inserts produce exactly
// one winner. Used by tests and demo mode; production runs the
// PostgresLedger.
type MemoryLedger struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		appointments: make(map[uuid.UUID]*Appointment),
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *MemoryLedger) businessLock(businessID uuid.UUID) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	lock, ok := l.locks[businessID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[businessID] = lock
	}
	return lock
}

// IntervalsOn returns blocking intervals on the timeline, ordered by start.
func (l *MemoryLedger) IntervalsOn(ctx context.Context, businessID uuid.UUID, staffID *uuid.UUID, date Date) ([]Interval, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intervalsLocked(businessID, staffID, date), nil
}

func (l *MemoryLedger) intervalsLocked(businessID uuid.UUID, staffID *uuid.UUID, date Date) []Interval {
	var out []Interval
	for _, a := range l.appointments {
		if a.BusinessID != businessID || a.Date != date || !a.Status.Blocks() {
			continue
		}
		if !onTimeline(a.StaffID, staffID) {
			continue
		}
		out = append(out, a.Interval())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// onTimeline reports whether an appointment with apptStaff occupies the
// timeline identified by staff. Unassigned appointments occupy every
// timeline; an unassigned candidate spans the whole business.
func onTimeline(apptStaff, staff *uuid.UUID) bool {
	if staff == nil || apptStaff == nil {
		return true
	}
	return *apptStaff == *staff
}

// Insert stores the appointment unless its interval is already taken on
// the timeline.
func (l *MemoryLedger) Insert(ctx context.Context, appt *Appointment) error {
	lock := l.businessLock(appt.BusinessID)
	lock.Lock()
	defer lock.Unlock()
	return l.insertSerialized(appt)
}

func (l *MemoryLedger) insertSerialized(appt *Appointment) error {
	// Degenerate intervals never conflict with anything; the postgres
	// schema rejects them with a CHECK, so the ledgers must agree.
	if appt.DurationMinutes <= 0 {
		return validationError("appointment duration must be positive, got %d", appt.DurationMinutes)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	candidate := appt.Interval()
	for _, taken := range l.intervalsLocked(appt.BusinessID, appt.StaffID, appt.Date) {
		if candidate.Overlaps(taken) {
			return conflictError("interval %s-%s on %s already booked", candidate.Start, candidate.End, appt.Date)
		}
	}

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stored := *appt
	l.appointments[appt.ID] = &stored
	return nil
}

// Get returns a copy of the appointment.
func (l *MemoryLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.appointments[id]
	if !ok {
		return nil, notFoundError("appointment %s", id)
	}
	copied := *a
	return &copied, nil
}

// Transition applies a state-machine move.
func (l *MemoryLedger) Transition(ctx context.Context, id uuid.UUID, newStatus Status, reason string) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.appointments[id]
	if !ok {
		return nil, notFoundError("appointment %s", id)
	}
	if err := CheckTransition(a.Status, newStatus); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a.Status = newStatus
	a.UpdatedAt = now
	if newStatus == StatusCancelled {
		a.CancelReason = reason
		a.CancelledAt = &now
	}
	copied := *a
	return &copied, nil
}

// Reschedule cancels the appointment and books the new time as one
// serialized unit. A taken slot leaves the original untouched.
func (l *MemoryLedger) Reschedule(ctx context.Context, id uuid.UUID, newDate Date, newStart TimeOfDay) (*Appointment, error) {
	l.mu.RLock()
	existing, ok := l.appointments[id]
	if !ok {
		l.mu.RUnlock()
		return nil, notFoundError("appointment %s", id)
	}
	businessID := existing.BusinessID
	l.mu.RUnlock()

	lock := l.businessLock(businessID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	old, ok := l.appointments[id]
	if !ok {
		return nil, notFoundError("appointment %s", id)
	}
	if err := CheckTransition(old.Status, StatusCancelled); err != nil {
		return nil, err
	}

	candidate := Interval{Start: newStart, End: newStart.Add(old.DurationMinutes)}
	for _, taken := range l.intervalsLocked(businessID, old.StaffID, newDate) {
		// The old appointment's own interval is released by the move.
		if newDate == old.Date && taken == old.Interval() {
			continue
		}
		if candidate.Overlaps(taken) {
			return nil, conflictError("interval %s-%s on %s already booked", candidate.Start, candidate.End, newDate)
		}
	}

	now := time.Now().UTC()
	prevStatus := old.Status
	old.Status = StatusCancelled
	old.CancelReason = rescheduleReason
	old.CancelledAt = &now
	old.UpdatedAt = now

	// The replacement keeps the lifecycle stage it had at the old time.
	replacement := *old
	replacement.ID = uuid.New()
	replacement.Date = newDate
	replacement.StartTime = newStart
	replacement.Status = prevStatus
	replacement.CancelReason = ""
	replacement.CancelledAt = nil
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	l.appointments[replacement.ID] = &replacement

	copied := replacement
	return &copied, nil
}

// ListByBusiness returns the business's appointments ordered by date and
// start time.
func (l *MemoryLedger) ListByBusiness(ctx context.Context, businessID uuid.UUID, opts ListOptions) ([]Appointment, error) {
	return l.list(func(a *Appointment) bool { return a.BusinessID == businessID }, opts), nil
}

// ListByCustomer returns the customer's appointments ordered by date and
// start time.
func (l *MemoryLedger) ListByCustomer(ctx context.Context, customerID uuid.UUID, opts ListOptions) ([]Appointment, error) {
	return l.list(func(a *Appointment) bool { return a.CustomerID == customerID }, opts), nil
}

func (l *MemoryLedger) list(match func(*Appointment) bool, opts ListOptions) []Appointment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Appointment
	for _, a := range l.appointments {
		if !match(a) || !matchesFilter(a, opts) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.String() < out[j].Date.String()
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
