package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkingHours is the open/closed window for one (business, day-of-week)
// pair. When Open is false the window times are ignored. An open window
// with OpensAt == ClosesAt is degenerate and treated as closed.
type WorkingHours struct {
	BusinessID uuid.UUID    `json:"business_id"`
	Day        time.Weekday `json:"day_of_week"`
	Open       bool         `json:"open"`
	OpensAt    TimeOfDay    `json:"opens_at"`
	ClosesAt   TimeOfDay    `json:"closes_at"`
}

// Closed reports whether the business takes no bookings on this day.
func (h WorkingHours) Closed() bool {
	return !h.Open || h.OpensAt >= h.ClosesAt
}

// Validate enforces the open-window invariant for upserts.
func (h WorkingHours) Validate() error {
	if h.BusinessID == uuid.Nil {
		return validationError("working hours require a business id")
	}
	if h.Day < time.Sunday || h.Day > time.Saturday {
		return validationError("unknown day of week %d", h.Day)
	}
	if h.Open && h.OpensAt >= h.ClosesAt {
		return validationError("opening time %s must be before closing time %s", h.OpensAt, h.ClosesAt)
	}
	return nil
}

// Calendar looks up and maintains a business's weekly schedule. Exactly
// one entry exists per (business, day-of-week); Upsert replaces, never
// appends.
type Calendar interface {
	// HoursFor returns the schedule entry for the day. Days with no
	// stored entry are closed.
	HoursFor(ctx context.Context, businessID uuid.UUID, day time.Weekday) (WorkingHours, error)
	// Week returns all seven entries ordered Sunday..Saturday.
	Week(ctx context.Context, businessID uuid.UUID) ([]WorkingHours, error)
	// Upsert validates and replaces the entry for the hours' day.
	Upsert(ctx context.Context, hours WorkingHours) error
}

// MemoryCalendar is an in-memory Calendar used by tests and demo mode.
type MemoryCalendar struct {
	mu    sync.RWMutex
	weeks map[uuid.UUID]*[7]WorkingHours
}

// NewMemoryCalendar creates an empty in-memory calendar.
func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{weeks: make(map[uuid.UUID]*[7]WorkingHours)}
}

// HoursFor returns the stored entry, or a closed default.
func (c *MemoryCalendar) HoursFor(ctx context.Context, businessID uuid.UUID, day time.Weekday) (WorkingHours, error) {
	if day < time.Sunday || day > time.Saturday {
		return WorkingHours{}, validationError("unknown day of week %d", day)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if week, ok := c.weeks[businessID]; ok {
		return week[day], nil
	}
	return WorkingHours{BusinessID: businessID, Day: day}, nil
}

// Week returns the stored week, filling missing days as closed.
func (c *MemoryCalendar) Week(ctx context.Context, businessID uuid.UUID) ([]WorkingHours, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]WorkingHours, 7)
	stored := c.weeks[businessID]
	for day := time.Sunday; day <= time.Saturday; day++ {
		if stored != nil {
			out[day] = stored[day]
		} else {
			out[day] = WorkingHours{BusinessID: businessID, Day: day}
		}
	}
	return out, nil
}

// Upsert replaces the entry for the hours' day.
func (c *MemoryCalendar) Upsert(ctx context.Context, hours WorkingHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	week, ok := c.weeks[hours.BusinessID]
	if !ok {
		week = &[7]WorkingHours{}
		for day := time.Sunday; day <= time.Saturday; day++ {
			week[day] = WorkingHours{BusinessID: hours.BusinessID, Day: day}
		}
		c.weeks[hours.BusinessID] = week
	}
	week[hours.Day] = hours
	return nil
}
