package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultGranularityMinutes is the spacing between candidate start times.
const DefaultGranularityMinutes = 15

// ResolverOptions tune slot generation.
type ResolverOptions struct {
	// GranularityMinutes is the step between candidate starts.
	GranularityMinutes int
	// MinLeadTime pushes the earliest same-day slot past now.
	MinLeadTime time.Duration
	// Location is the business's local timezone, the single frame of
	// reference for "today" and "now". Defaults to time.Local.
	Location *time.Location
}

func (o ResolverOptions) withDefaults() ResolverOptions {
	if o.GranularityMinutes <= 0 {
		o.GranularityMinutes = DefaultGranularityMinutes
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Resolver computes bookable start times from the weekly calendar and
// the ledger. Slots are never persisted; every query recomputes them.
type Resolver struct {
	calendar Calendar
	ledger   Ledger
	opts     ResolverOptions
}

// NewResolver creates a resolver over a calendar and ledger.
func NewResolver(calendar Calendar, ledger Ledger, opts ResolverOptions) *Resolver {
	return &Resolver{calendar: calendar, ledger: ledger, opts: opts.withDefaults()}
}

// AvailableSlots returns the ordered start times on the date at which
// the service still fits:
//
//  1. closed days yield no slots;
//  2. candidates step from open to close-duration inclusive;
//  3. candidates overlapping a pending/confirmed interval on the
//     timeline are dropped;
//  4. when the date is today, candidates at or before now (plus the
//     configured lead time) are dropped.
func (r *Resolver) AvailableSlots(ctx context.Context, businessID uuid.UUID, svc *Service, staffID *uuid.UUID, date Date, now time.Time) ([]TimeOfDay, error) {
	if svc == nil {
		return nil, notFoundError("service")
	}
	if !svc.Active {
		return nil, validationError("service %s is inactive", svc.ID)
	}
	if svc.DurationMinutes <= 0 {
		return nil, validationError("service duration must be positive, got %d", svc.DurationMinutes)
	}

	hours, err := r.calendar.HoursFor(ctx, businessID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if hours.Closed() {
		return []TimeOfDay{}, nil
	}

	taken, err := r.ledger.IntervalsOn(ctx, businessID, staffID, date)
	if err != nil {
		return nil, err
	}

	cutoff := r.sameDayCutoff(date, now)

	slots := []TimeOfDay{}
	lastStart := hours.ClosesAt.Add(-svc.DurationMinutes)
	for start := hours.OpensAt; start <= lastStart; start = start.Add(r.opts.GranularityMinutes) {
		if cutoff != nil && start <= *cutoff {
			continue
		}
		candidate := Interval{Start: start, End: start.Add(svc.DurationMinutes)}
		if overlapsAny(candidate, taken) {
			continue
		}
		slots = append(slots, start)
	}
	return slots, nil
}

// sameDayCutoff returns the latest unbookable start on the queried date,
// or nil when the date is not today in the business's timezone.
func (r *Resolver) sameDayCutoff(date Date, now time.Time) *TimeOfDay {
	local := now.In(r.opts.Location)
	if DateOf(local) != date {
		return nil
	}
	lead := local.Add(r.opts.MinLeadTime)
	if DateOf(lead) != date {
		// The lead window reaches past midnight; no start left today
		// clears it.
		endOfDay := TimeOfDay(24 * 60)
		return &endOfDay
	}
	cutoff := TimeOfDayFrom(lead)
	return &cutoff
}

// overlapsAny scans the ordered taken intervals for an intersection.
func overlapsAny(candidate Interval, taken []Interval) bool {
	for _, t := range taken {
		if t.Start >= candidate.End {
			break
		}
		if candidate.Overlaps(t) {
			return true
		}
	}
	return false
}
