package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/keremoktener/zentra/pkg/logging"
)

// ActorRole identifies who is asking for a lifecycle change.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleBusiness ActorRole = "business"
)

// Actor is the externally supplied identity behind a coordinator call.
// The engine holds no session state of its own.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role ActorRole `json:"role"`
}

// BookRequest describes a booking attempt.
type BookRequest struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	StaffID    *uuid.UUID
	CustomerID uuid.UUID
	Date       Date
	Start      TimeOfDay
	Notes      string
	// IdempotencyKey makes client retries safe. Optional.
	IdempotencyKey string
}

// Coordinator orchestrates the resolver, ledger and state machine behind
// the public booking operations. It is the single writer enforcing the
// non-overlap invariant; every new time, including reschedules, goes
// through the ledger's overlap-checked insert.
type Coordinator struct {
	calendar    Calendar
	services    ServiceStore
	ledger      Ledger
	resolver    *Resolver
	idempotency *IdempotencyStore
	metrics     *Metrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewCoordinator wires the engine together. idempotency and metrics may
// be nil; the coordinator then runs without them.
func NewCoordinator(calendar Calendar, services ServiceStore, ledger Ledger, opts ResolverOptions, idempotency *IdempotencyStore, metrics *Metrics, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		calendar:    calendar,
		services:    services,
		ledger:      ledger,
		resolver:    NewResolver(calendar, ledger, opts),
		idempotency: idempotency,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the coordinator's clock. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// GetAvailability returns the bookable start times for the service on
// the date, using the current time as "now". Read-only; it may observe a
// slightly stale ledger because Book re-validates at write time anyway.
func (c *Coordinator) GetAvailability(ctx context.Context, businessID, serviceID uuid.UUID, staffID *uuid.UUID, date Date) ([]TimeOfDay, error) {
	svc, err := c.services.GetService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	slots, err := c.resolver.AvailableSlots(ctx, businessID, svc, staffID, date, c.now())
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveAvailability(len(slots))
	return slots, nil
}

// Book validates the requested slot against the working-hours window and
// the clock, then hands the overlap decision to the ledger's atomic
// insert. A lost race returns ConflictError with no partial effects; the
// caller re-queries availability.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	svc, err := c.services.GetService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, validationError("service %s is inactive", svc.ID)
	}
	if req.CustomerID == uuid.Nil {
		return nil, validationError("booking requires a customer id")
	}
	if err := c.checkSlotFits(ctx, req.BusinessID, req.Date, req.Start, svc.DurationMinutes); err != nil {
		return nil, err
	}

	claimed, existingID, err := c.idempotency.Claim(ctx, req.BusinessID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if existingID != uuid.Nil {
			return c.ledger.Get(ctx, existingID)
		}
		return nil, conflictError("request with idempotency key %q still in flight", req.IdempotencyKey)
	}

	appt := &Appointment{
		ID:              uuid.New(),
		BusinessID:      req.BusinessID,
		StaffID:         req.StaffID,
		ServiceID:       svc.ID,
		CustomerID:      req.CustomerID,
		Date:            req.Date,
		StartTime:       req.Start,
		DurationMinutes: svc.DurationMinutes,
		PriceCents:      svc.PriceCents,
		Status:          InitialStatus(svc.InstantBook),
		Notes:           req.Notes,
	}
	if err := c.ledger.Insert(ctx, appt); err != nil {
		if relErr := c.idempotency.Release(ctx, req.BusinessID, req.IdempotencyKey); relErr != nil {
			c.logger.Warn("failed to release idempotency key", "error", relErr)
		}
		if IsConflict(err) {
			c.metrics.ObserveConflict()
		}
		return nil, err
	}
	if err := c.idempotency.Resolve(ctx, req.BusinessID, req.IdempotencyKey, appt.ID); err != nil {
		c.logger.Warn("failed to resolve idempotency key", "error", err)
	}

	c.metrics.ObserveBooking(string(appt.Status))
	c.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"date", appt.Date.String(),
		"start", appt.StartTime.String(),
		"status", appt.Status,
	)
	return appt, nil
}

// Cancel moves the appointment to cancelled, recording who asked and why.
func (c *Coordinator) Cancel(ctx context.Context, appointmentID uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	if err := c.authorize(ctx, appointmentID, actor, StatusCancelled); err != nil {
		return nil, err
	}
	appt, err := c.ledger.Transition(ctx, appointmentID, StatusCancelled, reason)
	if err != nil {
		return nil, err
	}
	c.logger.Info("appointment cancelled", "appointment_id", appt.ID, "actor_role", actor.Role, "reason", reason)
	return appt, nil
}

// Confirm is the business approving a pending booking.
func (c *Coordinator) Confirm(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*Appointment, error) {
	if err := c.authorizeBusiness(ctx, appointmentID, actor, "confirm"); err != nil {
		return nil, err
	}
	return c.ledger.Transition(ctx, appointmentID, StatusConfirmed, "")
}

// Complete marks a confirmed appointment as done.
func (c *Coordinator) Complete(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*Appointment, error) {
	if err := c.authorizeBusiness(ctx, appointmentID, actor, "complete"); err != nil {
		return nil, err
	}
	return c.ledger.Transition(ctx, appointmentID, StatusCompleted, "")
}

// authorizeBusiness checks the actor is the appointment's business.
func (c *Coordinator) authorizeBusiness(ctx context.Context, appointmentID uuid.UUID, actor Actor, action string) error {
	if actor.Role != RoleBusiness {
		return validationError("only the business may %s an appointment", action)
	}
	appt, err := c.ledger.Get(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !c.mayMutate(appt, actor) {
		return validationError("actor %s may not %s appointment %s", actor.ID, action, appointmentID)
	}
	return nil
}

// RescheduleRequest describes a move to a new time.
type RescheduleRequest struct {
	AppointmentID uuid.UUID
	Date          Date
	Start         TimeOfDay
	Actor         Actor
	// IdempotencyKey makes client retries safe. Optional.
	IdempotencyKey string
}

// Reschedule atomically cancels the appointment and books the new time.
// When the new slot is unavailable the original is untouched and
// ConflictError is returned.
func (c *Coordinator) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	existing, err := c.ledger.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !c.mayMutate(existing, req.Actor) {
		return nil, validationError("actor %s may not reschedule appointment %s", req.Actor.ID, req.AppointmentID)
	}
	if err := c.checkSlotFits(ctx, existing.BusinessID, req.Date, req.Start, existing.DurationMinutes); err != nil {
		return nil, err
	}

	claimed, existingID, err := c.idempotency.Claim(ctx, existing.BusinessID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if existingID != uuid.Nil {
			return c.ledger.Get(ctx, existingID)
		}
		return nil, conflictError("request with idempotency key %q still in flight", req.IdempotencyKey)
	}

	appt, err := c.ledger.Reschedule(ctx, req.AppointmentID, req.Date, req.Start)
	if err != nil {
		if relErr := c.idempotency.Release(ctx, existing.BusinessID, req.IdempotencyKey); relErr != nil {
			c.logger.Warn("failed to release idempotency key", "error", relErr)
		}
		if IsConflict(err) {
			c.metrics.ObserveConflict()
		}
		return nil, err
	}
	if err := c.idempotency.Resolve(ctx, existing.BusinessID, req.IdempotencyKey, appt.ID); err != nil {
		c.logger.Warn("failed to resolve idempotency key", "error", err)
	}

	c.logger.Info("appointment rescheduled",
		"old_appointment_id", req.AppointmentID,
		"new_appointment_id", appt.ID,
		"date", appt.Date.String(),
		"start", appt.StartTime.String(),
	)
	return appt, nil
}

// ListForBusiness is the read projection behind the business's
// appointments screen.
func (c *Coordinator) ListForBusiness(ctx context.Context, businessID uuid.UUID, opts ListOptions) ([]Appointment, error) {
	if opts.Now.IsZero() {
		opts.Now = c.now()
	}
	return c.ledger.ListByBusiness(ctx, businessID, opts)
}

// ListForCustomer is the read projection behind "my bookings".
func (c *Coordinator) ListForCustomer(ctx context.Context, customerID uuid.UUID, opts ListOptions) ([]Appointment, error) {
	if opts.Now.IsZero() {
		opts.Now = c.now()
	}
	return c.ledger.ListByCustomer(ctx, customerID, opts)
}

// checkSlotFits re-derives the slot constraints the resolver applies:
// inside the open window, full duration before closing, and not in the
// past when the date is today.
func (c *Coordinator) checkSlotFits(ctx context.Context, businessID uuid.UUID, date Date, start TimeOfDay, durationMinutes int) error {
	if date.IsZero() {
		return validationError("booking requires a date")
	}
	hours, err := c.calendar.HoursFor(ctx, businessID, date.Weekday())
	if err != nil {
		return err
	}
	if hours.Closed() {
		return validationError("business is closed on %s", date.Weekday())
	}
	if start < hours.OpensAt || start.Add(durationMinutes) > hours.ClosesAt {
		return validationError("slot %s does not fit the %s-%s window", start, hours.OpensAt, hours.ClosesAt)
	}
	if cutoff := c.resolver.sameDayCutoff(date, c.now()); cutoff != nil && start <= *cutoff {
		return validationError("slot %s on %s is in the past", start, date)
	}
	return nil
}

// authorize checks the actor may drive the appointment to newStatus.
func (c *Coordinator) authorize(ctx context.Context, appointmentID uuid.UUID, actor Actor, newStatus Status) error {
	appt, err := c.ledger.Get(ctx, appointmentID)
	if err != nil {
		return err
	}
	if newStatus == StatusCancelled && !c.mayMutate(appt, actor) {
		return validationError("actor %s may not cancel appointment %s", actor.ID, appointmentID)
	}
	return nil
}

// mayMutate allows the booking customer and the business to act on an
// appointment.
func (c *Coordinator) mayMutate(appt *Appointment, actor Actor) bool {
	switch actor.Role {
	case RoleBusiness:
		return actor.ID == uuid.Nil || actor.ID == appt.BusinessID
	case RoleCustomer:
		return actor.ID == appt.CustomerID
	}
	return false
}
