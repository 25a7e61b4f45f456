package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresLedger stores appointments in the relational database.
//
// Writes serialize per business with a transaction-scoped advisory lock
// held across the check-then-insert; the schema's exclusion constraint
// over (business, timeline, minute range) backstops the same guarantee
// at the storage layer. Either rejection surfaces as ConflictError.
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger creates a ledger backed by a pgx pool.
func NewPostgresLedger(db DB) *PostgresLedger {
	if db == nil {
		panic("booking: pgx pool required")
	}
	return &PostgresLedger{db: db}
}

const appointmentColumns = `id, business_id, staff_id, service_id, customer_id, date, start_minute, duration_minutes, price_cents, status, notes, cancellation_reason, cancelled_at, created_at, updated_at`

// IntervalsOn returns blocking intervals on the timeline, ordered by start.
func (l *PostgresLedger) IntervalsOn(ctx context.Context, businessID uuid.UUID, staffID *uuid.UUID, date Date) ([]Interval, error) {
	rows, err := l.db.Query(ctx, `
		SELECT start_minute, duration_minutes
		FROM appointments
		WHERE business_id = $1 AND date = $2
		  AND status IN ('pending', 'confirmed')
		  AND ($3::uuid IS NULL OR staff_id IS NULL OR staff_id = $3)
		ORDER BY start_minute ASC`,
		businessID, date.Time(time.UTC), staffID,
	)
	if err != nil {
		return nil, fmt.Errorf("booking: query intervals: %w", err)
	}
	defer rows.Close()

	var out []Interval
	for rows.Next() {
		var start, duration int
		if err := rows.Scan(&start, &duration); err != nil {
			return nil, fmt.Errorf("booking: scan interval: %w", err)
		}
		out = append(out, Interval{Start: TimeOfDay(start), End: TimeOfDay(start + duration)})
	}
	return out, rows.Err()
}

// Insert atomically checks and stores the appointment.
func (l *PostgresLedger) Insert(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("booking: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockTimeline(ctx, tx, appt.BusinessID); err != nil {
		return err
	}
	taken, err := timelineTaken(ctx, tx, appt.BusinessID, appt.StaffID, appt.Date, appt.Interval(), uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return conflictError("interval %s-%s on %s already booked", appt.StartTime, appt.EndTime(), appt.Date)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		appt.ID, appt.BusinessID, appt.StaffID, appt.ServiceID, appt.CustomerID,
		appt.Date.Time(time.UTC), int(appt.StartTime), appt.DurationMinutes, appt.PriceCents,
		string(appt.Status), appt.Notes, appt.CancelReason, appt.CancelledAt,
		appt.CreatedAt, appt.UpdatedAt,
	); err != nil {
		return mapInsertError(err, appt)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("booking: commit insert: %w", err)
	}
	return nil
}

// Get returns the appointment or NotFoundError.
func (l *PostgresLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("appointment %s", id)
		}
		return nil, fmt.Errorf("booking: load appointment: %w", err)
	}
	return appt, nil
}

// Transition applies a state-machine move under row lock.
func (l *PostgresLedger) Transition(ctx context.Context, id uuid.UUID, newStatus Status, reason string) (*Appointment, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("appointment %s", id)
		}
		return nil, fmt.Errorf("booking: load appointment: %w", err)
	}
	if err := CheckTransition(appt.Status, newStatus); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	appt.Status = newStatus
	appt.UpdatedAt = now
	if newStatus == StatusCancelled {
		appt.CancelReason = reason
		appt.CancelledAt = &now
	}
	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $1, cancellation_reason = $2, cancelled_at = $3, updated_at = $4
		WHERE id = $5`,
		string(appt.Status), appt.CancelReason, appt.CancelledAt, appt.UpdatedAt, id,
	); err != nil {
		return nil, fmt.Errorf("booking: update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit transition: %w", err)
	}
	return appt, nil
}

// Reschedule cancels the appointment and inserts the replacement inside
// one transaction, so a lost race rolls back to the original state.
func (l *PostgresLedger) Reschedule(ctx context.Context, id uuid.UUID, newDate Date, newStart TimeOfDay) (*Appointment, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	old, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("appointment %s", id)
		}
		return nil, fmt.Errorf("booking: load appointment: %w", err)
	}
	if err := CheckTransition(old.Status, StatusCancelled); err != nil {
		return nil, err
	}

	if err := lockTimeline(ctx, tx, old.BusinessID); err != nil {
		return nil, err
	}
	candidate := Interval{Start: newStart, End: newStart.Add(old.DurationMinutes)}
	taken, err := timelineTaken(ctx, tx, old.BusinessID, old.StaffID, newDate, candidate, old.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflictError("interval %s-%s on %s already booked", candidate.Start, candidate.End, newDate)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancellation_reason = $1, cancelled_at = $2, updated_at = $2
		WHERE id = $3`,
		rescheduleReason, now, id,
	); err != nil {
		return nil, fmt.Errorf("booking: cancel old appointment: %w", err)
	}

	replacement := *old
	replacement.ID = uuid.New()
	replacement.Date = newDate
	replacement.StartTime = newStart
	replacement.CancelReason = ""
	replacement.CancelledAt = nil
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		replacement.ID, replacement.BusinessID, replacement.StaffID, replacement.ServiceID, replacement.CustomerID,
		replacement.Date.Time(time.UTC), int(replacement.StartTime), replacement.DurationMinutes, replacement.PriceCents,
		string(replacement.Status), replacement.Notes, replacement.CancelReason, replacement.CancelledAt,
		replacement.CreatedAt, replacement.UpdatedAt,
	); err != nil {
		return nil, mapInsertError(err, &replacement)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit reschedule: %w", err)
	}
	return &replacement, nil
}

// ListByBusiness returns a business's appointments ordered by date and start.
func (l *PostgresLedger) ListByBusiness(ctx context.Context, businessID uuid.UUID, opts ListOptions) ([]Appointment, error) {
	return l.listBy(ctx, "business_id", businessID, opts)
}

// ListByCustomer returns a customer's appointments ordered by date and start.
func (l *PostgresLedger) ListByCustomer(ctx context.Context, customerID uuid.UUID, opts ListOptions) ([]Appointment, error) {
	return l.listBy(ctx, "customer_id", customerID, opts)
}

func (l *PostgresLedger) listBy(ctx context.Context, column string, id uuid.UUID, opts ListOptions) ([]Appointment, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + column + ` = $1`
	args := []any{id}
	if opts.Date != nil {
		args = append(args, opts.Date.Time(time.UTC))
		query += fmt.Sprintf(" AND date = $%d", len(args))
	}
	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	switch opts.Scope {
	case ScopeUpcoming:
		args = append(args, DateOf(now).Time(time.UTC))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	case ScopePast:
		args = append(args, DateOf(now).Time(time.UTC))
		query += fmt.Sprintf(" AND date < $%d", len(args))
	}
	query += " ORDER BY date ASC, start_minute ASC"

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("booking: list appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// lockTimeline serializes writers per business for the transaction.
func lockTimeline(ctx context.Context, tx pgx.Tx, businessID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, businessID.String()); err != nil {
		return fmt.Errorf("booking: lock timeline: %w", err)
	}
	return nil
}

// timelineTaken checks the candidate interval against blocking rows on
// the timeline, optionally ignoring one appointment (the reschedule
// source, whose interval is released by the move).
func timelineTaken(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, staffID *uuid.UUID, date Date, candidate Interval, ignore uuid.UUID) (bool, error) {
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE business_id = $1 AND date = $2
			  AND status IN ('pending', 'confirmed')
			  AND ($3::uuid IS NULL OR staff_id IS NULL OR staff_id = $3)
			  AND id != $4
			  AND start_minute < $6 AND start_minute + duration_minutes > $5
		)`,
		businessID, date.Time(time.UTC), staffID, ignore, int(candidate.Start), int(candidate.End),
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("booking: overlap check: %w", err)
	}
	return taken, nil
}

// mapInsertError converts constraint rejections into ConflictError.
func mapInsertError(err error, appt *Appointment) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505") {
		return conflictError("interval %s-%s on %s already booked", appt.StartTime, appt.EndTime(), appt.Date)
	}
	return fmt.Errorf("booking: insert appointment: %w", err)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var start int
	var status string
	if err := row.Scan(
		&a.ID, &a.BusinessID, &a.StaffID, &a.ServiceID, &a.CustomerID,
		&date, &start, &a.DurationMinutes, &a.PriceCents,
		&status, &a.Notes, &a.CancelReason, &a.CancelledAt,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Date = DateOf(date)
	a.StartTime = TimeOfDay(start)
	a.Status = Status(status)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}
