package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresCalendar stores weekly working hours in the relational
// database, one row per (business, day-of-week).
type PostgresCalendar struct {
	db DB
}

// NewPostgresCalendar creates a calendar backed by a pgx pool.
func NewPostgresCalendar(db DB) *PostgresCalendar {
	if db == nil {
		panic("booking: pgx pool required")
	}
	return &PostgresCalendar{db: db}
}

// HoursFor returns the stored entry, or a closed default when the day
// has never been configured.
func (c *PostgresCalendar) HoursFor(ctx context.Context, businessID uuid.UUID, day time.Weekday) (WorkingHours, error) {
	if day < time.Sunday || day > time.Saturday {
		return WorkingHours{}, validationError("unknown day of week %d", day)
	}
	row := c.db.QueryRow(ctx, `
		SELECT business_id, day_of_week, open, opens_at, closes_at
		FROM working_hours
		WHERE business_id = $1 AND day_of_week = $2`,
		businessID, int(day),
	)
	hours, err := scanWorkingHours(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkingHours{BusinessID: businessID, Day: day}, nil
		}
		return WorkingHours{}, fmt.Errorf("booking: load working hours: %w", err)
	}
	return hours, nil
}

// Week returns all seven entries ordered Sunday..Saturday, filling
// unconfigured days as closed.
func (c *PostgresCalendar) Week(ctx context.Context, businessID uuid.UUID) ([]WorkingHours, error) {
	rows, err := c.db.Query(ctx, `
		SELECT business_id, day_of_week, open, opens_at, closes_at
		FROM working_hours
		WHERE business_id = $1
		ORDER BY day_of_week ASC`,
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("booking: list working hours: %w", err)
	}
	defer rows.Close()

	week := make([]WorkingHours, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		week[day] = WorkingHours{BusinessID: businessID, Day: day}
	}
	for rows.Next() {
		hours, err := scanWorkingHours(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan working hours: %w", err)
		}
		week[hours.Day] = hours
	}
	return week, rows.Err()
}

// Upsert validates and replaces the entry for the hours' day.
func (c *PostgresCalendar) Upsert(ctx context.Context, hours WorkingHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}
	if _, err := c.db.Exec(ctx, `
		INSERT INTO working_hours (business_id, day_of_week, open, opens_at, closes_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, day_of_week)
		DO UPDATE SET open = EXCLUDED.open, opens_at = EXCLUDED.opens_at, closes_at = EXCLUDED.closes_at`,
		hours.BusinessID, int(hours.Day), hours.Open, int(hours.OpensAt), int(hours.ClosesAt),
	); err != nil {
		return fmt.Errorf("booking: upsert working hours: %w", err)
	}
	return nil
}

func scanWorkingHours(row pgx.Row) (WorkingHours, error) {
	var h WorkingHours
	var day, opens, closes int
	if err := row.Scan(&h.BusinessID, &day, &h.Open, &opens, &closes); err != nil {
		return WorkingHours{}, err
	}
	h.Day = time.Weekday(day)
	h.OpensAt = TimeOfDay(opens)
	h.ClosesAt = TimeOfDay(closes)
	return h, nil
}
