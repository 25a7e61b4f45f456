package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*PostgresLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresLedger(mock), mock
}

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock requires the
// expectation's argument count to match the actual call.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func appointmentRows(appts ...*Appointment) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "business_id", "staff_id", "service_id", "customer_id",
		"date", "start_minute", "duration_minutes", "price_cents",
		"status", "notes", "cancellation_reason", "cancelled_at",
		"created_at", "updated_at",
	})
	for _, a := range appts {
		rows.AddRow(
			a.ID, a.BusinessID, a.StaffID, a.ServiceID, a.CustomerID,
			a.Date.Time(time.UTC), int(a.StartTime), a.DurationMinutes, a.PriceCents,
			string(a.Status), a.Notes, a.CancelReason, a.CancelledAt,
			a.CreatedAt, a.UpdatedAt,
		)
	}
	return rows
}

func TestPostgresLedgerIntervalsOn(t *testing.T) {
	ledger, mock := newMockLedger(t)
	businessID := uuid.New()

	mock.ExpectQuery(`SELECT start_minute, duration_minutes`).
		WithArgs(businessID, monday.Time(time.UTC), (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"start_minute", "duration_minutes"}).
			AddRow(600, 30).
			AddRow(720, 60))

	intervals, err := ledger.IntervalsOn(context.Background(), businessID, nil, monday)
	require.NoError(t, err)
	assert.Equal(t, []Interval{
		{Start: 600, End: 630},
		{Start: 720, End: 780},
	}, intervals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerInsert(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(appt.BusinessID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(appt.BusinessID, monday.Time(time.UTC), (*uuid.UUID)(nil), uuid.Nil, 600, 630).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, ledger.Insert(context.Background(), appt))
	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerInsertConflictOnOverlap(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(appt.BusinessID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(appt.BusinessID, monday.Time(time.UTC), (*uuid.UUID)(nil), uuid.Nil, 600, 630).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := ledger.Insert(context.Background(), appt)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerInsertConflictFromExclusionConstraint(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)

	// A racing writer on another connection slips past the check; the
	// exclusion constraint still rejects the insert.
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(appt.BusinessID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(anyArgs(6)...).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	err := ledger.Insert(context.Background(), appt)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerGetNotFound(t *testing.T) {
	ledger, mock := newMockLedger(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := ledger.Get(context.Background(), id)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerGet(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)
	appt.ID = uuid.New()
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE id`).
		WithArgs(appt.ID).
		WillReturnRows(appointmentRows(appt))

	got, err := ledger.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
	assert.Equal(t, TimeOfDay(600), got.StartTime)
	assert.Equal(t, monday, got.Date)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerTransitionCancel(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)
	appt.ID = uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FOR UPDATE`).
		WithArgs(appt.ID).
		WillReturnRows(appointmentRows(appt))
	mock.ExpectExec(`UPDATE appointments`).
		WithArgs("cancelled", "customer asked", pgxmock.AnyArg(), pgxmock.AnyArg(), appt.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	got, err := ledger.Transition(context.Background(), appt.ID, StatusCancelled, "customer asked")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerTransitionInvalid(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)
	appt.ID = uuid.New()
	appt.Status = StatusCompleted

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FOR UPDATE`).
		WithArgs(appt.ID).
		WillReturnRows(appointmentRows(appt))
	mock.ExpectRollback()

	_, err := ledger.Transition(context.Background(), appt.ID, StatusCancelled, "")
	assert.True(t, IsInvalidTransition(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerRescheduleConflictRollsBack(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)
	appt.ID = uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FOR UPDATE`).
		WithArgs(appt.ID).
		WillReturnRows(appointmentRows(appt))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(appt.BusinessID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(appt.BusinessID, monday.Time(time.UTC), (*uuid.UUID)(nil), appt.ID, 840, 870).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := ledger.Reschedule(context.Background(), appt.ID, monday, 840)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerReschedule(t *testing.T) {
	ledger, mock := newMockLedger(t)
	appt := newAppointment(uuid.New(), 600, 30)
	appt.ID = uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FOR UPDATE`).
		WithArgs(appt.ID).
		WillReturnRows(appointmentRows(appt))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(appt.BusinessID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(anyArgs(6)...).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE appointments`).
		WithArgs(rescheduleReason, pgxmock.AnyArg(), appt.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	moved, err := ledger.Reschedule(context.Background(), appt.ID, monday, 840)
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, moved.ID)
	assert.Equal(t, TimeOfDay(840), moved.StartTime)
	assert.Equal(t, StatusConfirmed, moved.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerListByBusinessFilters(t *testing.T) {
	ledger, mock := newMockLedger(t)
	businessID := uuid.New()
	appt := newAppointment(businessID, 600, 30)
	appt.ID = uuid.New()

	status := StatusConfirmed
	now := time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE business_id = \$1 AND status = \$2 AND date >= \$3`).
		WithArgs(businessID, string(status), DateOf(now).Time(time.UTC)).
		WillReturnRows(appointmentRows(appt))

	out, err := ledger.ListByBusiness(context.Background(), businessID, ListOptions{
		Status: &status,
		Scope:  ScopeUpcoming,
		Now:    now,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, appt.ID, out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
