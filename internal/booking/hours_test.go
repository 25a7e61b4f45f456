package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingHoursValidate(t *testing.T) {
	businessID := uuid.New()
	tests := []struct {
		name    string
		hours   WorkingHours
		wantErr bool
	}{
		{"valid open day", WorkingHours{BusinessID: businessID, Day: time.Monday, Open: true, OpensAt: 540, ClosesAt: 1020}, false},
		{"closed day ignores window", WorkingHours{BusinessID: businessID, Day: time.Sunday, Open: false}, false},
		{"open equals close", WorkingHours{BusinessID: businessID, Day: time.Monday, Open: true, OpensAt: 540, ClosesAt: 540}, true},
		{"open after close", WorkingHours{BusinessID: businessID, Day: time.Monday, Open: true, OpensAt: 1020, ClosesAt: 540}, true},
		{"missing business", WorkingHours{Day: time.Monday, Open: true, OpensAt: 540, ClosesAt: 1020}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hours.Validate()
			if tt.wantErr {
				assert.True(t, IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryCalendarMissingDaysAreClosed(t *testing.T) {
	calendar := NewMemoryCalendar()
	businessID := uuid.New()

	hours, err := calendar.HoursFor(context.Background(), businessID, time.Wednesday)
	require.NoError(t, err)
	assert.True(t, hours.Closed())
}

func TestMemoryCalendarUpsertReplaces(t *testing.T) {
	calendar := NewMemoryCalendar()
	businessID := uuid.New()
	ctx := context.Background()

	require.NoError(t, calendar.Upsert(ctx, WorkingHours{
		BusinessID: businessID, Day: time.Monday, Open: true, OpensAt: 540, ClosesAt: 1020,
	}))
	require.NoError(t, calendar.Upsert(ctx, WorkingHours{
		BusinessID: businessID, Day: time.Monday, Open: true, OpensAt: 600, ClosesAt: 960,
	}))

	hours, err := calendar.HoursFor(ctx, businessID, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(600), hours.OpensAt)
	assert.Equal(t, TimeOfDay(960), hours.ClosesAt)

	// Replacing with a closed entry shuts the day.
	require.NoError(t, calendar.Upsert(ctx, WorkingHours{BusinessID: businessID, Day: time.Monday}))
	hours, err = calendar.HoursFor(ctx, businessID, time.Monday)
	require.NoError(t, err)
	assert.True(t, hours.Closed())
}

func TestMemoryCalendarWeek(t *testing.T) {
	calendar := NewMemoryCalendar()
	businessID := uuid.New()
	ctx := context.Background()

	require.NoError(t, calendar.Upsert(ctx, WorkingHours{
		BusinessID: businessID, Day: time.Friday, Open: true, OpensAt: 540, ClosesAt: 1020,
	}))

	week, err := calendar.Week(ctx, businessID)
	require.NoError(t, err)
	require.Len(t, week, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		assert.Equal(t, day, week[day].Day)
		if day == time.Friday {
			assert.False(t, week[day].Closed())
		} else {
			assert.True(t, week[day].Closed())
		}
	}
}
