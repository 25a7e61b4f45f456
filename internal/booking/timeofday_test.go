package booking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), tod)
	assert.Equal(t, "09:30", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.True(t, IsValidation(err))

	_, err = ParseTimeOfDay("not a time")
	assert.True(t, IsValidation(err))
}

func TestTimeOfDayJSONRoundTrip(t *testing.T) {
	payload := struct {
		Start TimeOfDay `json:"start"`
	}{Start: 945}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"15:45"}`, string(raw))

	var decoded struct {
		Start TimeOfDay `json:"start"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, payload.Start, decoded.Start)
}

func TestParseDate(t *testing.T) {
	date, err := ParseDate("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", date.String())
	assert.Equal(t, "Monday", date.Weekday().String())

	_, err = ParseDate("02/06/2025")
	assert.True(t, IsValidation(err))
}

func TestIntervalOverlaps(t *testing.T) {
	appt := Interval{Start: 600, End: 630} // 10:00-10:30

	tests := []struct {
		name      string
		candidate Interval
		want      bool
	}{
		{"ends exactly at start", Interval{Start: 570, End: 600}, false},
		{"starts exactly at end", Interval{Start: 630, End: 660}, false},
		{"straddles start", Interval{Start: 585, End: 615}, true},
		{"identical", Interval{Start: 600, End: 630}, true},
		{"contains", Interval{Start: 570, End: 660}, true},
		{"inside", Interval{Start: 610, End: 620}, true},
		{"disjoint before", Interval{Start: 480, End: 510}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.candidate.Overlaps(appt))
		})
	}
}
