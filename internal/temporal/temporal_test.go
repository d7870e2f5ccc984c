package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("05/06/25")
	require.NoError(t, err)
	assert.Equal(t, Date{Day: 5, Month: 6, Year: 2025}, d)

	d, err = ParseDate(" 31/12/99 ")
	require.NoError(t, err)
	assert.Equal(t, Date{Day: 31, Month: 12, Year: 2099}, d)
}

func TestParseDateRejectsMonthDayOrder(t *testing.T) {
	// 31/13/25 only makes sense as month/day input; day/month order is required.
	_, err := ParseDate("31/13/25")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "month 13")
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "5-6-25", "05/06", "aa/bb/cc", "0/6/25", "32/6/25", "05/06/2025"} {
		_, err := ParseDate(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseClockMeridiem(t *testing.T) {
	cases := map[string]Clock{
		"09:00 AM": {Hour: 9, Minute: 0},
		"12:00 AM": {Hour: 0, Minute: 0},   // midnight normalizes to 0
		"12:30 PM": {Hour: 12, Minute: 30}, // noon stays 12
		"05:15 PM": {Hour: 17, Minute: 15},
		"11:59 pm": {Hour: 23, Minute: 59},
		"14:30":    {Hour: 14, Minute: 30},
		"0:05":     {Hour: 0, Minute: 5},
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "9", "25:00", "13:00 PM", "00:00 PM", "09:61", "9:00 XM"} {
		_, err := ParseClock(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestToUTCSubtractsFixedOffset(t *testing.T) {
	d, err := ParseDate("05/06/25")
	require.NoError(t, err)
	c, err := ParseClock("09:00 AM")
	require.NoError(t, err)

	got := ToUTC(d, c)
	want := time.Date(2025, 6, 5, 3, 30, 0, 0, time.UTC)
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestShouldSchedule(t *testing.T) {
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

	assert.False(t, ShouldSchedule(now.Add(5*time.Minute), now), "5 minutes out posts immediately")
	assert.True(t, ShouldSchedule(now.Add(15*time.Minute), now), "15 minutes out is scheduled")
	assert.False(t, ShouldSchedule(now.Add(-time.Hour), now), "the past posts immediately")
	assert.False(t, ShouldSchedule(now.Add(10*time.Minute), now), "the threshold itself is immediate")
}
