package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2022, time.March, 25, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2022-03-25", "25-03-2022", " 2022-03-25 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	for _, in := range []string{"", "2022/03/25", "32-01-2022", "2022-13-01", "tomorrow"} {
		_, err := ParseDate(in)
		assert.Error(t, err, in)
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2022-03-22", "2022-03-25", 3},
		{"2022-03-23", "2022-03-25", 2},
		{"2022-03-24", "2022-03-25", 1},
		{"2022-03-25", "2022-03-25", 0},
		{"2022-03-27", "2022-03-25", -2},
		{"2022-02-24", "2022-03-01", 5},
		{"2023-12-30", "2024-01-02", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysBetween(mustDate(tt.from), mustDate(tt.to)), "%s -> %s", tt.from, tt.to)
	}
}

func TestDaysBetweenLongSpans(t *testing.T) {
	assert.Equal(t, 190657, DaysBetween(mustDate("1500-01-01"), mustDate("2022-01-01")))
	assert.Equal(t, -190657, DaysBetween(mustDate("2022-01-01"), mustDate("1500-01-01")))
	assert.Equal(t, 120682, DaysBetween(mustDate("1969-12-31"), mustDate("2300-06-01")))
}

func TestDaysBetweenIgnoresClock(t *testing.T) {
	madrid := time.FixedZone("CET", 3600)
	from := time.Date(2022, time.March, 22, 23, 30, 0, 0, madrid)
	to := time.Date(2022, time.March, 25, 0, 15, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(from, to))
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2022, time.April, 28, 17, 45, 3, 99, time.UTC)
	assert.Equal(t, "2022-04-28", FormatDate(DateOnly(in)))
	assert.Zero(t, DateOnly(in).Hour())
}
