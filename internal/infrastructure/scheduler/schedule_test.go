package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{"*/15 * * * *", time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC), time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)},
		{"0 0 * * 1-5", time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"30 9,17 * * *", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC)},
		{"0 0-12/6 * * *", time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ce.Next(tt.after))
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestParseCronExpression_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *", "* * 0 * *"} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 90m")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(90*time.Minute), s.Next(t0))

	s, err = ParseSchedule("@daily")
	require.NoError(t, err)
	assert.Equal(t, EveryDayMidnight, s.String())

	s, err = ParseSchedule("0 3 * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC), s.Next(t0))

	_, err = ParseSchedule("@every -1m")
	assert.Error(t, err)
	_, err = ParseSchedule("@every soon")
	assert.Error(t, err)
}
