package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetDayAndWindowStart(t *testing.T) {
	s := New("rider-1")
	require.NoError(t, s.SetDay("Monday", 8*time.Hour, 17*time.Hour))

	day, err := s.GetDay("monday")
	require.NoError(t, err)
	require.True(t, day.Set())

	ref := time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC) // a Monday
	start, ok := WindowStartToday(day, ref, true)
	require.True(t, ok)
	require.Equal(t, 8, start.Hour())

	retStart, ok := WindowStartToday(day, ref, false)
	require.True(t, ok)
	require.Equal(t, 17, retStart.Hour())
}

func TestGetDay_UnsetWeekday(t *testing.T) {
	s := New("rider-1")
	day, err := s.GetDay("tuesday")
	require.NoError(t, err)
	require.False(t, day.Set())

	_, ok := WindowStartToday(day, time.Now(), true)
	require.False(t, ok)
}

func TestSetDay_UnknownWeekday(t *testing.T) {
	s := New("rider-1")
	require.Error(t, s.SetDay("someday", 0, 0))
}
