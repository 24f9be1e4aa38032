package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:00", 9 * 3600, true},
		{"09:05:30", 9*3600 + 5*60 + 30, true},
		{"00:00", 0, true},
		{"23:59:59", 86399, true},
		{"24:00", 0, false},
		{"9:00", 0, false},
		{"09:60", 0, false},
		{"nope", 0, false},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if !c.ok {
			require.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestAnchorsResolvedEnd(t *testing.T) {
	start := &Coordinate{Lat: 1, Lng: 2}
	end := &Coordinate{Lat: 3, Lng: 4}

	require.Nil(t, Anchors{Start: start}.ResolvedEnd())
	require.Equal(t, start, Anchors{Start: start, ReturnToStart: true}.ResolvedEnd())
	require.Equal(t, end, Anchors{Start: start, End: end, ReturnToStart: true}.ResolvedEnd())
	require.Nil(t, Anchors{ReturnToStart: true}.ResolvedEnd())
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StopPending.Terminal())
	require.False(t, StopArrived.Terminal())
	require.True(t, StopCompleted.Terminal())
	require.True(t, StopFailed.Terminal())
	require.True(t, StopSkipped.Terminal())
	require.True(t, RouteCanceled.Terminal())
	require.False(t, RouteInProgress.Terminal())
}
