package validate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"routeplanner/internal/model"
)

func stop(id string, lat, lng float64) model.Stop {
	return model.Stop{ID: id, Location: model.Coordinate{Lat: lat, Lng: lng}, Priority: 5}
}

func TestCheckValidCountsAnchors(t *testing.T) {
	stops := []model.Stop{stop("a", 1, 1), stop("b", 2, 2)}
	start := &model.Coordinate{Lat: 0, Lng: 0}
	end := &model.Coordinate{Lat: 3, Lng: 3}

	n, err := Check(stops, model.Anchors{}, model.ModeFastest)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = Check(stops, model.Anchors{Start: start, ReturnToStart: true}, model.ModeShortest)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = Check(stops, model.Anchors{Start: start, End: end}, model.ModeBalanced)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = Check(nil, model.Anchors{}, "")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCheckReportsEveryOffendingStopOnce(t *testing.T) {
	inverted := stop("inv", 1, 1)
	inverted.TimeWindow = &model.TimeWindow{Start: "10:00", End: "09:00"}
	badPrio := stop("prio", 1, 1)
	badPrio.Priority = 11
	// invalid coordinate wins over the bad priority on the same stop
	both := stop("both", 91, 0)
	both.Priority = 0
	malformed := stop("mal", 1, 1)
	malformed.TimeWindow = &model.TimeWindow{Start: "9am", End: "10:00"}
	neg := stop("neg", 1, 1)
	neg.ServiceSec = -5

	stops := []model.Stop{
		stop("a", 1, 1), stop("a", 2, 2), inverted, badPrio, both,
		stop("nan", math.NaN(), 0), malformed, neg,
	}
	_, err := Check(stops, model.Anchors{}, model.ModeFastest)
	var ve *Error
	require.True(t, errors.As(err, &ve))
	require.Equal(t, []Violation{
		{StopID: "a", Reason: DuplicateID},
		{StopID: "inv", Reason: InvertedTimeWindow, Detail: "10:00>09:00"},
		{StopID: "prio", Reason: PriorityOutOfRange, Detail: "11"},
		{StopID: "both", Reason: InvalidCoordinate, Detail: "91,0"},
	}, ve.Violations[:4])
	require.Len(t, ve.Violations, 7)
	require.Equal(t, InvalidCoordinate, ve.Violations[4].Reason)
	require.Equal(t, MalformedTimeWindow, ve.Violations[5].Reason)
	require.Equal(t, NegativeServiceTime, ve.Violations[6].Reason)
	require.Contains(t, err.Error(), "a:DuplicateId")
}

func TestCheckAnchorsAndMode(t *testing.T) {
	_, err := Check([]model.Stop{stop("a", 1, 1)}, model.Anchors{Start: &model.Coordinate{Lat: 0, Lng: 200}}, "scenic")
	var ve *Error
	require.True(t, errors.As(err, &ve))
	require.Equal(t, []Violation{
		{Reason: UnknownMode, Detail: "scenic"},
		{StopID: model.StartAnchorID, Reason: InvalidCoordinate},
	}, ve.Violations)
}

func TestCheckEqualWindowBoundsAreValid(t *testing.T) {
	s := stop("a", 1, 1)
	s.TimeWindow = &model.TimeWindow{Start: "09:00", End: "09:00"}
	_, err := Check([]model.Stop{s}, model.Anchors{}, model.ModeFastest)
	require.NoError(t, err)
}
