package route

import (
	"fmt"

	"routeplanner/internal/model"
)

// stopMoves is the legal stop transition table. Terminal states have no
// entry.
var stopMoves = map[model.StopStatus][]model.StopStatus{
	model.StopPending:   {model.StopInTransit, model.StopSkipped},
	model.StopInTransit: {model.StopArrived},
	model.StopArrived:   {model.StopCompleted, model.StopFailed, model.StopSkipped},
}

func canMove(from, to model.StopStatus) bool {
	for _, s := range stopMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError rejects an illegal stop or route status change. Nothing
// is modified when it is returned.
type TransitionError struct {
	RouteID string
	StopID  string // empty for route-level transitions
	From    string
	To      string
	Reason  string
}

func (e *TransitionError) Error() string {
	subject := "route " + e.RouteID
	if e.StopID != "" {
		subject = "stop " + e.StopID
	}
	msg := fmt.Sprintf("%s: cannot move from %s to %s", subject, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
