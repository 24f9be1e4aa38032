// Package validate checks a stop set before any search runs. Problems are
// reported in full and never corrected.
package validate

import (
	"fmt"
	"strings"

	"routeplanner/internal/geo"
	"routeplanner/internal/model"
)

type Reason string

const (
	DuplicateID         Reason = "DuplicateId"
	MissingID           Reason = "MissingId"
	InvalidCoordinate   Reason = "InvalidCoordinate"
	MalformedTimeWindow Reason = "MalformedTimeWindow"
	InvertedTimeWindow  Reason = "InvertedTimeWindow"
	PriorityOutOfRange  Reason = "PriorityOutOfRange"
	NegativeServiceTime Reason = "NegativeServiceTime"
	UnknownMode         Reason = "UnknownMode"
)

const (
	MinPriority = 1
	MaxPriority = 10
)

// Violation names one offending stop. Anchor problems use
// model.StartAnchorID or model.EndAnchorID; an unknown mode has no stop id.
type Violation struct {
	StopID string `json:"stopId"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Error carries every violation found in one pass.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s:%s", v.StopID, v.Reason))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Check validates stops, anchors and mode and returns the instance size:
// stops plus distinct anchor positions present. Each stop gets at most one
// violation, the first failing check in order.
func Check(stops []model.Stop, anchors model.Anchors, mode model.Mode) (int, error) {
	var out []Violation
	if mode != "" && !mode.Valid() {
		out = append(out, Violation{Reason: UnknownMode, Detail: string(mode)})
	}
	if anchors.Start != nil && !geo.Valid(*anchors.Start) {
		out = append(out, Violation{StopID: model.StartAnchorID, Reason: InvalidCoordinate})
	}
	if anchors.End != nil && !geo.Valid(*anchors.End) {
		out = append(out, Violation{StopID: model.EndAnchorID, Reason: InvalidCoordinate})
	}

	seen := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		if v, bad := checkStop(s, seen); bad {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		return 0, &Error{Violations: out}
	}
	return len(stops) + AnchorCount(anchors), nil
}

// AnchorCount is the number of matrix positions the anchors occupy. A
// round trip back to the start anchor reuses its position.
func AnchorCount(a model.Anchors) int {
	n := 0
	if a.Start != nil {
		n++
	}
	if a.End != nil {
		n++
	}
	return n
}

func checkStop(s model.Stop, seen map[string]struct{}) (Violation, bool) {
	if strings.TrimSpace(s.ID) == "" {
		return Violation{Reason: MissingID}, true
	}
	if _, dup := seen[s.ID]; dup {
		return Violation{StopID: s.ID, Reason: DuplicateID}, true
	}
	seen[s.ID] = struct{}{}
	if !geo.Valid(s.Location) {
		return Violation{StopID: s.ID, Reason: InvalidCoordinate, Detail: fmt.Sprintf("%v,%v", s.Location.Lat, s.Location.Lng)}, true
	}
	if s.TimeWindow != nil {
		earliest, latest, err := s.TimeWindow.Bounds()
		if err != nil {
			return Violation{StopID: s.ID, Reason: MalformedTimeWindow, Detail: err.Error()}, true
		}
		if earliest > latest {
			return Violation{StopID: s.ID, Reason: InvertedTimeWindow, Detail: s.TimeWindow.Start + ">" + s.TimeWindow.End}, true
		}
	}
	if s.Priority < MinPriority || s.Priority > MaxPriority {
		return Violation{StopID: s.ID, Reason: PriorityOutOfRange, Detail: fmt.Sprint(s.Priority)}, true
	}
	if s.ServiceSec < 0 {
		return Violation{StopID: s.ID, Reason: NegativeServiceTime}, true
	}
	return Violation{}, false
}
