package model

import "time"

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow bounds the acceptable arrival at a stop. Start and End are
// same-day wall-clock times formatted HH:MM or HH:MM:SS.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Stop struct {
	ID                string      `json:"id"`
	Location          Coordinate  `json:"location"`
	TimeWindow        *TimeWindow `json:"timeWindow,omitempty"`
	Priority          int         `json:"priority"`
	ServiceSec        int         `json:"serviceSec"`
	Status            StopStatus  `json:"status"`
	SequenceOriginal  int         `json:"sequenceOriginal"`
	SequenceOptimized *int        `json:"sequenceOptimized,omitempty"`
	FailureReason     string      `json:"failureReason,omitempty"`
}

// Anchors are the optional fixed endpoints of a route. They occupy matrix
// positions but carry no status or window.
type Anchors struct {
	Start         *Coordinate `json:"start,omitempty"`
	End           *Coordinate `json:"end,omitempty"`
	ReturnToStart bool        `json:"returnToStart"`
}

// ResolvedEnd returns the explicit end anchor, or the start anchor when the
// route returns to its start, or nil.
func (a Anchors) ResolvedEnd() *Coordinate {
	if a.End != nil {
		return a.End
	}
	if a.ReturnToStart && a.Start != nil {
		return a.Start
	}
	return nil
}

// Leg is one hop of the realized path. From and To are stop ids, or
// StartAnchorID / EndAnchorID for anchor positions.
type Leg struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	DistanceM   float64   `json:"distanceM"`
	DurationSec float64   `json:"durationSec"`
	WaitSec     float64   `json:"waitSec,omitempty"`
	ArriveAt    time.Time `json:"arriveAt"`
	DepartAt    time.Time `json:"departAt"`
}

const (
	StartAnchorID = "@start"
	EndAnchorID   = "@end"
)

type OptimizationResult struct {
	RouteID          string       `json:"routeId,omitempty"`
	Order            []string     `json:"order"`
	Path             []Coordinate `json:"path"`
	Legs             []Leg        `json:"legs"`
	TotalDistanceM   float64      `json:"totalDistanceM"`
	TotalDurationSec float64      `json:"totalDurationSec"`
	TotalElapsedSec  float64      `json:"totalElapsedSec"`
	Violations       []string     `json:"violations"`
	Quality          Quality      `json:"quality"`
	Mode             Mode         `json:"mode"`
	Solver           string       `json:"solver"`
	Cost             float64      `json:"cost"`
	Partial          bool         `json:"partial,omitempty"`
	ComputedAt       time.Time    `json:"computedAt"`
	Stats            *PlanStats   `json:"stats,omitempty"`
}

type Route struct {
	ID             string              `json:"id"`
	Mode           Mode                `json:"mode"`
	Status         RouteStatus         `json:"status"`
	Anchors        Anchors             `json:"anchors"`
	DepartAt       time.Time           `json:"departAt"`
	Stops          []Stop              `json:"stops"`
	LastResult     *OptimizationResult `json:"lastResult,omitempty"`
	LastVisited    *Coordinate         `json:"lastVisited,omitempty"`
	TotalStops     int                 `json:"totalStops"`
	CompletedStops int                 `json:"completedStops"`
	FailedStops    int                 `json:"failedStops"`
	SkippedStops   int                 `json:"skippedStops"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// RouteProgressSnapshot is returned from a stop transition.
type RouteProgressSnapshot struct {
	RouteID         string              `json:"routeId"`
	RouteStatus     RouteStatus         `json:"routeStatus"`
	StopID          string              `json:"stopId"`
	StopStatus      StopStatus          `json:"stopStatus"`
	TotalStops      int                 `json:"totalStops"`
	CompletedStops  int                 `json:"completedStops"`
	FailedStops     int                 `json:"failedStops"`
	SkippedStops    int                 `json:"skippedStops"`
	Reoptimized     *OptimizationResult `json:"reoptimized,omitempty"`
	ReoptimizeError string              `json:"reoptimizeError,omitempty"`
}

// PlanStats describes one solver run.
type PlanStats struct {
	RouteID      string    `json:"routeId"`
	Solver       string    `json:"solver"`
	Quality      Quality   `json:"quality"`
	N            int       `json:"n"`
	Iterations   int       `json:"iterations"`
	Nodes        int       `json:"nodes,omitempty"`
	Generations  int       `json:"generations,omitempty"`
	BaselineCost float64   `json:"baselineCost"`
	FinalCost    float64   `json:"finalCost"`
	ElapsedMs    int64     `json:"elapsedMs"`
	DeadlineHit  bool      `json:"deadlineHit"`
	Violations   int       `json:"violations"`
	At           time.Time `json:"at"`
}
