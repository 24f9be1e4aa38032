package model

type StopStatus string

const (
	StopPending   StopStatus = "pending"
	StopInTransit StopStatus = "in_transit"
	StopArrived   StopStatus = "arrived"
	StopCompleted StopStatus = "completed"
	StopFailed    StopStatus = "failed"
	StopSkipped   StopStatus = "skipped"
)

// Terminal reports whether no further transition is possible.
func (s StopStatus) Terminal() bool {
	return s == StopCompleted || s == StopFailed || s == StopSkipped
}

type RouteStatus string

const (
	RoutePlanned    RouteStatus = "planned"
	RouteInProgress RouteStatus = "in_progress"
	RouteCompleted  RouteStatus = "completed"
	RouteCanceled   RouteStatus = "canceled"
)

func (s RouteStatus) Terminal() bool {
	return s == RouteCompleted || s == RouteCanceled
}

// Mode selects what the solvers minimize.
type Mode string

const (
	ModeFastest  Mode = "fastest"
	ModeShortest Mode = "shortest"
	ModeBalanced Mode = "balanced"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeFastest, ModeShortest, ModeBalanced:
		return true
	}
	return false
}

// Quality reports how much search completed before a result was returned.
type Quality string

const (
	QualityOptimal     Quality = "optimal"
	QualityImproved    Quality = "improved"
	QualityApproximate Quality = "approximate"
)
