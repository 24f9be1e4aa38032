package opt

import (
	"math"

	"routeplanner/internal/matrix"
	"routeplanner/internal/model"
)

const eps = 1e-9

// Window is a time window in seconds since midnight.
type Window struct {
	Earliest, Latest float64
	Set              bool
}

// Problem is one single-vehicle ordering instance over matrix nodes.
// Stops lists the node indices to be ordered; anchors stay fixed.
type Problem struct {
	Cost [][]float64 // minimized edge weight, per mode
	Dist [][]float64
	Dur  [][]float64

	Start  int  // start anchor node or -1
	End    int  // end anchor node or -1; equal to Start for a round trip
	Closed bool // no anchors: the path returns to its first stop

	Stops    []int
	IDs      []string // per node
	Priority []int
	Service  []float64
	Windows  []Window

	DepartSec float64
}

// Weigh derives the per-mode edge weights from a matrix. Balanced mode
// blends distance with duration rescaled to meters by the ratio of mean
// off-diagonal distance to mean off-diagonal duration; w is the distance
// share.
func Weigh(m *matrix.Matrix, mode model.Mode, w float64) (cost, dist, dur [][]float64) {
	n := m.Len()
	cost, dist, dur = square(n), square(n), square(n)
	var sumD, sumT float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := m.At(i, j)
			dist[i][j], dur[i][j] = c.DistanceM, c.DurationSec
			sumD += c.DistanceM
			sumT += c.DurationSec
		}
	}
	scale := 1.0
	if sumT > 0 {
		scale = sumD / sumT
	}
	if w < 0 || w > 1 {
		w = 0.5
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch mode {
			case model.ModeShortest:
				cost[i][j] = dist[i][j]
			case model.ModeBalanced:
				cost[i][j] = w*dist[i][j] + (1-w)*dur[i][j]*scale
			default:
				cost[i][j] = dur[i][j]
			}
		}
	}
	return cost, dist, dur
}

func square(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}

// Path expands a stop order into the realized node path including anchors.
func (p *Problem) Path(order []int) []int {
	out := make([]int, 0, len(order)+2)
	if p.Start >= 0 {
		out = append(out, p.Start)
	}
	out = append(out, order...)
	switch {
	case p.End >= 0:
		out = append(out, p.End)
	case p.Closed && len(order) > 0:
		out = append(out, order[0])
	}
	return out
}

// PathCost sums the weighted cost along the realized path.
func (p *Problem) PathCost(order []int) float64 {
	total := 0.0
	prev := p.Start
	for _, v := range order {
		if prev >= 0 {
			total += p.Cost[prev][v]
		}
		prev = v
	}
	if prev >= 0 {
		switch {
		case p.End >= 0:
			total += p.Cost[prev][p.End]
		case p.Closed && len(order) > 0:
			total += p.Cost[prev][order[0]]
		}
	}
	return total
}

// Visit is one position of a simulated schedule.
type Visit struct {
	Node   int
	Arrive float64
	Wait   float64
	Depart float64
	Late   bool
}

// Schedule simulates driving the path from DepartSec. Arriving early waits
// for the window to open; arriving after it closes marks the stop late.
type Schedule struct {
	Visits []Visit
	Late   []int // stop nodes whose window was missed
}

func (p *Problem) Schedule(order []int) Schedule {
	path := p.Path(order)
	s := Schedule{Visits: make([]Visit, len(path))}
	t := p.DepartSec
	for k, v := range path {
		arrive := t
		if k > 0 {
			arrive = t + p.Dur[path[k-1]][v]
		}
		vis := Visit{Node: v, Arrive: arrive, Depart: arrive}
		if p.isStopPosition(k, len(path)) {
			if w := p.Windows[v]; w.Set {
				if arrive < w.Earliest {
					vis.Wait = w.Earliest - arrive
				} else if arrive > w.Latest+eps {
					vis.Late = true
					s.Late = append(s.Late, v)
				}
			}
			vis.Depart = arrive + vis.Wait + p.Service[v]
		}
		s.Visits[k] = vis
		t = vis.Depart
	}
	return s
}

// LateCount is Schedule(order).Late without allocating the visit list.
func (p *Problem) LateCount(order []int) int {
	late := 0
	t := p.DepartSec
	prev := p.Start
	for k, v := range order {
		arrive := t
		if prev >= 0 {
			arrive = t + p.Dur[prev][v]
		} else if k > 0 {
			arrive = t + p.Dur[order[k-1]][v]
		}
		if w := p.Windows[v]; w.Set {
			if arrive < w.Earliest {
				arrive = w.Earliest
			} else if arrive > w.Latest+eps {
				late++
			}
		}
		t = arrive + p.Service[v]
		prev = v
	}
	return late
}

// isStopPosition excludes anchor positions and the closing return of a
// closed tour.
func (p *Problem) isStopPosition(k, n int) bool {
	if k == 0 && p.Start >= 0 {
		return false
	}
	if k == n-1 && (p.End >= 0 || (p.Closed && n > 1)) {
		return false
	}
	return true
}

// penalty exceeds the cost of any path so one missed window outweighs every
// possible distance saving.
func (p *Problem) penalty() float64 {
	total := 0.0
	for i := range p.Cost {
		for j := range p.Cost[i] {
			total += p.Cost[i][j]
		}
	}
	return total + 1
}

func (p *Problem) hasWindows() bool {
	for _, v := range p.Stops {
		if p.Windows[v].Set {
			return true
		}
	}
	return false
}

// better orders candidate next stops on equal cost: higher priority first,
// then lower id.
func (p *Problem) better(a, b int) bool {
	if p.Priority[a] != p.Priority[b] {
		return p.Priority[a] > p.Priority[b]
	}
	return p.IDs[a] < p.IDs[b]
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) <= eps*math.Max(1, math.Abs(a)) }
