package tracking

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Association policy names accepted by NewAssociator and the tuning file.
const (
	PolicyGreedy    = "greedy"
	PolicyHungarian = "hungarian"
)

// ErrUnknownPolicy is returned by NewAssociator for an unrecognised policy.
var ErrUnknownPolicy = errors.New("tracking: unknown association policy")

// Associator matches one frame's detections against the predicted positions
// of the active tracks. The result has one entry per detection: the index
// into predicted it claims, or -1 to spawn a new track. Only pairs whose
// Euclidean distance is strictly less than gate may be matched, and each
// predicted index is claimed at most once.
type Associator interface {
	Associate(detections, predicted []Point, gate float64) []int
	Name() string
}

// NewAssociator returns the associator for policy. The empty string selects
// the greedy default.
func NewAssociator(policy string) (Associator, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", PolicyGreedy:
		return GreedyAssociator{}, nil
	case PolicyHungarian:
		return HungarianAssociator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// GreedyAssociator walks detections in detector order; each takes the
// nearest unclaimed track inside the gate. Equal distances resolve to the
// lowest predicted index. Order-dependent, not globally optimal.
type GreedyAssociator struct{}

// Name implements Associator.
func (GreedyAssociator) Name() string { return PolicyGreedy }

// Associate implements Associator.
func (GreedyAssociator) Associate(detections, predicted []Point, gate float64) []int {
	out := make([]int, len(detections))
	claimed := make([]bool, len(predicted))
	for i, d := range detections {
		best := -1
		bestDist := gate
		for j, p := range predicted {
			if claimed[j] {
				continue
			}
			if dist := distance(d, p); dist < bestDist {
				best = j
				bestDist = dist
			}
		}
		if best >= 0 {
			claimed[best] = true
		}
		out[i] = best
	}
	return out
}

// HungarianAssociator finds the assignment minimising the summed distance
// over all gated pairs in the frame.
type HungarianAssociator struct{}

// Name implements Associator.
func (HungarianAssociator) Name() string { return PolicyHungarian }

// Associate implements Associator.
func (HungarianAssociator) Associate(detections, predicted []Point, gate float64) []int {
	if len(detections) == 0 {
		return []int{}
	}
	cost := make([][]float64, len(detections))
	for i, d := range detections {
		cost[i] = make([]float64, len(predicted))
		for j, p := range predicted {
			if dist := distance(d, p); dist < gate {
				cost[i][j] = dist
			} else {
				cost[i][j] = forbiddenCost
			}
		}
	}
	return hungarianAssign(cost)
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
