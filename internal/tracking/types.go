package tracking

import (
	"strings"

	"github.com/banshee-data/attention.report/internal/config"
)

// Box is a detector bounding box, carried through for display only.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one subject observed in one frame. It carries no identity
// across frames.
type Detection struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Box   Box     `json:"box"`
	Label string  `json:"label"` // behavioural state, e.g. "Focused"
	Name  string  `json:"name"`  // identity, or the unknown sentinel
}

// Position returns the detection centre.
func (d Detection) Position() Point {
	return Point{X: d.X, Y: d.Y}
}

// TrackView is the read-only snapshot of a track handed to callers outside
// the tracker.
type TrackView struct {
	ID           int64  `json:"id"`
	Position     Point  `json:"position"`
	Velocity     Point  `json:"velocity"`
	Box          Box    `json:"box"`
	Label        string `json:"label"`
	Name         string `json:"name"`
	MissedFrames int    `json:"missed_frames"`
	Hits         int    `json:"hits"`
	Age          int    `json:"age"`
	Engaged      bool   `json:"engaged"`
	FirstFrame   uint64 `json:"first_frame"`
	LastSeen     uint64 `json:"last_seen_frame"`
}

// FrameResult reports what one Tracker.Update call did.
type FrameResult struct {
	Frame   uint64  `json:"frame"`
	Matched []int64 `json:"matched"`
	Spawned []int64 `json:"spawned"`
	Removed []int64 `json:"removed"`
	// Associations[i] is the track ID that detection i updated or spawned,
	// or -1 when the detection was rejected.
	Associations []int64 `json:"associations"`
	// Rejected lists the indexes of detections with a non-finite position.
	Rejected []int `json:"rejected,omitempty"`
	// SkippedUpdates lists matched tracks whose estimator rejected the
	// measurement (singular innovation) and kept the prediction.
	SkippedUpdates []int64 `json:"skipped_updates,omitempty"`
}

// TrackerConfig holds the Track Manager's tuning.
type TrackerConfig struct {
	GatingDistance  float64 // association requires distance strictly below this
	MaxMissedFrames int     // tracks are removed once MissedFrames exceeds this
	UnknownName     string  // identity sentinel that never overwrites a known name
	EngagedLabels   []string
	Noise           EstimatorNoise
	Associator      Associator // greedy when nil
}

// DefaultTrackerConfig returns the stock tuning: 200 px gate, 30 missed
// frames, "Unknown" sentinel, greedy association.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		GatingDistance:  config.DefaultGatingDistance,
		MaxMissedFrames: config.DefaultMaxMissedFrames,
		UnknownName:     config.DefaultUnknownName,
		EngagedLabels:   append([]string(nil), config.DefaultEngagedLabels...),
		Noise:           DefaultEstimatorNoise(),
		Associator:      GreedyAssociator{},
	}
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded tuning file.
// A nil cfg yields the defaults.
func TrackerConfigFromTuning(cfg *config.TuningConfig) (TrackerConfig, error) {
	if cfg == nil {
		return DefaultTrackerConfig(), nil
	}
	assoc, err := NewAssociator(cfg.GetAssociationPolicy())
	if err != nil {
		return TrackerConfig{}, err
	}
	return TrackerConfig{
		GatingDistance:  cfg.GetGatingDistance(),
		MaxMissedFrames: cfg.GetMaxMissedFrames(),
		UnknownName:     cfg.GetUnknownName(),
		EngagedLabels:   cfg.GetEngagedLabels(),
		Noise: EstimatorNoise{
			InitialCovariance: cfg.GetInitialCovariance(),
			MeasurementNoise:  cfg.GetMeasurementNoise(),
			ProcessNoise:      cfg.GetProcessNoise(),
		},
		Associator: assoc,
	}, nil
}

// IsUnknownName reports whether name is the identity sentinel: empty, equal
// to the configured unknown name, or a decorated form such as
// "Unknown (Loading)".
func (c TrackerConfig) IsUnknownName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	unknown := c.UnknownName
	if unknown == "" {
		unknown = config.DefaultUnknownName
	}
	name, unknown = strings.ToLower(name), strings.ToLower(unknown)
	return name == unknown || strings.HasPrefix(name, unknown+" ")
}

// IsEngaged reports whether label is one of the engaged behavioural states.
func (c TrackerConfig) IsEngaged(label string) bool {
	for _, l := range c.EngagedLabels {
		if l == label {
			return true
		}
	}
	return false
}
