// Package debug captures tracking internals (predictions, association
// candidates, measurement residuals) one frame at a time for tuning and
// the /api/debug/frame endpoint.
package debug

import "sync"

// Pre-allocation capacities for a classroom-sized scene: a handful of
// subjects, each evaluated against a handful of tracks.
const (
	defaultAssociationCapacity = 16
	defaultInnovationCapacity  = 8
	defaultPredictionCapacity  = 8
)

// Collector accumulates artefacts between BeginFrame and Emit. Record*
// calls are no-ops while disabled or outside a frame.
//
// The recording side is driven by the single frame loop; Last may be
// called concurrently from readers.
type Collector struct {
	mu      sync.Mutex
	enabled bool
	current *Frame
	last    *Frame
}

// Frame holds the debug artefacts of one tracker update.
type Frame struct {
	FrameID      uint64              `json:"frame_id"`
	Associations []AssociationRecord `json:"associations"`
	Innovations  []Innovation        `json:"innovations"`
	Predictions  []Prediction        `json:"predictions"`
}

// AssociationRecord is one detection/track pair inside the gate, or the
// pair the associator accepted.
type AssociationRecord struct {
	Detection int     `json:"detection"`
	TrackID   int64   `json:"track_id"`
	Distance  float64 `json:"distance"`
	Accepted  bool    `json:"accepted"`
}

// Innovation is the measurement residual applied to a matched track.
type Innovation struct {
	TrackID    int64   `json:"track_id"`
	PredictedX float64 `json:"predicted_x"`
	PredictedY float64 `json:"predicted_y"`
	MeasuredX  float64 `json:"measured_x"`
	MeasuredY  float64 `json:"measured_y"`
	Residual   float64 `json:"residual"` // ||measured - predicted||
}

// Prediction is a track's state after predict and before update.
type Prediction struct {
	TrackID int64   `json:"track_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
}

// NewCollector returns a collector in the given state.
func NewCollector(enabled bool) *Collector {
	return &Collector{enabled: enabled}
}

// SetEnabled toggles recording. Disabling drops any frame in progress.
func (c *Collector) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.current = nil
	}
}

// IsEnabled reports whether the collector is recording.
func (c *Collector) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// BeginFrame starts collecting for frameID.
func (c *Collector) BeginFrame(frameID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.current = &Frame{
		FrameID:      frameID,
		Associations: make([]AssociationRecord, 0, defaultAssociationCapacity),
		Innovations:  make([]Innovation, 0, defaultInnovationCapacity),
		Predictions:  make([]Prediction, 0, defaultPredictionCapacity),
	}
}

// RecordAssociation captures a detection/track pairing evaluation.
func (c *Collector) RecordAssociation(detection int, trackID int64, distance float64, accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Associations = append(c.current.Associations, AssociationRecord{
		Detection: detection,
		TrackID:   trackID,
		Distance:  distance,
		Accepted:  accepted,
	})
}

// RecordInnovation captures the residual of a matched update.
func (c *Collector) RecordInnovation(trackID int64, predX, predY, measX, measY, residual float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Innovations = append(c.current.Innovations, Innovation{
		TrackID:    trackID,
		PredictedX: predX,
		PredictedY: predY,
		MeasuredX:  measX,
		MeasuredY:  measY,
		Residual:   residual,
	})
}

// RecordPrediction captures a track's predicted state.
func (c *Collector) RecordPrediction(trackID int64, x, y, vx, vy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Predictions = append(c.current.Predictions, Prediction{
		TrackID: trackID,
		X:       x,
		Y:       y,
		VX:      vx,
		VY:      vy,
	})
}

// Emit returns the frame in progress and remembers it as Last. It returns
// nil when disabled or when no frame was begun.
func (c *Collector) Emit() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil
	c.last = frame
	return frame
}

// Last returns the most recently emitted frame, or nil.
func (c *Collector) Last() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Reset discards the frame in progress and the last emitted frame.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.last = nil
}
