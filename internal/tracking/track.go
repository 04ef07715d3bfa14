package tracking

// Track is one subject followed across frames. It exclusively owns its
// Estimator; nothing outside the Tracker holds a reference to either.
type Track struct {
	ID    int64
	Label string // last behavioural state, always replaced on match
	Name  string // last known identity, sticky against the unknown sentinel
	Box   Box    // last bounding box, always replaced on match

	// MissedFrames counts consecutive frames without an association.
	MissedFrames int

	Hits          int    // frames with an association, including birth
	Age           int    // frames survived since birth
	FirstFrame    uint64 // frame the track was spawned in
	LastSeenFrame uint64 // last frame with an association

	est *Estimator
}

// newTrack spawns a track at d and seeds its estimator from the degenerate
// prior with d's position.
func newTrack(id int64, d Detection, noise EstimatorNoise, frame uint64) (*Track, error) {
	tr := &Track{
		ID:            id,
		Label:         d.Label,
		Name:          d.Name,
		Box:           d.Box,
		Hits:          1,
		FirstFrame:    frame,
		LastSeenFrame: frame,
		est:           NewEstimator(noise),
	}
	err := tr.est.Update(d.Position())
	return tr, err
}

// apply folds a matched detection into the track. The estimator error is
// returned for reporting; attributes and MissedFrames are updated either way.
func (tr *Track) apply(d Detection, cfg TrackerConfig, frame uint64) error {
	err := tr.est.Update(d.Position())

	tr.Label = d.Label
	tr.Box = d.Box
	if !cfg.IsUnknownName(d.Name) {
		tr.Name = d.Name
	}
	tr.MissedFrames = 0
	tr.Hits++
	tr.LastSeenFrame = frame
	return err
}

// release drops the estimator buffers at removal time.
func (tr *Track) release() {
	if tr.est != nil {
		tr.est.Release()
	}
}

func (tr *Track) view(cfg TrackerConfig) TrackView {
	return TrackView{
		ID:           tr.ID,
		Position:     tr.est.Position(),
		Velocity:     tr.est.Velocity(),
		Box:          tr.Box,
		Label:        tr.Label,
		Name:         tr.Name,
		MissedFrames: tr.MissedFrames,
		Hits:         tr.Hits,
		Age:          tr.Age,
		Engaged:      cfg.IsEngaged(tr.Label),
		FirstFrame:   tr.FirstFrame,
		LastSeen:     tr.LastSeenFrame,
	}
}
