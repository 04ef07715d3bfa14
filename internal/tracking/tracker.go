package tracking

import (
	"math"
	"sort"
	"sync"
)

// Tracker is the Track Manager. It owns the Track Set and applies one
// frame of detections at a time: predict, associate, update, spawn, age.
//
// Update holds the write lock for the whole frame so readers never observe
// a half-applied batch. Readers receive copies.
type Tracker struct {
	cfg TrackerConfig

	tracks      []*Track // ascending ID
	nextTrackID int64
	frame       uint64

	debug DebugCollector

	mu sync.RWMutex
}

// NewTracker creates a tracker with an empty Track Set. A nil Associator
// selects greedy association.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Associator == nil {
		cfg.Associator = GreedyAssociator{}
	}
	return &Tracker{
		cfg:         cfg,
		nextTrackID: 1,
	}
}

// SetDebugCollector installs (or, with nil, removes) the instrumentation sink.
func (t *Tracker) SetDebugCollector(c DebugCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = c
}

// SetAssociator swaps the association policy. It takes effect on the next
// Update; nil restores greedy association.
func (t *Tracker) SetAssociator(a Associator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a == nil {
		a = GreedyAssociator{}
	}
	t.cfg.Associator = a
}

// Config returns a copy of the tracker configuration.
func (t *Tracker) Config() TrackerConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cfg := t.cfg
	cfg.EngagedLabels = append([]string(nil), t.cfg.EngagedLabels...)
	return cfg
}

// Reset releases every estimator and clears the Track Set. Track IDs restart
// at 1 and the frame counter at 0. The tracker never resets itself.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.tracks {
		tr.release()
	}
	t.tracks = nil
	t.nextTrackID = 1
	t.frame = 0
	diagf("reset")
}

// Update applies one complete batch of detections. An empty batch is a
// normal frame in which every track goes unmatched.
func (t *Tracker) Update(detections []Detection) FrameResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame++
	res := FrameResult{
		Frame:        t.frame,
		Matched:      []int64{},
		Spawned:      []int64{},
		Removed:      []int64{},
		Associations: make([]int64, len(detections)),
	}
	debugOn := t.debug != nil && t.debug.IsEnabled()

	// 1. Predict every track.
	predicted := make([]Point, len(t.tracks))
	for i, tr := range t.tracks {
		tr.est.Predict()
		predicted[i] = tr.est.Position()
		if debugOn {
			v := tr.est.Velocity()
			t.debug.RecordPrediction(tr.ID, predicted[i].X, predicted[i].Y, v.X, v.Y)
		}
	}

	// 2. Associate against predicted positions. Detections with a
	// non-finite position are rejected here and never spawn a track.
	usable := make([]int, 0, len(detections))
	for i, d := range detections {
		if !finitePoint(d.Position()) {
			res.Associations[i] = -1
			res.Rejected = append(res.Rejected, i)
			opsf("frame %d: rejected detection %d with non-finite position (%v, %v)", t.frame, i, d.X, d.Y)
			continue
		}
		usable = append(usable, i)
	}
	measured := make([]Point, len(usable))
	for k, i := range usable {
		measured[k] = detections[i].Position()
	}
	assign := t.cfg.Associator.Associate(measured, predicted, t.cfg.GatingDistance)
	if debugOn {
		t.recordCandidates(usable, measured, predicted, assign)
	}

	// 3. Update matched tracks, 4. spawn for the rest.
	matched := make([]bool, len(t.tracks))
	var spawned []*Track
	for k, i := range usable {
		d := detections[i]
		j := -1
		if k < len(assign) {
			j = assign[k]
		}
		if j >= 0 && j < len(t.tracks) && !matched[j] {
			tr := t.tracks[j]
			matched[j] = true
			if err := tr.apply(d, t.cfg, t.frame); err != nil {
				res.SkippedUpdates = append(res.SkippedUpdates, tr.ID)
				opsf("frame %d: track %d kept prediction: %v", t.frame, tr.ID, err)
			}
			if debugOn {
				t.debug.RecordInnovation(tr.ID, predicted[j].X, predicted[j].Y, d.X, d.Y, distance(predicted[j], measured[k]))
			}
			res.Matched = append(res.Matched, tr.ID)
			res.Associations[i] = tr.ID
			continue
		}

		tr, err := newTrack(t.nextTrackID, d, t.cfg.Noise, t.frame)
		if err != nil {
			opsf("frame %d: seeding track %d: %v", t.frame, tr.ID, err)
		}
		t.nextTrackID++
		spawned = append(spawned, tr)
		res.Spawned = append(res.Spawned, tr.ID)
		res.Associations[i] = tr.ID
		diagf("frame %d: spawned track %d at (%.1f, %.1f) label=%q name=%q", t.frame, tr.ID, d.X, d.Y, d.Label, d.Name)
	}

	// 5. Age unmatched tracks and remove the expired ones. Newly spawned
	// tracks are appended afterwards so they are not aged in their birth frame.
	kept := t.tracks[:0]
	for j, tr := range t.tracks {
		tr.Age++
		if !matched[j] {
			tr.MissedFrames++
		}
		if tr.MissedFrames > t.cfg.MaxMissedFrames {
			tr.release()
			res.Removed = append(res.Removed, tr.ID)
			diagf("frame %d: removed track %d after %d missed frames", t.frame, tr.ID, tr.MissedFrames)
			continue
		}
		kept = append(kept, tr)
	}
	for j := len(kept); j < len(t.tracks); j++ {
		t.tracks[j] = nil
	}
	t.tracks = append(kept, spawned...)

	tracef("frame %d: detections=%d matched=%d spawned=%d removed=%d active=%d",
		t.frame, len(detections), len(res.Matched), len(res.Spawned), len(res.Removed), len(t.tracks))
	return res
}

// recordCandidates reports every gated detection/track pair to the debug
// collector, flagging the pairs the associator accepted.
// usable maps measured back to the detection index.
func (t *Tracker) recordCandidates(usable []int, measured, predicted []Point, assign []int) {
	for k, m := range measured {
		for j, p := range predicted {
			d := distance(m, p)
			accepted := k < len(assign) && assign[k] == j
			if d >= t.cfg.GatingDistance && !accepted {
				continue
			}
			t.debug.RecordAssociation(usable[k], t.tracks[j].ID, d, accepted)
		}
	}
}

// Tracks returns a snapshot of every active track in ascending ID order.
func (t *Tracker) Tracks() []TrackView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TrackView, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = tr.view(t.cfg)
	}
	return out
}

// Track returns the snapshot of one track.
func (t *Tracker) Track(id int64) (TrackView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := sort.Search(len(t.tracks), func(i int) bool { return t.tracks[i].ID >= id })
	if i < len(t.tracks) && t.tracks[i].ID == id {
		return t.tracks[i].view(t.cfg), true
	}
	return TrackView{}, false
}

// Len returns the number of active tracks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Frame returns the number of frames processed since creation or Reset.
func (t *Tracker) Frame() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frame
}

// NextTrackID returns the ID the next spawned track will receive.
func (t *Tracker) NextTrackID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextTrackID
}

func finitePoint(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
