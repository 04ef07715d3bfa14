// Package pipeline drives the tracker from a detector line source, one
// frame at a time, and fans each processed frame out to the session
// recorder and the live API.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/attention.report/internal/attention"
	"github.com/banshee-data/attention.report/internal/ingest"
	"github.com/banshee-data/attention.report/internal/timeutil"
	"github.com/banshee-data/attention.report/internal/tracking"
	"github.com/banshee-data/attention.report/internal/tracking/debug"
)

// Snapshot is the outward state after one processed frame.
type Snapshot struct {
	Frame       uint64               `json:"frame"`        // tracker frame counter
	SourceFrame uint64               `json:"source_frame"` // detector frame number, 0 if absent
	Timestamp   time.Time            `json:"timestamp"`
	Detections  int                  `json:"detections"`
	Rejected    int                  `json:"rejected"`
	Tracks      []tracking.TrackView `json:"tracks"`
	Summary     attention.Summary    `json:"summary"`
	Counts      map[string]int       `json:"counts"`
	Result      tracking.FrameResult `json:"result"`
	Debug       *debug.Frame         `json:"-"`
}

// Recorder persists processed frames.
type Recorder interface {
	RecordFrame(ctx context.Context, snap Snapshot) error
}

// Publisher receives every processed frame, e.g. the HTTP API.
type Publisher interface {
	Publish(snap Snapshot)
}

// Stats counts what the runner has seen since it was created.
type Stats struct {
	Lines        int `json:"lines"`
	Frames       int `json:"frames"`
	Detections   int `json:"detections"`
	Rejected     int `json:"rejected"`
	DecodeErrors int `json:"decode_errors"`
	RecordErrors int `json:"record_errors"`
	Resets       int `json:"resets"`
}

// Config wires the runner's collaborators. Tracker is required.
type Config struct {
	Tracker    *tracking.Tracker
	Collector  *debug.Collector // optional
	Recorder   Recorder         // optional
	Publisher  Publisher        // optional
	Strictness int
	Clock      timeutil.Clock // RealClock when nil
	// OnReset runs inside Reset after the tracker is cleared and before the
	// empty state is published, with no frame in flight.
	OnReset func()
}

// Runner processes frames strictly in order. Frames and resets are
// serialised by frameMu so a reset never lands mid-frame.
type Runner struct {
	cfg Config

	frameMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("pipeline: tracker is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Collector != nil {
		cfg.Tracker.SetDebugCollector(cfg.Collector)
	}
	return &Runner{cfg: cfg}, nil
}

// Run consumes src until it is exhausted or ctx is cancelled. Malformed
// lines are logged and skipped; they never stop the run.
func (r *Runner) Run(ctx context.Context, src ingest.LineSource) error {
	err := src.Run(ctx, func(line []byte) error {
		r.HandleLine(ctx, line)
		return nil
	})
	st := r.Stats()
	diagf("run finished: lines=%d frames=%d detections=%d rejected=%d decode_errors=%d",
		st.Lines, st.Frames, st.Detections, st.Rejected, st.DecodeErrors)
	return err
}

// HandleLine decodes and processes one NDJSON line. It reports whether a
// frame was processed.
func (r *Runner) HandleLine(ctx context.Context, line []byte) bool {
	r.bump(func(s *Stats) { s.Lines++ })

	frame, err := ingest.DecodeFrame(line)
	if errors.Is(err, ingest.ErrEmptyLine) {
		return false
	}
	if err != nil {
		r.bump(func(s *Stats) { s.DecodeErrors++ })
		opsf("skipping line: %v", err)
		return false
	}
	for _, p := range frame.Problems {
		diagf("rejected %v", p)
	}
	r.ProcessFrame(ctx, frame)
	return true
}

// ProcessFrame runs one decoded frame through the tracker and fans the
// result out.
func (r *Runner) ProcessFrame(ctx context.Context, frame ingest.Frame) Snapshot {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = r.cfg.Clock.Now()
	}

	c := r.cfg.Collector
	if c != nil {
		c.BeginFrame(r.cfg.Tracker.Frame() + 1)
	}
	res := r.cfg.Tracker.Update(frame.Detections)
	var dbg *debug.Frame
	if c != nil {
		dbg = c.Emit()
	}

	tracks := r.cfg.Tracker.Tracks()
	snap := Snapshot{
		Frame:       res.Frame,
		SourceFrame: frame.Index,
		Timestamp:   ts,
		Detections:  len(frame.Detections),
		Rejected:    frame.Rejected,
		Tracks:      tracks,
		Summary:     attention.Summarize(tracks, r.cfg.Strictness),
		Counts:      attention.Counts(tracks),
		Result:      res,
		Debug:       dbg,
	}

	r.bump(func(s *Stats) {
		s.Frames++
		s.Detections += snap.Detections
		s.Rejected += snap.Rejected
	})

	if r.cfg.Recorder != nil {
		if err := r.cfg.Recorder.RecordFrame(ctx, snap); err != nil {
			r.bump(func(s *Stats) { s.RecordErrors++ })
			opsf("frame %d: record: %v", snap.Frame, err)
		}
	}
	if r.cfg.Publisher != nil {
		r.cfg.Publisher.Publish(snap)
	}

	tracef("frame %d: detections=%d rejected=%d tracks=%d engaged=%d%% level=%s",
		snap.Frame, snap.Detections, snap.Rejected, len(tracks), snap.Summary.EngagedPercent, snap.Summary.Level)
	return snap
}

// Reset reinitialises the tracker between frames and publishes the empty
// state.
func (r *Runner) Reset() {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()

	r.cfg.Tracker.Reset()
	if r.cfg.Collector != nil {
		r.cfg.Collector.Reset()
	}
	if r.cfg.OnReset != nil {
		r.cfg.OnReset()
	}
	r.bump(func(s *Stats) { s.Resets++ })
	diagf("tracker reset")

	if r.cfg.Publisher != nil {
		r.cfg.Publisher.Publish(Snapshot{
			Timestamp: r.cfg.Clock.Now(),
			Tracks:    []tracking.TrackView{},
			Summary:   attention.Summarize(nil, r.cfg.Strictness),
			Counts:    map[string]int{},
		})
	}
}

// Stats returns a copy of the runner counters.
func (r *Runner) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *Runner) bump(fn func(*Stats)) {
	r.statsMu.Lock()
	fn(&r.stats)
	r.statsMu.Unlock()
}
