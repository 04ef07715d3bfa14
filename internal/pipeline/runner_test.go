package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/attention.report/internal/attention"
	"github.com/banshee-data/attention.report/internal/ingest"
	"github.com/banshee-data/attention.report/internal/timeutil"
	"github.com/banshee-data/attention.report/internal/tracking"
	"github.com/banshee-data/attention.report/internal/tracking/debug"
)

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (f *fakeRecorder) RecordFrame(_ context.Context, s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
	return f.err
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (f *fakePublisher) Publish(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
}

func (f *fakePublisher) last() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[len(f.snaps)-1]
}

var start = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newRunner(t *testing.T, rec Recorder, pub Publisher, c *debug.Collector) *Runner {
	t.Helper()
	r, err := NewRunner(Config{
		Tracker:    tracking.NewTracker(tracking.DefaultTrackerConfig()),
		Collector:  c,
		Recorder:   rec,
		Publisher:  pub,
		Strictness: 50,
		Clock:      timeutil.NewSteppingClock(start, 33*time.Millisecond),
	})
	require.NoError(t, err)
	return r
}

const replay = `{"detections": [{"x": 100, "y": 100, "box": {"x": 60, "y": 60, "width": 80, "height": 80}, "label": "Focused", "name": "Alice"}]}
{"detections": [{"x": 102, "y": 101, "box": {"x": 62, "y": 61, "width": 80, "height": 80}, "label": "Sleeping", "name": "Unknown"}, {"x": 500, "y": 300, "box": {"x": 460, "y": 260, "width": 80, "height": 80}, "label": "Writing", "name": "Bob"}]}

not json
{"detections": [{"y": 5, "box": {}}]}
`

func TestRunner_Replay(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	r := newRunner(t, rec, pub, nil)

	err := r.Run(context.Background(), ingest.NewReaderSource(strings.NewReader(replay)))
	require.NoError(t, err)

	st := r.Stats()
	assert.Equal(t, Stats{Lines: 5, Frames: 3, Detections: 3, Rejected: 1, DecodeErrors: 1}, st)

	require.Len(t, rec.snaps, 3)
	require.Len(t, pub.snaps, 3)

	second := rec.snaps[1]
	assert.Equal(t, uint64(2), second.Frame)
	assert.Equal(t, start.Add(33*time.Millisecond), second.Timestamp)
	require.Len(t, second.Tracks, 2)
	assert.Equal(t, "Alice", second.Tracks[0].Name, "unknown name must not overwrite Alice")
	assert.Equal(t, "Sleeping", second.Tracks[0].Label)
	assert.Equal(t, attention.Summary{Total: 2, Engaged: 1, EngagedPercent: 50, Level: attention.LevelFocused, Strictness: 50}, second.Summary)
	assert.Equal(t, map[string]int{"Sleeping": 1, "Writing": 1}, second.Counts)

	// The frame with only a rejected detection still ages the tracks.
	third := pub.last()
	assert.Equal(t, 1, third.Rejected)
	assert.Equal(t, 0, third.Detections)
	for _, tr := range third.Tracks {
		assert.Equal(t, 1, tr.MissedFrames)
	}
}

func TestRunner_UsesDetectorTimestamp(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	r := newRunner(t, nil, pub, nil)
	ok := r.HandleLine(context.Background(), []byte(`{"frame": 77, "timestamp": "2026-01-02T03:04:05Z", "detections": []}`))
	require.True(t, ok)

	snap := pub.last()
	assert.Equal(t, uint64(77), snap.SourceFrame)
	assert.Equal(t, uint64(1), snap.Frame)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), snap.Timestamp)
}

func TestRunner_RecorderErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{err: errors.New("disk full")}
	pub := &fakePublisher{}
	r := newRunner(t, rec, pub, nil)

	r.HandleLine(context.Background(), []byte(`{"detections": []}`))
	r.HandleLine(context.Background(), []byte(`{"detections": []}`))

	assert.Equal(t, 2, r.Stats().RecordErrors)
	assert.Len(t, pub.snaps, 2, "publishing continues after a record error")
}

func TestRunner_DebugFrames(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	c := debug.NewCollector(true)
	r := newRunner(t, nil, pub, c)

	r.HandleLine(context.Background(), []byte(`{"detections": [{"x": 0, "y": 0, "box": {}}]}`))
	r.HandleLine(context.Background(), []byte(`{"detections": [{"x": 3, "y": 4, "box": {}}]}`))

	snap := pub.last()
	require.NotNil(t, snap.Debug)
	assert.Equal(t, uint64(2), snap.Debug.FrameID)
	require.Len(t, snap.Debug.Associations, 1)
	assert.True(t, snap.Debug.Associations[0].Accepted)
	assert.Same(t, snap.Debug, c.Last())
}

func TestRunner_Reset(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	hooked := 0
	r, err := NewRunner(Config{Tracker: tr, Publisher: pub, Strictness: 50, OnReset: func() {
		hooked++
		assert.Equal(t, 0, tr.Len(), "hook runs after the tracker is cleared")
	}})
	require.NoError(t, err)

	r.HandleLine(context.Background(), []byte(`{"detections": [{"x": 1, "y": 1, "box": {}}]}`))
	require.Equal(t, 1, tr.Len())

	r.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 1, r.Stats().Resets)
	assert.Equal(t, 1, hooked)
	snap := pub.last()
	assert.Empty(t, snap.Tracks)
	assert.Equal(t, attention.LevelDanger, snap.Summary.Level)

	r.HandleLine(context.Background(), []byte(`{"detections": [{"x": 1, "y": 1, "box": {}}]}`))
	assert.Equal(t, []int64{1}, pub.last().Result.Spawned, "IDs restart at 1 after reset")
}

func TestRunner_Cancel(t *testing.T) {
	t.Parallel()

	r := newRunner(t, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, blockingSource{})
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingSource struct{}

func (blockingSource) Run(ctx context.Context, _ func([]byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingSource) Close() error { return nil }

func TestNewRunner_RequiresTracker(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(Config{})
	assert.Error(t, err)
}

// Not parallel: swaps the package log writers.
func TestRunner_LogsDecodeErrors(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	r := newRunner(t, nil, nil, nil)
	assert.False(t, r.HandleLine(context.Background(), []byte("{")))
	assert.Contains(t, ops.String(), "skipping line")
}
