package debug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/attention.report/internal/tracking"
	"github.com/banshee-data/attention.report/internal/tracking/debug"
)

func TestCollectorWithTracker(t *testing.T) {
	t.Parallel()

	c := debug.NewCollector(true)
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	tr.SetDebugCollector(c)

	c.BeginFrame(1)
	tr.Update([]tracking.Detection{{X: 0, Y: 0, Label: "Focused", Name: "A"}})
	first := c.Emit()
	require.NotNil(t, first)
	assert.Empty(t, first.Predictions, "no tracks existed before the first frame")
	assert.Empty(t, first.Associations)

	c.BeginFrame(2)
	tr.Update([]tracking.Detection{
		{X: 3, Y: 4, Label: "Focused", Name: "A"},
		{X: 600, Y: 0, Label: "Focused", Name: "B"},
	})
	second := c.Emit()
	require.NotNil(t, second)

	require.Len(t, second.Predictions, 1)
	assert.Equal(t, int64(1), second.Predictions[0].TrackID)

	// Only the gated pair is recorded; the far detection spawns silently.
	require.Len(t, second.Associations, 1)
	assert.Equal(t, debug.AssociationRecord{Detection: 0, TrackID: 1, Distance: 5, Accepted: true}, second.Associations[0])

	require.Len(t, second.Innovations, 1)
	assert.InDelta(t, 5.0, second.Innovations[0].Residual, 1e-12)
	assert.Same(t, second, c.Last())
}
