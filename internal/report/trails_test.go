package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/attention.report/internal/tracking"
)

func TestPlotTrails_WritesPNG(t *testing.T) {
	t.Parallel()

	trails := map[int64][]tracking.Point{
		1: {{X: 100, Y: 100}, {X: 110, Y: 105}, {X: 120, Y: 111}},
		2: {{X: 400, Y: 300}},
		3: {},
	}
	path := filepath.Join(t.TempDir(), "trails.png")
	require.NoError(t, PlotTrails(trails, path, TrailOptions{Title: "session"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestNewTrailPlot_Empty(t *testing.T) {
	t.Parallel()

	_, err := NewTrailPlot(nil, TrailOptions{})
	assert.ErrorIs(t, err, ErrNoTrails)

	_, err = NewTrailPlot(map[int64][]tracking.Point{7: nil}, TrailOptions{})
	assert.ErrorIs(t, err, ErrNoTrails)
}

func TestNewTrailPlot_FlipsY(t *testing.T) {
	t.Parallel()

	p, err := NewTrailPlot(map[int64][]tracking.Point{1: {{X: 0, Y: 10}, {X: 5, Y: 200}}}, TrailOptions{})
	require.NoError(t, err)
	assert.Equal(t, -200.0, p.Y.Min)
	assert.Equal(t, -10.0, p.Y.Max)
	assert.Equal(t, 0.0, p.X.Min)
	assert.Equal(t, 5.0, p.X.Max)
}

func TestFlippedTicks(t *testing.T) {
	t.Parallel()

	for _, tick := range (flippedTicks{}).Ticks(-200, 0) {
		if tick.Label == "" {
			continue
		}
		assert.NotContains(t, tick.Label, "-", "labels show image coordinates")
	}
}
