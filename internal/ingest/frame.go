// Package ingest is the boundary with the external detector. It reads
// newline-delimited JSON frames from a file, stdin or a serial line and
// turns each into a validated, ordered batch of tracking.Detection.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/attention.report/internal/tracking"
)

// UnknownName is substituted for a missing label or name.
const UnknownName = "Unknown"

var (
	// ErrEmptyLine is returned by DecodeFrame for a blank line.
	ErrEmptyLine = errors.New("ingest: empty line")
	// ErrMissingPosition rejects a detection without x or y.
	ErrMissingPosition = errors.New("ingest: detection missing x or y")
	// ErrMissingBox rejects a detection without a bounding box.
	ErrMissingBox = errors.New("ingest: detection missing box")
	// ErrNonFinite rejects a detection with a NaN or infinite coordinate.
	ErrNonFinite = errors.New("ingest: non-finite coordinate")
)

// Frame is one decoded detector batch.
type Frame struct {
	// Index is the detector's frame number; zero when the line had none.
	Index     uint64
	Timestamp time.Time // zero when the line had none

	Detections []tracking.Detection // accepted detections in detector order
	Rejected   int                  // detections dropped at the boundary
	Problems   []error              // one entry per rejected detection
}

type wireFrame struct {
	Frame      *uint64           `json:"frame"`
	Timestamp  string            `json:"timestamp"`
	Detections []json.RawMessage `json:"detections"`
}

type wireDetection struct {
	X     *json.Number `json:"x"`
	Y     *json.Number `json:"y"`
	Box   *wireBox     `json:"box"`
	Label *string      `json:"label"`
	State *string      `json:"state"` // detector's name for label
	Name  *string      `json:"name"`
}

type wireBox struct {
	X      *json.Number `json:"x"`
	Y      *json.Number `json:"y"`
	XMin   *json.Number `json:"xMin"`
	YMin   *json.Number `json:"yMin"`
	Width  *json.Number `json:"width"`
	Height *json.Number `json:"height"`
}

// DecodeFrame parses one NDJSON line. Malformed JSON fails the whole line;
// an individual bad detection is dropped and recorded in Rejected and
// Problems instead. Missing position is never coerced to zero.
func DecodeFrame(line []byte) (Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Frame{}, ErrEmptyLine
	}

	var wf wireFrame
	if err := json.Unmarshal(line, &wf); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	f := Frame{Detections: make([]tracking.Detection, 0, len(wf.Detections))}
	if wf.Frame != nil {
		f.Index = *wf.Frame
	}
	if wf.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, wf.Timestamp)
		if err != nil {
			return Frame{}, fmt.Errorf("decode frame timestamp %q: %w", wf.Timestamp, err)
		}
		f.Timestamp = ts
	}

	for i, raw := range wf.Detections {
		d, err := decodeDetection(raw)
		if err != nil {
			f.Rejected++
			f.Problems = append(f.Problems, fmt.Errorf("detection %d: %w", i, err))
			continue
		}
		f.Detections = append(f.Detections, d)
	}
	return f, nil
}

func decodeDetection(raw json.RawMessage) (tracking.Detection, error) {
	var wd wireDetection
	if err := json.Unmarshal(raw, &wd); err != nil {
		return tracking.Detection{}, err
	}
	if wd.X == nil || wd.Y == nil {
		return tracking.Detection{}, ErrMissingPosition
	}
	x, err := finite(*wd.X)
	if err != nil {
		return tracking.Detection{}, fmt.Errorf("x: %w", err)
	}
	y, err := finite(*wd.Y)
	if err != nil {
		return tracking.Detection{}, fmt.Errorf("y: %w", err)
	}
	if wd.Box == nil {
		return tracking.Detection{}, ErrMissingBox
	}
	box, err := wd.Box.decode()
	if err != nil {
		return tracking.Detection{}, fmt.Errorf("box: %w", err)
	}

	label := UnknownName
	switch {
	case wd.Label != nil:
		label = *wd.Label
	case wd.State != nil:
		label = *wd.State
	}
	name := UnknownName
	if wd.Name != nil {
		name = *wd.Name
	}

	return tracking.Detection{X: x, Y: y, Box: box, Label: label, Name: name}, nil
}

func (b wireBox) decode() (tracking.Box, error) {
	var out tracking.Box
	fields := []struct {
		dst     *float64
		primary *json.Number
		alias   *json.Number
	}{
		{&out.X, b.X, b.XMin},
		{&out.Y, b.Y, b.YMin},
		{&out.Width, b.Width, nil},
		{&out.Height, b.Height, nil},
	}
	for _, f := range fields {
		n := f.primary
		if n == nil {
			n = f.alias
		}
		if n == nil {
			continue
		}
		v, err := finite(*n)
		if err != nil {
			return tracking.Box{}, err
		}
		*f.dst = v
	}
	return out, nil
}

func finite(n json.Number) (float64, error) {
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}
