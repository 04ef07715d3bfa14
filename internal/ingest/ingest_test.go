package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/attention.report/internal/tracking"
)

// ---------------------------------------------------------------------------
// DecodeFrame
// ---------------------------------------------------------------------------

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	line := `{"frame": 12, "timestamp": "2026-10-14T09:00:00Z", "detections": [
		{"x": 320.5, "y": 240.1, "box": {"x": 280, "y": 200, "width": 80, "height": 80}, "label": "Focused", "name": "Alice"},
		{"x": 10, "y": 20, "box": {"xMin": 1, "yMin": 2, "width": 3, "height": 4, "xMax": 4, "yMax": 6}, "state": "Writing", "name": "Unknown (Loading)"}
	]}`

	f, err := DecodeFrame([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), f.Index)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), f.Timestamp)
	assert.Zero(t, f.Rejected)
	require.Len(t, f.Detections, 2)

	assert.Equal(t, tracking.Detection{
		X: 320.5, Y: 240.1,
		Box:   tracking.Box{X: 280, Y: 200, Width: 80, Height: 80},
		Label: "Focused", Name: "Alice",
	}, f.Detections[0])
	assert.Equal(t, tracking.Detection{
		X: 10, Y: 20,
		Box:   tracking.Box{X: 1, Y: 2, Width: 3, Height: 4},
		Label: "Writing", Name: "Unknown (Loading)",
	}, f.Detections[1])
}

func TestDecodeFrame_DefaultsLabelAndName(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"detections": [{"x": 1, "y": 2, "box": {}}]}`))
	require.NoError(t, err)
	require.Len(t, f.Detections, 1)
	assert.Equal(t, UnknownName, f.Detections[0].Label)
	assert.Equal(t, UnknownName, f.Detections[0].Name)
	assert.Zero(t, f.Index)
	assert.True(t, f.Timestamp.IsZero())
}

func TestDecodeFrame_RejectsBadDetections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		det  string
		want error
	}{
		{"missing x", `{"y": 2, "box": {}}`, ErrMissingPosition},
		{"null y", `{"x": 1, "y": null, "box": {}}`, ErrMissingPosition},
		{"missing box", `{"x": 1, "y": 2}`, ErrMissingBox},
		{"overflowing x", `{"x": 1e400, "y": 2, "box": {}}`, ErrNonFinite},
		{"overflowing box", `{"x": 1, "y": 2, "box": {"width": -1e400}}`, ErrNonFinite},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			line := `{"detections": [` + tt.det + `, {"x": 5, "y": 6, "box": {}}]}`
			f, err := DecodeFrame([]byte(line))
			require.NoError(t, err)
			assert.Equal(t, 1, f.Rejected)
			require.Len(t, f.Problems, 1)
			assert.ErrorIs(t, f.Problems[0], tt.want)

			// The good detection survives in order.
			require.Len(t, f.Detections, 1)
			assert.Equal(t, 5.0, f.Detections[0].X)
		})
	}
}

func TestDecodeFrame_WrongTypeRejectsDetectionOnly(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"detections": [{"x": "left", "y": 2, "box": {}}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Rejected)
	assert.Empty(t, f.Detections)
}

func TestDecodeFrame_LineErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeFrame([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyLine)

	_, err = DecodeFrame([]byte(`{"detections": [`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"detections": {}}`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"timestamp": "yesterday", "detections": []}`))
	assert.Error(t, err)
}

func TestDecodeFrame_EmptyBatch(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"type": "data", "detections": []}`))
	require.NoError(t, err)
	assert.NotNil(t, f.Detections)
	assert.Empty(t, f.Detections)
}

// ---------------------------------------------------------------------------
// ReaderSource
// ---------------------------------------------------------------------------

func collect(t *testing.T, src LineSource) []string {
	t.Helper()
	var lines []string
	err := src.Run(context.Background(), func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	require.NoError(t, err)
	return lines
}

func TestReaderSource_Lines(t *testing.T) {
	t.Parallel()

	src := NewReaderSource(strings.NewReader("a\nb\n\nc"))
	assert.Equal(t, []string{"a", "b", "", "c"}, collect(t, src))
	assert.NoError(t, src.Close())
}

func TestReaderSource_HandlerErrorStops(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	src := NewReaderSource(strings.NewReader("a\nb\nc\n"))
	var seen int
	err := src.Run(context.Background(), func([]byte) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

// Not parallel: counts goroutines.
func TestReaderSource_HandlerErrorStopsScanner(t *testing.T) {
	before := runtime.NumGoroutine()

	stop := errors.New("stop")
	src := NewReaderSource(strings.NewReader(strings.Repeat("line\n", 1000)))
	err := src.Run(context.Background(), func([]byte) error { return stop })
	require.ErrorIs(t, err, stop)

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond, "scanner goroutine still running")
}

func TestReaderSource_Cancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	src := NewReaderSource(pr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func([]byte) error { return nil })
	}()

	_, err := pw.Write([]byte("first\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, src.Close())
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "frames.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(`{"detections": []}`+"\n"), 0o644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, []string{`{"detections": []}`}, collect(t, src))

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.ndjson"))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Serial
// ---------------------------------------------------------------------------

func TestPortOptions_Normalize(t *testing.T) {
	t.Parallel()

	got, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, got)

	for _, bad := range []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	t.Parallel()

	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: serial.TwoStopBits,
		Parity:   serial.OddParity,
	}, mode)
}

// fakePort is an in-memory serial port.
type fakePort struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestOpenSerial(t *testing.T) {
	t.Parallel()

	port := &fakePort{Reader: strings.NewReader("{\"detections\": []}\n{\"detections\": []}\n")}
	var gotPath string
	var gotMode *serial.Mode
	open := func(path string, mode *serial.Mode) (io.ReadCloser, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	src, err := OpenSerial("/dev/ttyUSB0", PortOptions{BaudRate: 57600}, open)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 57600, gotMode.BaudRate)
	assert.Equal(t, "/dev/ttyUSB0", src.Path())

	assert.Len(t, collect(t, src), 2)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.True(t, port.closed)
}

func TestOpenSerial_Errors(t *testing.T) {
	t.Parallel()

	_, err := OpenSerial("/dev/x", PortOptions{DataBits: 3}, nil)
	assert.Error(t, err)

	boom := errors.New("no such device")
	_, err = OpenSerial("/dev/x", PortOptions{}, func(string, *serial.Mode) (io.ReadCloser, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
