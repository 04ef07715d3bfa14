package tracking

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the tracking package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[tracking] ", ops)
	diagLogger = newLogger("[tracking] ", diag)
	traceLogger = newLogger("[tracking] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (actionable warnings, numeric degeneracy).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (track births and removals).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-frame telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}

// DebugCollector receives algorithm internals for visualisation. It lets
// the debug package record frames without importing tracking.
type DebugCollector interface {
	IsEnabled() bool
	RecordPrediction(trackID int64, x, y, vx, vy float64)
	RecordAssociation(detection int, trackID int64, distance float64, accepted bool)
	RecordInnovation(trackID int64, predX, predY, measX, measY, residual float64)
}
