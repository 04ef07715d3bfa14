package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/attention.report/internal/pipeline"
)

// Recorder writes processed frames of one session. It satisfies
// pipeline.Recorder. Frame numbers restart after a tracker reset, so a
// reset must be followed by SetSession with a fresh session.
type Recorder struct {
	db *DB

	mu        sync.Mutex
	sessionID string
}

// NewRecorder returns a Recorder for an already started session.
func NewRecorder(db *DB, sessionID string) *Recorder {
	return &Recorder{db: db, sessionID: sessionID}
}

// SessionID returns the session the recorder writes to.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// SetSession points subsequent frames at another session.
func (r *Recorder) SetSession(id string) {
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
}

// RecordFrame stores the frame row and one observation per live track in a
// single transaction.
func (r *Recorder) RecordFrame(ctx context.Context, snap pipeline.Snapshot) (err error) {
	sessionID := r.SessionID()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin frame %d: %w", snap.Frame, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO frames (
			session_id, frame_index, recorded_at, detections, rejected, tracks,
			spawned, removed, engaged, engaged_percent, level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(snap.Frame), formatTime(snap.Timestamp), snap.Detections, snap.Rejected,
		len(snap.Tracks), len(snap.Result.Spawned), len(snap.Result.Removed),
		snap.Summary.Engaged, snap.Summary.EngagedPercent, string(snap.Summary.Level),
	)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", snap.Frame, err)
	}

	if len(snap.Tracks) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO track_observations (
				session_id, frame_index, track_id, x, y, vx, vy,
				box_x, box_y, box_width, box_height, label, name, missed_frames, engaged
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare observations: %w", err)
		}
		defer stmt.Close()

		for _, t := range snap.Tracks {
			if _, err := stmt.ExecContext(ctx,
				sessionID, int64(snap.Frame), t.ID,
				t.Position.X, t.Position.Y, t.Velocity.X, t.Velocity.Y,
				t.Box.X, t.Box.Y, t.Box.Width, t.Box.Height,
				t.Label, t.Name, t.MissedFrames, boolToInt(t.Engaged),
			); err != nil {
				return fmt.Errorf("insert track %d frame %d: %w", t.ID, snap.Frame, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit frame %d: %w", snap.Frame, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
