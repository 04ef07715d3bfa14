package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/attention.report/internal/tracking"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo describes the tracker configuration a session ran with.
type SessionInfo struct {
	StartedAt       time.Time
	Policy          string
	GatingDistance  float64
	MaxMissedFrames int
	Notes           string
}

// Session is one recorded run.
type Session struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Policy          string     `json:"policy"`
	GatingDistance  float64    `json:"gating_distance"`
	MaxMissedFrames int        `json:"max_missed_frames"`
	Notes           string     `json:"notes,omitempty"`
	Frames          int64      `json:"frames"`
}

// FrameSummary is the per-frame aggregate row of a session.
type FrameSummary struct {
	Frame          uint64    `json:"frame"`
	RecordedAt     time.Time `json:"recorded_at"`
	Detections     int       `json:"detections"`
	Rejected       int       `json:"rejected"`
	Tracks         int       `json:"tracks"`
	Spawned        int       `json:"spawned"`
	Removed        int       `json:"removed"`
	Engaged        int       `json:"engaged"`
	EngagedPercent int       `json:"engaged_percent"`
	Level          string    `json:"level"`
}

// Times are stored as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// StartSession inserts a new session row and returns its ID.
func (db *DB) StartSession(ctx context.Context, info SessionInfo) (string, error) {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (
			session_id, started_at, policy, gating_distance, max_missed_frames, notes
		) VALUES (?, ?, ?, ?, ?, ?)`,
		id, formatTime(info.StartedAt), info.Policy, info.GatingDistance, info.MaxMissedFrames, info.Notes,
	)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		formatTime(endedAt), id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// ListSessions returns every session, newest first.
func (db *DB) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.session_id, s.started_at, s.ended_at, s.policy,
		       s.gating_distance, s.max_missed_frames, s.notes,
		       (SELECT COUNT(*) FROM frames f WHERE f.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			s       Session
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.Policy,
			&s.GatingDistance, &s.MaxMissedFrames, &s.Notes, &s.Frames); err != nil {
			return nil, err
		}
		if s.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("session %s: started_at: %w", s.ID, err)
		}
		if ended.Valid {
			t, err := parseTime(ended.String)
			if err != nil {
				return nil, fmt.Errorf("session %s: ended_at: %w", s.ID, err)
			}
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (db *DB) sessionExists(ctx context.Context, id string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return err
}

// FrameSummaries returns the session's frames in frame order.
func (db *DB) FrameSummaries(ctx context.Context, sessionID string) ([]FrameSummary, error) {
	if err := db.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT frame_index, recorded_at, detections, rejected, tracks,
		       spawned, removed, engaged, engaged_percent, level
		FROM frames
		WHERE session_id = ?
		ORDER BY frame_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := []FrameSummary{}
	for rows.Next() {
		var (
			f        FrameSummary
			recorded string
		)
		if err := rows.Scan(&f.Frame, &recorded, &f.Detections, &f.Rejected, &f.Tracks,
			&f.Spawned, &f.Removed, &f.Engaged, &f.EngagedPercent, &f.Level); err != nil {
			return nil, err
		}
		if f.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("frame %d: recorded_at: %w", f.Frame, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// TrackTrails returns each track's smoothed positions in frame order.
func (db *DB) TrackTrails(ctx context.Context, sessionID string) (map[int64][]tracking.Point, error) {
	if err := db.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT track_id, x, y
		FROM track_observations
		WHERE session_id = ?
		ORDER BY track_id, frame_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trails := make(map[int64][]tracking.Point)
	for rows.Next() {
		var (
			id int64
			p  tracking.Point
		)
		if err := rows.Scan(&id, &p.X, &p.Y); err != nil {
			return nil, err
		}
		trails[id] = append(trails[id], p)
	}
	return trails, rows.Err()
}
