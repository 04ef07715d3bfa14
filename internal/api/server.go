// Package api serves the live tracker state, recorded sessions and charts
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/attention.report/internal/attention"
	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/pipeline"
	"github.com/banshee-data/attention.report/internal/tracking"
	"github.com/banshee-data/attention.report/internal/version"
)

// SessionStore is the read side of the session recorder. *db.DB
// implements it.
type SessionStore interface {
	ListSessions(ctx context.Context) ([]db.Session, error)
	FrameSummaries(ctx context.Context, sessionID string) ([]db.FrameSummary, error)
}

// Server holds the most recent published frame and answers API requests
// from it. It implements pipeline.Publisher.
type Server struct {
	store SessionStore // nil when recording is disabled
	reset func()       // nil when reset is not offered

	mu        sync.RWMutex
	latest    pipeline.Snapshot
	have      bool
	published int
}

// NewServer returns a Server. store and reset may be nil.
func NewServer(store SessionStore, reset func()) *Server {
	return &Server{store: store, reset: reset}
}

// Publish replaces the live state.
func (s *Server) Publish(snap pipeline.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.have = true
	s.published++
	s.mu.Unlock()
}

// Latest returns the last published frame and whether there was one.
func (s *Server) Latest() (pipeline.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.have
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/debug/frame", s.showDebugFrame)
	mux.HandleFunc("/api/tracker/reset", s.resetTracker)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}/frames", s.listSessionFrames)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/charts/attention", s.handleAttentionChart)
	mux.HandleFunc("/charts/tracks", s.handleTracksChart)
	return mux
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snap, _ := s.Latest()
	tracks := snap.Tracks
	if tracks == nil {
		tracks = []tracking.TrackView{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// SummaryResponse is the body of /api/summary.
type SummaryResponse struct {
	Frame      uint64            `json:"frame"`
	Timestamp  time.Time         `json:"timestamp"`
	Detections int               `json:"detections"`
	Rejected   int               `json:"rejected"`
	Summary    attention.Summary `json:"summary"`
	Counts     map[string]int    `json:"counts"`
	Published  int               `json:"published"`
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.mu.RLock()
	snap, published := s.latest, s.published
	s.mu.RUnlock()

	counts := snap.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	summary := snap.Summary
	if summary.Level == "" {
		summary = attention.Summarize(nil, summary.Strictness)
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		Frame:      snap.Frame,
		Timestamp:  snap.Timestamp,
		Detections: snap.Detections,
		Rejected:   snap.Rejected,
		Summary:    summary,
		Counts:     counts,
		Published:  published,
	})
}

func (s *Server) showDebugFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snap, _ := s.Latest()
	if snap.Debug == nil {
		writeJSONError(w, http.StatusNotFound, "no debug frame recorded")
		return
	}
	writeJSON(w, http.StatusOK, snap.Debug)
}

func (s *Server) resetTracker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.reset == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "tracker reset is not available")
		return
	}
	// The hook publishes the empty state, so s.mu must not be held here.
	s.reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "session recording is disabled")
		return
	}
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) listSessionFrames(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "session recording is disabled")
		return
	}
	frames, err := s.store.FrameSummaries(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrSessionNotFound) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, frames)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, version.Current())
}
