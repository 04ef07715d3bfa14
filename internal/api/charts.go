package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/attention.report/internal/db"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleAttentionChart renders engaged percentage and track count over the
// frames of a recorded session. Without ?session= the newest session is
// used.
func (s *Server) handleAttentionChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "session recording is disabled")
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessions, err := s.store.ListSessions(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(sessions) == 0 {
			writeJSONError(w, http.StatusNotFound, "no sessions recorded")
			return
		}
		sessionID = sessions[0].ID
	}

	frames, err := s.store.FrameSummaries(r.Context(), sessionID)
	if errors.Is(err, db.ErrSessionNotFound) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	x := make([]string, 0, len(frames))
	engaged := make([]opts.LineData, 0, len(frames))
	tracks := make([]opts.LineData, 0, len(frames))
	for _, f := range frames {
		x = append(x, strconv.FormatUint(f.Frame, 10))
		engaged = append(engaged, opts.LineData{Value: f.EngagedPercent})
		tracks = append(tracks, opts.LineData{Value: f.Tracks})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Attention", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Engagement", Subtitle: fmt.Sprintf("session=%s frames=%d", sessionID, len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(x).
		AddSeries("engaged %", engaged).
		AddSeries("tracks", tracks)

	renderChart(w, line)
}

// handleTracksChart renders the current smoothed track positions in image
// coordinates, one series per track.
func (s *Server) handleTracksChart(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Latest()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no frame processed yet")
		return
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracks", Width: "900px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Live tracks", Subtitle: fmt.Sprintf("frame=%d tracks=%d ts=%s", snap.Frame, len(snap.Tracks), snap.Timestamp.UTC().Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (px)", NameLocation: "middle", NameGap: 40}),
	)
	for _, t := range snap.Tracks {
		name := fmt.Sprintf("#%d %s (%s)", t.ID, t.Name, t.Label)
		scatter.AddSeries(name, []opts.ScatterData{{Value: []interface{}{t.Position.X, t.Position.Y}}},
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}

	renderChart(w, scatter)
}

type renderer interface {
	Render(w io.Writer) error
}

func renderChart(w http.ResponseWriter, c renderer) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
