// Package attention turns a frame's tracks into the room-level engagement
// summary: how many subjects are tracked, what share of them is engaged,
// and which band that share falls in for the configured strictness.
package attention

import (
	"math"

	"github.com/banshee-data/attention.report/internal/tracking"
)

// Behavioural-state labels emitted by the classifier.
const (
	LabelFocused     = "Focused"
	LabelWriting     = "Writing"
	LabelLookingAway = "Looking Away"
	LabelSleeping    = "Sleeping"
)

// Level is the engagement band of a summary.
type Level string

const (
	LevelFocused Level = "focused"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Summary is the aggregate over one frame's tracks.
type Summary struct {
	Total          int   `json:"total"`
	Engaged        int   `json:"engaged"`
	EngagedPercent int   `json:"engaged_percent"`
	Level          Level `json:"level"`
	Strictness     int   `json:"strictness"`
}

// Summarize counts engaged tracks and classifies the engaged percentage.
// Strictness is clamped to [0, 100]; the focused threshold is
// 100 - strictness and the warning threshold half of that.
func Summarize(tracks []tracking.TrackView, strictness int) Summary {
	strictness = clampStrictness(strictness)
	s := Summary{Total: len(tracks), Strictness: strictness}
	for _, tr := range tracks {
		if tr.Engaged {
			s.Engaged++
		}
	}
	if s.Total > 0 {
		s.EngagedPercent = int(math.Round(100 * float64(s.Engaged) / float64(s.Total)))
	}
	s.Level = Classify(s.EngagedPercent, strictness)
	return s
}

// Classify returns the band for an engaged percentage.
func Classify(pct, strictness int) Level {
	threshold := float64(100 - clampStrictness(strictness))
	switch p := float64(pct); {
	case p >= threshold:
		return LevelFocused
	case p >= threshold/2:
		return LevelWarning
	default:
		return LevelDanger
	}
}

// Counts returns a histogram of track labels.
func Counts(tracks []tracking.TrackView) map[string]int {
	out := make(map[string]int)
	for _, tr := range tracks {
		out[tr.Label]++
	}
	return out
}

func clampStrictness(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
