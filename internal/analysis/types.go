// Package analysis holds the result shapes shared by the server, the HTTP
// client, and the session orchestrator, together with the normalizer that
// turns the model's free-form JSON into those shapes.
//
// Everything returned by the normalizer has been validated; nothing
// partially decoded crosses this package boundary.
package analysis

import (
	"fmt"
	"strings"
)

// PlayerSide identifies which player in the frame is analyzed.
type PlayerSide string

const (
	SideNear PlayerSide = "near"
	SideFar  PlayerSide = "far"
)

// ParsePlayerSide accepts "near" or "far" (case-insensitive).
func ParsePlayerSide(s string) (PlayerSide, error) {
	side := PlayerSide(strings.ToLower(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", Validation("playerSide must be 'near' or 'far'")
	}
	return side, nil
}

// Valid reports whether p is one of the two known sides.
func (p PlayerSide) Valid() bool {
	return p == SideNear || p == SideFar
}

// Describe returns the phrase used in prompts to point the model at the player.
func (p PlayerSide) Describe() string {
	if p == SideFar {
		return "the player on the FAR side of the court (further from the camera)"
	}
	return "the player on the NEAR side of the court (closer to the camera)"
}

// RemoteVideoHandle is the inference provider's reference to an ingested
// video. It is produced once per session and reused by every technique request.
type RemoteVideoHandle struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
}

// SpinBreakdown counts strokes of one type by spin style.
type SpinBreakdown struct {
	Flat     int `json:"flat"`
	Topspin  int `json:"topspin"`
	Slice    int `json:"slice"`
	Sidespin int `json:"sidespin"`
}

// Total is the sum over all spin styles. It is not guaranteed to equal the
// stroke count reported alongside it.
func (s SpinBreakdown) Total() int {
	return s.Flat + s.Topspin + s.Slice + s.Sidespin
}

// StrokeTally is the count for a single stroke type.
type StrokeTally struct {
	StrokeType    string        `json:"strokeType"`
	Count         int           `json:"count"`
	SpinBreakdown SpinBreakdown `json:"spinBreakdown"`
}

// AnalysisResult is the stroke-counting output for one video.
type AnalysisResult struct {
	PlayerDescription  string        `json:"playerDescription"`
	TotalStrokes       int           `json:"totalStrokes"`
	Strokes            []StrokeTally `json:"strokes"`
	Summary            string        `json:"summary"`
	GeminiFileName     string        `json:"geminiFileName"`
	GeminiFileURI      string        `json:"geminiFileUri"`
	GeminiFileMIMEType string        `json:"geminiFileMimeType"`
}

// Handle returns the remote video reference embedded in the result.
func (r *AnalysisResult) Handle() RemoteVideoHandle {
	return RemoteVideoHandle{
		Name:     r.GeminiFileName,
		URI:      r.GeminiFileURI,
		MIMEType: r.GeminiFileMIMEType,
	}
}

// Stroke looks up a tally by stroke type.
func (r *AnalysisResult) Stroke(strokeType string) (StrokeTally, bool) {
	for _, s := range r.Strokes {
		if s.StrokeType == strokeType {
			return s, true
		}
	}
	return StrokeTally{}, false
}

// TechniqueSection is one aspect of a stroke: what the model saw and what it suggests.
type TechniqueSection struct {
	Observed string `json:"observed"`
	Feedback string `json:"feedback"`
}

// TechniqueAnalysis is the coaching breakdown for one stroke type.
type TechniqueAnalysis struct {
	StrokeType    string           `json:"strokeType"`
	Grip          TechniqueSection `json:"grip"`
	Footwork      TechniqueSection `json:"footwork"`
	ContactPoint  TechniqueSection `json:"contactPoint"`
	SwingPath     TechniqueSection `json:"swingPath"`
	FollowThrough TechniqueSection `json:"followThrough"`
	BodyRotation  TechniqueSection `json:"bodyRotation"`
	Strengths     []string         `json:"strengths"`
	Improvements  []string         `json:"improvements"`
	OverallRating string           `json:"overallRating"`
}

// NamedSection pairs a section with its display title.
type NamedSection struct {
	Title string
	TechniqueSection
}

// Sections returns the six technique sections in display order.
func (t *TechniqueAnalysis) Sections() []NamedSection {
	return []NamedSection{
		{"Grip", t.Grip},
		{"Footwork", t.Footwork},
		{"Contact Point", t.ContactPoint},
		{"Swing Path", t.SwingPath},
		{"Follow Through", t.FollowThrough},
		{"Body Rotation", t.BodyRotation},
	}
}

func (t *TechniqueAnalysis) String() string {
	return fmt.Sprintf("TechniqueAnalysis(%s)", t.StrokeType)
}
