package analysis

import (
	"math"
	"strings"

	"github.com/fpang/tennis-analyzer/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

// DefaultPlayerDescription is used when the model omits playerDescription.
const DefaultPlayerDescription = "Player analyzed"

// The raw* types mirror what we ask the model for, with pointers so that a
// missing key can be told apart from a zero value.

type rawSpin struct {
	Flat     *float64 `json:"flat"`
	Topspin  *float64 `json:"topspin"`
	Slice    *float64 `json:"slice"`
	Sidespin *float64 `json:"sidespin"`
}

type rawStroke struct {
	StrokeType    *string  `json:"strokeType"`
	Count         *float64 `json:"count"`
	SpinBreakdown *rawSpin `json:"spinBreakdown"`
}

type rawAnalysis struct {
	PlayerDescription *string     `json:"playerDescription"`
	TotalStrokes      *float64    `json:"totalStrokes"`
	Strokes           []rawStroke `json:"strokes"`
	Summary           *string     `json:"summary"`
}

type rawSection struct {
	Observed *string `json:"observed"`
	Feedback *string `json:"feedback"`
}

type rawTechnique struct {
	StrokeType    *string     `json:"strokeType"`
	Grip          *rawSection `json:"grip"`
	Footwork      *rawSection `json:"footwork"`
	ContactPoint  *rawSection `json:"contactPoint"`
	SwingPath     *rawSection `json:"swingPath"`
	FollowThrough *rawSection `json:"followThrough"`
	BodyRotation  *rawSection `json:"bodyRotation"`
	Strengths     *[]string   `json:"strengths"`
	Improvements  *[]string   `json:"improvements"`
	OverallRating *string     `json:"overallRating"`
}

// NormalizeAnalysis parses the stroke-counting answer. Text that is not a
// JSON object fails with KindMalformedResult; missing fields inside a valid
// object are defaulted. The handle fields come from ingestion, not the model.
func NormalizeAnalysis(raw string, handle RemoteVideoHandle) (*AnalysisResult, error) {
	parsed, err := jsonutil.DecodeObject[rawAnalysis](raw)
	if err != nil {
		log.Error().Err(err).Str("response", jsonutil.Preview(raw, 500)).Msg("Failed to parse stroke analysis response")
		return nil, MalformedResult("Analysis response was not valid JSON", err)
	}

	result := &AnalysisResult{
		PlayerDescription:  DefaultPlayerDescription,
		TotalStrokes:       count(parsed.TotalStrokes),
		Strokes:            make([]StrokeTally, 0, len(parsed.Strokes)),
		GeminiFileName:     handle.Name,
		GeminiFileURI:      handle.URI,
		GeminiFileMIMEType: handle.MIMEType,
	}
	if s := text(parsed.PlayerDescription); s != "" {
		result.PlayerDescription = s
	}
	result.Summary = text(parsed.Summary)

	for i, rs := range parsed.Strokes {
		strokeType := text(rs.StrokeType)
		if strokeType == "" {
			log.Warn().Int("index", i).Msg("Dropping stroke entry without strokeType")
			continue
		}
		tally := StrokeTally{StrokeType: strokeType, Count: count(rs.Count)}
		if sb := rs.SpinBreakdown; sb != nil {
			tally.SpinBreakdown = SpinBreakdown{
				Flat:     count(sb.Flat),
				Topspin:  count(sb.Topspin),
				Slice:    count(sb.Slice),
				Sidespin: count(sb.Sidespin),
			}
		}
		if tally.Count != tally.SpinBreakdown.Total() {
			log.Debug().
				Str("strokeType", strokeType).
				Int("count", tally.Count).
				Int("spinTotal", tally.SpinBreakdown.Total()).
				Msg("Stroke count does not match spin breakdown")
		}
		result.Strokes = append(result.Strokes, tally)
	}

	log.Debug().
		Int("totalStrokes", result.TotalStrokes).
		Int("strokeTypes", len(result.Strokes)).
		Msg("Stroke analysis normalized")

	return result, nil
}

// NormalizeTechnique parses a technique breakdown. Every field of the
// requested shape is required; a missing one fails with KindMalformedResult.
func NormalizeTechnique(raw string) (*TechniqueAnalysis, error) {
	return NormalizeTechniqueFor(raw, "")
}

// NormalizeTechniqueFor is NormalizeTechnique, but a missing strokeType is
// filled with requestedStroke when that is non-empty.
func NormalizeTechniqueFor(raw, requestedStroke string) (*TechniqueAnalysis, error) {
	parsed, err := jsonutil.DecodeObject[rawTechnique](raw)
	if err != nil {
		log.Error().Err(err).Str("response", jsonutil.Preview(raw, 500)).Msg("Failed to parse technique response")
		return nil, MalformedResult("Technique response was not valid JSON", err)
	}

	var missing []string
	section := func(name string, rs *rawSection) TechniqueSection {
		if rs == nil {
			missing = append(missing, name)
			return TechniqueSection{}
		}
		if rs.Observed == nil {
			missing = append(missing, name+".observed")
		}
		if rs.Feedback == nil {
			missing = append(missing, name+".feedback")
		}
		return TechniqueSection{Observed: text(rs.Observed), Feedback: text(rs.Feedback)}
	}

	result := &TechniqueAnalysis{
		StrokeType:    text(parsed.StrokeType),
		Grip:          section("grip", parsed.Grip),
		Footwork:      section("footwork", parsed.Footwork),
		ContactPoint:  section("contactPoint", parsed.ContactPoint),
		SwingPath:     section("swingPath", parsed.SwingPath),
		FollowThrough: section("followThrough", parsed.FollowThrough),
		BodyRotation:  section("bodyRotation", parsed.BodyRotation),
		OverallRating: text(parsed.OverallRating),
	}
	if result.StrokeType == "" {
		if requestedStroke == "" {
			missing = append(missing, "strokeType")
		}
		result.StrokeType = requestedStroke
	}
	if parsed.Strengths == nil {
		missing = append(missing, "strengths")
	} else {
		result.Strengths = nonEmpty(*parsed.Strengths)
	}
	if parsed.Improvements == nil {
		missing = append(missing, "improvements")
	} else {
		result.Improvements = nonEmpty(*parsed.Improvements)
	}
	if parsed.OverallRating == nil {
		missing = append(missing, "overallRating")
	}

	if len(missing) > 0 {
		log.Error().Strs("missing", missing).Msg("Technique response is missing required fields")
		return nil, MalformedResult("Technique response is missing fields: "+strings.Join(missing, ", "), nil)
	}
	return result, nil
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// count converts a model-supplied number to a non-negative int.
func count(f *float64) int {
	if f == nil || math.IsNaN(*f) || *f <= 0 {
		return 0
	}
	if *f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(*f))
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
