package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/assets"
	"github.com/fpang/tennis-analyzer/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// TaskKind selects the prompt, model, and temperature for an inference call.
type TaskKind int

const (
	// StrokeCounting counts and classifies every stroke by one player.
	StrokeCounting TaskKind = iota
	// TechniqueBreakdown coaches one stroke type in detail.
	TechniqueBreakdown
)

func (k TaskKind) String() string {
	switch k {
	case StrokeCounting:
		return "stroke_counting"
	case TechniqueBreakdown:
		return "technique_breakdown"
	default:
		return "unknown"
	}
}

const (
	strokeTemperature    float32 = 0.1
	techniqueTemperature float32 = 0.2
)

// Params carries the per-task inputs. StrokeType is only used by
// TechniqueBreakdown.
type Params struct {
	Side       analysis.PlayerSide
	StrokeType string
}

// Generator is the subset of the Gemini Models API used for inference.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Invoker runs one analysis prompt against an ingested video.
type Invoker struct {
	models Generator
}

// NewInvoker creates an Invoker. Pass client.Models for the real API.
func NewInvoker(models Generator) *Invoker {
	return &Invoker{models: models}
}

// BuildInstruction renders the prompt for a task.
func BuildInstruction(kind TaskKind, params Params) (string, error) {
	if !params.Side.Valid() {
		return "", analysis.Validation("playerSide must be 'near' or 'far'")
	}
	switch kind {
	case StrokeCounting:
		return assets.RenderStrokeCountingPrompt(params.Side.Describe())
	case TechniqueBreakdown:
		if strings.TrimSpace(params.StrokeType) == "" {
			return "", analysis.Validation("strokeType is required")
		}
		return assets.RenderTechniquePrompt(params.StrokeType, params.Side.Describe())
	default:
		return "", analysis.Validation(fmt.Sprintf("unknown task kind %d", kind))
	}
}

func modelFor(kind TaskKind) (string, float32) {
	if kind == TechniqueBreakdown {
		return TechniqueModelName(), techniqueTemperature
	}
	return StrokeModelName(), strokeTemperature
}

// Run sends the video reference and the rendered instruction in a single
// request and returns the raw response text. An empty response is returned
// as "{}" so the normalizer can apply its defaults.
func (iv *Invoker) Run(ctx context.Context, handle analysis.RemoteVideoHandle, kind TaskKind, params Params) (string, error) {
	if handle.URI == "" {
		return "", analysis.Validation("geminiFileUri is required")
	}
	prompt, err := BuildInstruction(kind, params)
	if err != nil {
		return "", err
	}

	mimeType := handle.MIMEType
	if mimeType == "" {
		mimeType = DefaultVideoMIMEType
	}

	modelName, temperature := modelFor(kind)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{FileData: &genai.FileData{MIMEType: mimeType, FileURI: handle.URI}},
			{Text: prompt},
		},
	}}

	log.Debug().
		Str("model", modelName).
		Str("task", kind.String()).
		Str("stroke_type", params.StrokeType).
		Str("side", string(params.Side)).
		Int("prompt_length", len(prompt)).
		Msg("Starting Gemini API call")

	callStart := time.Now()
	resp, err := iv.models.GenerateContent(ctx, modelName, contents, config)
	duration := time.Since(callStart)

	m := metrics.New().
		Dimension("Task", kind.String()).
		Duration("GeminiInferenceMs", duration).
		Count("GeminiApiCalls").
		Property("model", modelName)

	if err != nil {
		m.Count("GeminiApiErrors").Flush()
		log.Error().Err(err).Str("task", kind.String()).Dur("duration", duration).Msg("Gemini API call failed")
		return "", analysis.Inference("Analysis request failed", err)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
		if resp.UsageMetadata != nil {
			m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount).
				Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
		}
	}
	m.Flush()

	if strings.TrimSpace(text) == "" {
		log.Warn().Str("task", kind.String()).Msg("Gemini returned an empty response")
		text = "{}"
	}

	log.Info().
		Str("task", kind.String()).
		Int("response_length", len(text)).
		Dur("duration", duration).
		Msg("Gemini API response received")

	return text, nil
}
