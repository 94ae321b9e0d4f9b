// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time. Each template spells out the exact JSON shape the model must
// answer with; the field names there are the contract the normalizer checks.
package assets

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"text/template"
)

//go:embed prompts/stroke-counting.txt
var strokeCountingTemplate string

//go:embed prompts/technique-analysis.txt
var techniqueAnalysisTemplate string

// StrokeTypes are the stroke categories the counting prompt asks about.
var StrokeTypes = []string{
	"Forehand groundstroke",
	"Backhand groundstroke",
	"Forehand volley",
	"Backhand volley",
	"Serve",
	"Return of serve",
	"Overhead/smash",
	"Drop shot",
	"Lob",
}

var funcs = template.FuncMap{
	// json renders a value as a JSON literal so a stroke type containing
	// quotes cannot break the example object in the prompt.
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// Pre-parsed templates. template.Must panics on malformed templates,
// catching errors at program startup rather than at call time.
var (
	strokeCountingTmpl    = template.Must(template.New("strokes").Funcs(funcs).Parse(strokeCountingTemplate))
	techniqueAnalysisTmpl = template.Must(template.New("technique").Funcs(funcs).Parse(techniqueAnalysisTemplate))
)

// PromptData holds the dynamic data injected into prompt templates.
type PromptData struct {
	SideDescription string
	StrokeType      string
	StrokeTypes     []string
}

// RenderStrokeCountingPrompt renders the stroke counting instruction.
func RenderStrokeCountingPrompt(sideDescription string) (string, error) {
	return render(strokeCountingTmpl, PromptData{
		SideDescription: sideDescription,
		StrokeTypes:     StrokeTypes,
	})
}

// RenderTechniquePrompt renders the per-stroke technique instruction.
func RenderTechniquePrompt(strokeType, sideDescription string) (string, error) {
	return render(techniqueAnalysisTmpl, PromptData{
		SideDescription: sideDescription,
		StrokeType:      strokeType,
	})
}

func render(tmpl *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
