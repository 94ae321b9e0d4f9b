package chat

import "os"

// Gemini Model IDs
//
// | Model Name                  | API Model ID                | Use Case                      |
// |-----------------------------|-----------------------------|-------------------------------|
// | Gemini 3.1 Pro (Preview)    | gemini-3.1-pro-preview      | Best for complex reasoning    |
// | Gemini 3 Flash (Preview)    | gemini-3-flash-preview      | Best for speed + intelligence |
// | Gemini 2.5 Pro              | gemini-2.5-pro              | Stable, high-reasoning tasks  |
// | Gemini 2.5 Flash            | gemini-2.5-flash            | Stable, balanced performance  |
// | Gemini 2.5 Flash-Lite       | gemini-2.5-flash-lite       | High-throughput, lowest cost  |
const (
	// ModelGemini31ProPreview is best for complex reasoning (1M context).
	ModelGemini31ProPreview = "gemini-3.1-pro-preview"

	// ModelGemini3FlashPreview is best for speed + intelligence.
	ModelGemini3FlashPreview = "gemini-3-flash-preview"

	// ModelGemini25Pro is stable, for high-reasoning tasks.
	ModelGemini25Pro = "gemini-2.5-pro"

	// ModelGemini25Flash is stable, balanced performance.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelGemini25FlashLite is for high-throughput, lowest cost.
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
)

// DefaultStrokeModel counts and classifies strokes. Counting is close to a
// deterministic task, so the faster model is enough.
const DefaultStrokeModel = ModelGemini25Flash

// DefaultTechniqueModel writes the per-stroke coaching breakdown.
const DefaultTechniqueModel = ModelGemini25Pro

// StrokeModelName returns GEMINI_STROKE_MODEL if set, else DefaultStrokeModel.
func StrokeModelName() string {
	if env := os.Getenv("GEMINI_STROKE_MODEL"); env != "" {
		return env
	}
	return DefaultStrokeModel
}

// TechniqueModelName returns GEMINI_TECHNIQUE_MODEL if set, else DefaultTechniqueModel.
func TechniqueModelName() string {
	if env := os.Getenv("GEMINI_TECHNIQUE_MODEL"); env != "" {
		return env
	}
	return DefaultTechniqueModel
}
