// Package cli holds the terminal helpers shared by the command-line
// binaries: prompts, the video picker, result rendering, and startup
// failure handling.
package cli

import (
	"context"

	"github.com/fpang/tennis-analyzer/internal/lambdaboot"
	"github.com/rs/zerolog/log"
)

// InitGemini creates and validates the Gemini collaborators, exiting with a
// specific message on failure.
func InitGemini(ctx context.Context) *lambdaboot.Gemini {
	g, err := lambdaboot.InitGemini(ctx, true)
	if err != nil {
		HandleValidationError(err)
	}
	log.Info().Msg("API key validation complete - ready for operations")
	return g
}
