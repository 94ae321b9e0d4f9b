package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/assets"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/fpang/tennis-analyzer/internal/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// AnalyzeStrokesInput is the argument of the analyze_strokes tool.
type AnalyzeStrokesInput struct {
	VideoPath  string `json:"videoPath" jsonschema:"path to a local tennis video (mp4, mov, avi, webm, mkv)"`
	PlayerSide string `json:"playerSide" jsonschema:"player to analyze: near (closer to the camera) or far"`
}

// AnalyzeTechniqueInput is the argument of the analyze_technique tool.
type AnalyzeTechniqueInput struct {
	GeminiFileURI      string `json:"geminiFileUri" jsonschema:"geminiFileUri returned by analyze_strokes"`
	GeminiFileMIMEType string `json:"geminiFileMimeType,omitempty" jsonschema:"geminiFileMimeType returned by analyze_strokes"`
	StrokeType         string `json:"strokeType" jsonschema:"stroke type from the analyze_strokes result, for example Serve"`
	PlayerSide         string `json:"playerSide" jsonschema:"near or far, the same side used for analyze_strokes"`
}

// ReleaseVideoInput is the argument of the release_video tool.
type ReleaseVideoInput struct {
	GeminiFileName string `json:"geminiFileName" jsonschema:"geminiFileName returned by analyze_strokes"`
}

// ReleaseVideoOutput confirms a release.
type ReleaseVideoOutput struct {
	Released string `json:"released"`
}

type tools struct {
	backend session.Backend
}

func newMCPServer(backend session.Backend, version string) *mcp.Server {
	t := &tools{backend: backend}
	server := mcp.NewServer(&mcp.Implementation{Name: "tennis-analyzer", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_strokes",
		Description: "Upload a tennis video and count one player's strokes by type and spin. " +
			"The result includes geminiFileUri and geminiFileName, which analyze_technique and release_video reuse.",
	}, t.analyzeStrokes)

	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_technique",
		Description: "Coaching breakdown of one stroke type in a video already processed by analyze_strokes. " +
			"Known stroke types: " + fmt.Sprint(assets.StrokeTypes),
	}, t.analyzeTechnique)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "release_video",
		Description: "Delete a processed video from Gemini once no more technique questions will be asked.",
	}, t.releaseVideo)

	return server
}

func (t *tools) analyzeStrokes(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeStrokesInput) (*mcp.CallToolResult, any, error) {
	side, err := analysis.ParsePlayerSide(in.PlayerSide)
	if err != nil {
		return nil, nil, err
	}
	vf, err := filehandler.LoadVideoFile(in.VideoPath)
	if err != nil {
		return nil, nil, err
	}

	blobURL, err := t.backend.UploadVideo(ctx, vf)
	if err != nil {
		return nil, nil, err
	}
	result, err := t.backend.Analyze(ctx, blobURL, side)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("video", vf.Name).
		Int("totalStrokes", result.TotalStrokes).
		Str("geminiFile", result.GeminiFileName).
		Msg("Stroke analysis complete")
	return nil, result, nil
}

func (t *tools) analyzeTechnique(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeTechniqueInput) (*mcp.CallToolResult, any, error) {
	if in.GeminiFileURI == "" || in.StrokeType == "" {
		return nil, nil, errors.New("geminiFileUri and strokeType are required")
	}
	side, err := analysis.ParsePlayerSide(in.PlayerSide)
	if err != nil {
		return nil, nil, err
	}

	handle := analysis.RemoteVideoHandle{URI: in.GeminiFileURI, MIMEType: in.GeminiFileMIMEType}
	technique, err := t.backend.Technique(ctx, handle, in.StrokeType, side)
	if err != nil {
		return nil, nil, err
	}
	return nil, technique, nil
}

func (t *tools) releaseVideo(ctx context.Context, _ *mcp.CallToolRequest, in ReleaseVideoInput) (*mcp.CallToolResult, ReleaseVideoOutput, error) {
	if in.GeminiFileName == "" {
		return nil, ReleaseVideoOutput{}, errors.New("geminiFileName is required")
	}
	if err := t.backend.Release(ctx, in.GeminiFileName); err != nil {
		return nil, ReleaseVideoOutput{}, err
	}
	return nil, ReleaseVideoOutput{Released: in.GeminiFileName}, nil
}
