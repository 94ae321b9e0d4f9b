// Package main is the Lambda entry point for the tennis analysis API.
//
// It serves the same handler as tennis-web behind API Gateway (HTTP API,
// payload v2). CloudFront adds the x-origin-verify header; requests without
// it are rejected except for the health check.
//
// Endpoints:
//
//	GET  /api/health      health check (no origin header required)
//	GET  /api/upload-url  presigned S3 PUT URL for direct upload
//	POST /api/analyze     ingest an uploaded video and count strokes
//	POST /api/technique   technique breakdown for one stroke type
//	POST /api/release     delete an ingested video or an abandoned upload
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tennis-analyzer/internal/api"
	"github.com/fpang/tennis-analyzer/internal/lambdaboot"
	"github.com/fpang/tennis-analyzer/internal/logging"
)

var adapter *httpadapter.HandlerAdapterV2

func init() {
	initStart := time.Now()
	logging.Init()

	ctx := context.Background()
	aws := lambdaboot.InitAWS(ctx)
	if err := lambdaboot.LoadGeminiKey(ctx, aws.SSM); err != nil {
		log.Fatal().Err(err).Msg("Failed to load Gemini API key")
	}
	store := lambdaboot.InitStore(aws.Config, "")

	// Validation costs a model call on every cold start; a bad key surfaces
	// on the first analysis instead.
	gemini, err := lambdaboot.InitGemini(ctx, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Gemini")
	}

	originSecret := os.Getenv("ORIGIN_VERIFY_SECRET")
	if originSecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set - API Gateway is reachable directly")
	}

	server := api.NewServer(api.Config{
		Storage:            store,
		Ingestor:           gemini.Ingester,
		Inferrer:           gemini.Invoker,
		OriginVerifySecret: originSecret,
		Commit:             commitHash,
		BuildTime:          buildTime,
	})
	adapter = httpadapter.NewV2(server.Handler())

	lambdaboot.StartupLog("tennis-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		S3Bucket("videos", store.Bucket()).
		SSMParam("geminiApiKey", lambdaboot.APIKeyParam()).
		Feature("originVerify", originSecret != "").
		Log()
}

func main() {
	lambda.Start(adapter.ProxyWithContext)
}
