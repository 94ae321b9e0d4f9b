package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/tennis-analyzer/internal/api"
	"github.com/fpang/tennis-analyzer/internal/cli"
	"github.com/fpang/tennis-analyzer/internal/lambdaboot"
	"github.com/fpang/tennis-analyzer/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	portFlag   int
	bucketFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tennis-web",
	Short: "Local API server for tennis stroke analysis",
	Long: `Tennis Web starts a local HTTP server exposing the analysis API:
upload authorization, stroke counting, technique breakdowns, and release of
ingested videos. Videos are uploaded straight to S3 with presigned URLs.

Examples:
  tennis-web --bucket my-tennis-uploads
  tennis-web --port 9090
  MEDIA_BUCKET_NAME=my-tennis-uploads tennis-web`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVar(&bucketFlag, "bucket", "", "S3 bucket for uploads (default $MEDIA_BUCKET_NAME)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	ctx := context.Background()
	gemini := cli.InitGemini(ctx)
	aws := lambdaboot.InitAWS(ctx)
	store := lambdaboot.InitStore(aws.Config, bucketFlag)

	originSecret := os.Getenv("ORIGIN_VERIFY_SECRET")
	server := api.NewServer(api.Config{
		Storage:            store,
		Ingestor:           gemini.Ingester,
		Inferrer:           gemini.Invoker,
		OriginVerifySecret: originSecret,
		AllowLocalCORS:     true,
		Commit:             commitHash,
		BuildTime:          buildTime,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", portFlag),
		Handler:     server.Handler(),
		ReadTimeout: 30 * time.Second,
		// Analysis holds the connection through ingestion and inference.
		WriteTimeout: api.DefaultRequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	lambdaboot.StartupLog("tennis-web", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		S3Bucket("videos", store.Bucket()).
		Feature("originVerify", originSecret != "").
		Feature("localCORS", true).
		Config("port", fmt.Sprint(portFlag)).
		Log()

	fmt.Printf("\n  Tennis Analyzer API: http://localhost:%d/api/health\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
