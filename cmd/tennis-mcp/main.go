package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fpang/tennis-analyzer/internal/client"
	"github.com/fpang/tennis-analyzer/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var serverFlag string

var rootCmd = &cobra.Command{
	Use:   "tennis-mcp",
	Short: "MCP server exposing tennis stroke and technique analysis",
	Long: `Tennis MCP speaks the Model Context Protocol over stdio so an assistant
can count strokes in a local video and ask for technique breakdowns. Calls go
to a running tennis-web or tennis-lambda server.

Logs go to stderr; stdout carries the protocol.

Examples:
  tennis-mcp --server http://localhost:8080`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&serverFlag, "server", logging.EnvOrDefault("TENNIS_SERVER_URL", "http://localhost:8080"), "Base URL of the analysis API")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := client.New(serverFlag, client.WithOriginSecret(os.Getenv("ORIGIN_VERIFY_SECRET")))
	log.Info().Str("server", serverFlag).Msg("Starting MCP server on stdio")
	return newMCPServer(backend, version).Run(ctx, &mcp.StdioTransport{})
}
