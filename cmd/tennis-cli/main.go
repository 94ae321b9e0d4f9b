package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/cli"
	"github.com/fpang/tennis-analyzer/internal/client"
	"github.com/fpang/tennis-analyzer/internal/logging"
	"github.com/fpang/tennis-analyzer/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	serverFlag string
	sideFlag   string
	videoFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "tennis-cli",
	Short: "Count tennis strokes and get technique feedback from the terminal",
	Long: `Tennis CLI uploads a video to a tennis-web or tennis-lambda server, shows
the stroke count for one player, and lets you drill into the technique of
any stroke type. The video is ingested once and reused for every breakdown.

When --video is omitted a file picker opens; without a desktop the path is
asked for on the terminal.

Examples:
  tennis-cli --video rally.mp4 --side near
  tennis-cli --server https://tennis.example.com
  tennis-cli  # Interactive mode - picks a video and asks for the side`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&serverFlag, "server", logging.EnvOrDefault("TENNIS_SERVER_URL", "http://localhost:8080"), "Base URL of the analysis API")
	rootCmd.Flags().StringVar(&sideFlag, "side", "", "Player to analyze: near or far (asked if omitted)")
	rootCmd.Flags().StringVarP(&videoFlag, "video", "v", "", "Video file to analyze")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	logging.Init()

	var side analysis.PlayerSide
	if sideFlag != "" {
		var err error
		if side, err = analysis.ParsePlayerSide(sideFlag); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := client.New(serverFlag, client.WithOriginSecret(os.Getenv("ORIGIN_VERIFY_SECRET")))
	prompt := cli.NewPrompter(os.Stdin, os.Stdout)
	driver := session.NewDriver(backend)

	log.Debug().Str("server", serverFlag).Msg("Starting session")
	return newApp(driver, prompt, os.Stdout, side, videoSource(videoFlag, prompt)).run(ctx)
}

// videoSource returns the --video path first, then the file picker, and
// falls back to the terminal when no picker is available.
func videoSource(flagPath string, prompt *cli.Prompter) func() (string, error) {
	usedFlag := false
	pickerWorks := true
	return func() (string, error) {
		if !usedFlag {
			usedFlag = true
			if flagPath != "" {
				return flagPath, nil
			}
		}
		if pickerWorks {
			path, err := cli.SelectVideoFile()
			if err == nil {
				return path, nil
			}
			if errors.Is(err, cli.ErrCanceled) {
				return "", err
			}
			pickerWorks = false
		}
		return prompt.VideoPath()
	}
}
