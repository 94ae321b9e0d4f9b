package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/cli"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/fpang/tennis-analyzer/internal/session"
	"github.com/rs/zerolog/log"
)

// app drives one terminal session until the user quits.
type app struct {
	driver *session.Driver
	prompt *cli.Prompter
	out    io.Writer

	// side is fixed by --side; empty means ask before each upload.
	side analysis.PlayerSide
	// nextVideo returns the path of the next video to upload.
	nextVideo func() (string, error)

	started time.Time
}

func newApp(driver *session.Driver, prompt *cli.Prompter, out io.Writer, side analysis.PlayerSide, nextVideo func() (string, error)) *app {
	a := &app{driver: driver, prompt: prompt, out: out, side: side, nextVideo: nextVideo}
	driver.OnChange(a.observe)
	return a
}

func (a *app) observe(s session.State) {
	switch {
	case s.Stage == session.Uploading:
		a.started = time.Now()
		fmt.Fprintln(a.out, "Uploading video...")
	case s.Stage == session.Analyzing:
		log.Info().Str("blobUrl", s.BlobURL).Msg("Upload complete")
		fmt.Fprintln(a.out, "Upload complete. Analyzing strokes, this can take a few minutes...")
	case s.Stage == session.Results && s.Result != nil && s.LoadingStroke == "" && !a.started.IsZero():
		fmt.Fprintf(a.out, "Analysis finished in %s.\n", cli.FormatDurationShort(time.Since(a.started)))
		a.started = time.Time{}
	case s.LoadingStroke != "":
		fmt.Fprintf(a.out, "Analyzing %s technique...\n", s.LoadingStroke)
	}
}

// run loops over the session stages. It returns nil when the user quits or
// input ends, after releasing the ingested video.
func (a *app) run(ctx context.Context) error {
	defer a.quit()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		s := a.driver.Snapshot()
		if s.Err != "" {
			fmt.Fprintf(a.out, "\nError: %s\n", s.Err)
			a.driver.DismissError()
		}

		var err error
		switch s.Stage {
		case session.Idle:
			err = a.upload(ctx)
		case session.Results:
			err = a.results(ctx, s)
		case session.TechniqueDetail:
			err = a.detail(s)
		default:
			err = fmt.Errorf("unexpected stage %s", s.Stage)
		}

		if errors.Is(err, errQuit) || errors.Is(err, cli.ErrCanceled) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

var errQuit = errors.New("quit")

func (a *app) upload(ctx context.Context) error {
	path, err := a.nextVideo()
	if err != nil {
		return err
	}
	vf, err := filehandler.LoadVideoFile(path)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return nil
	}
	fmt.Fprintf(a.out, "Selected %s (%s)\n", vf.Name, cli.FormatBytes(vf.Size))

	side := a.side
	if side == "" {
		if side, err = a.prompt.PlayerSide(analysis.SideNear); err != nil {
			return err
		}
	}

	// Failures land in the session state and are shown on the next pass.
	if err := a.driver.Upload(ctx, session.UploadInput{Video: vf, Side: side}); err != nil {
		log.Debug().Err(err).Msg("Upload did not reach results")
	}
	return nil
}

func (a *app) results(ctx context.Context, s session.State) error {
	cli.RenderAnalysis(a.out, s.Result)

	answer, err := a.prompt.Line("Stroke number for technique, r to start over, q to quit: ")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "q", "quit":
		return errQuit
	case "r", "reset":
		a.driver.Reset()
		return nil
	case "":
		return nil
	}

	stroke, ok := pickStroke(s.Result, answer)
	if !ok {
		fmt.Fprintf(a.out, "No stroke %q in this analysis.\n", answer)
		return nil
	}
	if err := a.driver.SelectStroke(ctx, stroke); err != nil {
		log.Debug().Err(err).Str("stroke", stroke).Msg("Technique request failed")
	}
	return nil
}

func (a *app) detail(s session.State) error {
	cli.RenderTechnique(a.out, s.Technique)

	answer, err := a.prompt.Line("Enter to go back, r to start over, q to quit: ")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "q", "quit":
		return errQuit
	case "r", "reset":
		a.driver.Reset()
		return nil
	}
	return a.driver.Close()
}

// quit releases the ingested video and waits for the release to finish.
func (a *app) quit() {
	a.driver.Reset()
	a.driver.Drain()
}

// pickStroke resolves a table number or a stroke name.
func pickStroke(r *analysis.AnalysisResult, answer string) (string, bool) {
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(r.Strokes) {
			return r.Strokes[n-1].StrokeType, true
		}
		return "", false
	}
	for _, s := range r.Strokes {
		if strings.EqualFold(s.StrokeType, answer) {
			return s.StrokeType, true
		}
	}
	return "", false
}
