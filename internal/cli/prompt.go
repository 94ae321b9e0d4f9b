package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrCanceled is returned when the user dismisses a picker or closes input.
var ErrCanceled = errors.New("canceled")

// Prompter reads line-oriented answers from a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a Prompter reading from in and echoing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Line prints prompt and returns the trimmed answer. At end of input it
// returns ErrCanceled.
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	input, err := p.in.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && input != "":
		// last line without a trailing newline
	case errors.Is(err, io.EOF):
		return "", ErrCanceled
	default:
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PlayerSide asks for near or far until it gets a valid answer. An empty
// answer picks def.
func (p *Prompter) PlayerSide(def analysis.PlayerSide) (analysis.PlayerSide, error) {
	for {
		answer, err := p.Line(fmt.Sprintf("Which player? near/far [%s]: ", def))
		if err != nil {
			return "", err
		}
		if answer == "" {
			return def, nil
		}
		side, err := analysis.ParsePlayerSide(strings.ToLower(answer))
		if err == nil {
			return side, nil
		}
		fmt.Fprintln(p.out, "  Please answer 'near' or 'far'.")
	}
}

// VideoPath asks for a path to a video file.
func (p *Prompter) VideoPath() (string, error) {
	for {
		answer, err := p.Line("Video file: ")
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
	}
}

// SelectVideoFile opens the native file picker filtered to supported video
// extensions.
func SelectVideoFile() (string, error) {
	patterns := make([]string, 0, len(filehandler.SupportedVideoExtensions))
	for ext := range filehandler.SupportedVideoExtensions {
		patterns = append(patterns, "*"+ext)
	}
	sort.Strings(patterns)

	path, err := zenity.SelectFile(
		zenity.Title("Select a tennis video"),
		zenity.FileFilters{{Name: "Videos", Patterns: patterns}},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCanceled
		}
		log.Debug().Err(err).Msg("File picker unavailable")
		return "", err
	}
	return path, nil
}
