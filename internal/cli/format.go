package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatBytes renders a size as B, KB, MB, or GB with one decimal.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}

// RenderAnalysis writes the stroke table. Strokes are numbered from 1 so
// the user can pick one by number.
func RenderAnalysis(w io.Writer, r *analysis.AnalysisResult) {
	fmt.Fprintln(w)
	if r.PlayerDescription != "" {
		fmt.Fprintf(w, "Player: %s\n", r.PlayerDescription)
	}
	fmt.Fprintf(w, "Total strokes: %d\n\n", r.TotalStrokes)

	if len(r.Strokes) == 0 {
		fmt.Fprintln(w, "  No strokes detected.")
	} else {
		fmt.Fprintf(w, "  %-3s %-28s %5s   %4s %7s %5s %8s\n", "#", "Stroke", "Count", "Flat", "Topspin", "Slice", "Sidespin")
		for i, s := range r.Strokes {
			fmt.Fprintf(w, "  %-3d %-28s %5d   %4d %7d %5d %8d\n",
				i+1, s.StrokeType, s.Count,
				s.SpinBreakdown.Flat, s.SpinBreakdown.Topspin, s.SpinBreakdown.Slice, s.SpinBreakdown.Sidespin)
		}
	}

	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", r.Summary)
	}
	fmt.Fprintln(w)
}

// RenderTechnique writes the technique breakdown for one stroke type.
func RenderTechnique(w io.Writer, t *analysis.TechniqueAnalysis) {
	title := fmt.Sprintf("%s technique", t.StrokeType)
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
	if t.OverallRating != "" {
		fmt.Fprintf(w, "Overall rating: %s\n", t.OverallRating)
	}

	for _, s := range t.Sections() {
		if s.Observed == "" && s.Feedback == "" {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", s.Title)
		if s.Observed != "" {
			fmt.Fprintf(w, "  Observed: %s\n", s.Observed)
		}
		if s.Feedback != "" {
			fmt.Fprintf(w, "  Feedback: %s\n", s.Feedback)
		}
	}

	renderList(w, "Strengths", t.Strengths)
	renderList(w, "Improvements", t.Improvements)
	fmt.Fprintln(w)
}

func renderList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}
