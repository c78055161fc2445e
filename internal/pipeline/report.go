package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Stage names the step at which an item degraded.
type Stage string

const (
	StageTransliterate Stage = "transliterate"
	StageSynthesize    Stage = "synthesize"
)

// ItemFailure identifies one degraded item.
type ItemFailure struct {
	ItemID string
	Level  int
	Stage  Stage
	Err    error
}

// RunReport summarizes a completed run.
type RunReport struct {
	ItemsProcessed        int
	AudioSkipped          int
	AudioSynthesized      int
	AudioFailed           int
	TransliterationFailed int

	Failures         []ItemFailure
	Nondeterministic []string
	ManifestPath     string
	Duration         time.Duration
}

// HasDegradedItems reports whether any item lost its pronunciation or audio.
func (r *RunReport) HasDegradedItems() bool {
	return len(r.Failures) > 0
}

// FailuresAt returns the failures of one stage in input order.
func (r *RunReport) FailuresAt(stage Stage) []ItemFailure {
	var out []ItemFailure
	for _, f := range r.Failures {
		if f.Stage == stage {
			out = append(out, f)
		}
	}
	return out
}

func (r *RunReport) String() string {
	return fmt.Sprintf("%d items: %d audio synthesized, %d cached, %d failed; %d transliterations failed",
		r.ItemsProcessed, r.AudioSynthesized, r.AudioSkipped, r.AudioFailed, r.TransliterationFailed)
}

// RenderReport renders the counts and every degraded item as tables.
func RenderReport(r *RunReport) string {
	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.AppendHeader(table.Row{"Metric", "Count"})
	summary.AppendRows([]table.Row{
		{"Items processed", r.ItemsProcessed},
		{"Audio synthesized", r.AudioSynthesized},
		{"Audio cached", r.AudioSkipped},
		{"Audio failed", r.AudioFailed},
		{"Transliteration failed", r.TransliterationFailed},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	var b strings.Builder
	b.WriteString(summary.Render())
	b.WriteString("\n")

	if r.HasDegradedItems() {
		failures := table.NewWriter()
		failures.SetStyle(table.StyleRounded)
		failures.AppendHeader(table.Row{"Item", "Level", "Stage", "Error"})
		for _, f := range r.Failures {
			failures.AppendRow(table.Row{f.ItemID, strconv.Itoa(f.Level), string(f.Stage), errorText(f.Err)})
		}
		b.WriteString(failures.Render())
		b.WriteString("\n")
	}

	if len(r.Nondeterministic) > 0 {
		fmt.Fprintf(&b, "Transliteration differed between calls for: %s\n", strings.Join(r.Nondeterministic, ", "))
	}
	if r.ManifestPath != "" {
		fmt.Fprintf(&b, "Manifest: %s (%s)\n", r.ManifestPath, r.Duration.Round(time.Millisecond))
	}
	return b.String()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
