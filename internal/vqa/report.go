package vqa

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// WriteReport prints a human-readable summary of result followed by a
// per-outcome comparison table.
func WriteReport(w io.Writer, r *TrainingResult) error {
	lines := []struct {
		label string
		value string
	}{
		{"Target Distribution", formatVector(r.Target)},
		{"Obtained Distribution", formatVector(r.Output)},
		{"Output Error (Manhattan Distance)", formatFloat(r.Cost)},
		{"Final Run Distance", formatFloat(r.FinalCost)},
		{"Parameters Found", formatVector(r.Params)},
		{"Initial Parameters", formatVector(r.InitialParams)},
		{"Repetitions", strconv.Itoa(r.Iterations)},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s\n", l.label, l.value); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	target := r.TargetCounts()
	output := r.OutputCounts()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Outcome", SeriesTarget, SeriesOutput, "Target P", "Output P"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, label := range r.Labels() {
		var tp, op float64
		if i < len(r.Target) {
			tp = r.Target[i]
		}
		if i < len(r.Output) {
			op = r.Output[i]
		}
		table.Append([]string{
			label,
			strconv.FormatFloat(target[label], 'f', 1, 64),
			strconv.FormatFloat(output[label], 'f', 0, 64),
			strconv.FormatFloat(tp, 'f', 4, 64),
			strconv.FormatFloat(op, 'f', 4, 64),
		})
	}
	table.Render()

	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = formatFloat(f)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
