// Package ui renders the HTML pages served by the training server.
package ui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is one row of the job overview page.
type JobListItem struct {
	ID           string
	State        string
	Target       string
	Qubits       int
	Layers       int
	Gate         string
	Entanglement string
	Optimizer    string
	Evaluations  int
	BestCost     float64
	InitialCost  float64
	StartTime    time.Time
	EndTime      *time.Time
	Error        string
}

// Duration returns how long the job ran, or has been running.
func (j JobListItem) Duration() time.Duration {
	end := time.Now()
	if j.EndTime != nil {
		end = *j.EndTime
	}
	return end.Sub(j.StartTime).Round(time.Second)
}

const pageHead = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>vqafit jobs</title>` +
	`<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse}` +
	`td,th{padding:4px 10px;border-bottom:1px solid #ddd;text-align:left}` +
	`.running{color:#1565c0}.completed{color:#2e7d32}.failed{color:#c62828}.cancelled{color:#757575}</style>` +
	`</head><body><h1>Training jobs</h1>`

// JobList renders the job overview page.
func JobList(items []JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}

		if len(items) == 0 {
			if _, err := io.WriteString(w, `<p>No jobs yet.</p></body></html>`); err != nil {
				return err
			}
			return nil
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>ID</th><th>State</th><th>Target</th>`+
			`<th>Ansatz</th><th>Optimizer</th><th>Evaluations</th><th>Initial cost</th><th>Best cost</th>`+
			`<th>Duration</th></tr></thead><tbody>`); err != nil {
			return err
		}

		for _, item := range items {
			if err := jobRow(item).Render(ctx, w); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</tbody></table></body></html>`)
		return err
	})
}

func jobRow(item JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ansatz := fmt.Sprintf("%dq x %dL %s/%s", item.Qubits, item.Layers, item.Gate, item.Entanglement)
		state := item.State
		if item.Error != "" {
			state += ": " + item.Error
		}

		cells := []string{
			`<tr><td><a href="/api/v1/jobs/` + templ.EscapeString(item.ID) + `/status">` + templ.EscapeString(item.ID) + `</a></td>`,
			`<td class="` + templ.EscapeString(item.State) + `">` + templ.EscapeString(state) + `</td>`,
			`<td>` + templ.EscapeString(item.Target) + `</td>`,
			`<td>` + templ.EscapeString(ansatz) + `</td>`,
			`<td>` + templ.EscapeString(item.Optimizer) + `</td>`,
			`<td>` + strconv.Itoa(item.Evaluations) + `</td>`,
			`<td>` + strconv.FormatFloat(item.InitialCost, 'f', 4, 64) + `</td>`,
			`<td>` + strconv.FormatFloat(item.BestCost, 'f', 4, 64) + `</td>`,
			`<td>` + templ.EscapeString(item.Duration().String()) + `</td></tr>`,
		}
		for _, c := range cells {
			if _, err := io.WriteString(w, c); err != nil {
				return err
			}
		}
		return nil
	})
}
