package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cwbudde/vqafit/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	jobs := s.jobManager.ListJobs()

	jobItems := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		qubits, _ := job.Config.Qubits()
		jobItems[i] = ui.JobListItem{
			ID:           job.ID,
			State:        string(job.State),
			Target:       formatTarget(job.Config.Target),
			Qubits:       qubits,
			Layers:       job.Config.Layers,
			Gate:         job.Config.Gate,
			Entanglement: job.Config.Entanglement,
			Optimizer:    job.Config.Optimizer,
			Evaluations:  job.Evaluations,
			BestCost:     job.BestCost,
			InitialCost:  job.InitialCost,
			StartTime:    job.StartTime,
			EndTime:      job.EndTime,
			Error:        job.Error,
		}
	}

	if err := ui.JobList(jobItems).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}

func formatTarget(target []float64) string {
	parts := make([]string, len(target))
	for i, p := range target {
		parts[i] = strconv.FormatFloat(p, 'g', 4, 64)
	}
	return strings.Join(parts, ",")
}
