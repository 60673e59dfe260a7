package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cwbudde/vqafit/internal/config"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's job and status responses.
type jobStatus struct {
	ID             string     `json:"id"`
	State          string     `json:"state"`
	Config         config.Run `json:"config"`
	BestCost       float64    `json:"bestCost"`
	InitialCost    float64    `json:"initialCost"`
	LastCost       float64    `json:"lastCost"`
	Evaluations    int        `json:"evaluations"`
	Elapsed        float64    `json:"elapsed"`
	EvalsPerSecond float64    `json:"evalsPerSecond"`
	ResumedFrom    string     `json:"resumedFrom"`
	StartTime      time.Time  `json:"startTime"`
	Error          string     `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		// List all jobs
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	// Get specific job status
	jobID := args[0]
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// colorState renders a job state in its conventional color.
func colorState(state string) string {
	switch state {
	case "running":
		return color.CyanString(state)
	case "completed":
		return color.GreenString(state)
	case "failed":
		return color.RedString(state)
	case "cancelled":
		return color.YellowString(state)
	default:
		return state
	}
}

func listJobs(out io.Writer, url string) error {
	var jobs []jobStatus
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Job ID", "State", "Outcomes", "Layers", "Optimizer", "Evaluations", "Initial Cost", "Best Cost"})
	for _, job := range jobs {
		table.Append([]string{
			job.ID,
			colorState(job.State),
			strconv.Itoa(len(job.Config.Target)),
			strconv.Itoa(job.Config.Layers),
			job.Config.Optimizer,
			strconv.Itoa(job.Evaluations),
			strconv.FormatFloat(job.InitialCost, 'f', 4, 64),
			strconv.FormatFloat(job.BestCost, 'f', 4, 64),
		})
	}
	table.Render()

	fmt.Fprintf(out, "\nFound %d job(s)\n", len(jobs))
	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	// Display status
	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", colorState(status.State))
	if status.ResumedFrom != "" {
		fmt.Fprintf(out, "Resumed from: %s\n", status.ResumedFrom)
	}
	fmt.Fprintln(out)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Target: %v\n", cfg.Target)
	fmt.Fprintf(out, "  Ansatz: %s, %d layer(s), %s entanglement\n", cfg.Gate, cfg.Layers, cfg.Entanglement)
	fmt.Fprintf(out, "  Shots: %d\n", cfg.Shots)
	fmt.Fprintf(out, "  Optimizer: %s\n", cfg.Optimizer)
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Backend)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Evaluations: %d\n", status.Evaluations)
	if status.Evaluations > 0 {
		fmt.Fprintf(out, "  Initial Cost: %.4f\n", status.InitialCost)
		fmt.Fprintf(out, "  Best Cost: %.4f\n", status.BestCost)
		if status.InitialCost > 0 {
			improvement := status.InitialCost - status.BestCost
			fmt.Fprintf(out, "  Improvement: %.4f (%.1f%%)\n", improvement, improvement/status.InitialCost*100)
		}
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EvalsPerSecond > 0 {
		fmt.Fprintf(out, "  Throughput: %.1f evals/sec\n", status.EvalsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\n%s %s\n", color.RedString("Error:"), status.Error)
	}

	return nil
}
