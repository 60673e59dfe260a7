package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/cwbudde/vqafit/internal/circuit"
	"github.com/cwbudde/vqafit/internal/dist"
)

// Remote submits circuits as OpenQASM to an HTTP execution service.
//
// Request:  POST <url>/execute {"qasm": "...", "qubits": n, "shots": N}
// Response: 200 {"counts": {"00": 510, "11": 514}}
type Remote struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

type executeRequest struct {
	QASM   string `json:"qasm"`
	Qubits int    `json:"qubits"`
	Shots  int    `json:"shots"`
}

type executeResponse struct {
	Counts dist.Counts `json:"counts"`
	Error  string      `json:"error,omitempty"`
}

// NewRemote creates a remote backend from opts.URL.
func NewRemote(opts Options) (*Remote, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("remote backend requires a URL")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Remote{
		url:     strings.TrimRight(opts.URL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Name implements Backend.
func (r *Remote) Name() string {
	return string(KindRemote)
}

// Execute implements Backend.
func (r *Remote) Execute(ctx context.Context, c *circuit.Circuit, shots int) (dist.Counts, error) {
	if shots <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShots, shots)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(executeRequest{QASM: c.QASM(), Qubits: c.NumQubits, Shots: shots})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote execute failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("remote execute returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote execute failed: %s", out.Error)
	}

	slog.Debug("Remote execution complete", "url", r.url, "outcomes", len(out.Counts), "shots", shots)
	return out.Counts, nil
}
