// Package affect provides the client for the external affect analyzer
// collaborator: the NLP service that classifies raw chat turns into
// interaction events (valence, intensity, context tag). All calls run
// through a circuit breaker so a down analyzer cannot stall the engine.
package affect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/pkg/types"
)

// Analyzer classifies a raw chat turn into an interaction event.
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*types.InteractionEvent, error)
}

// AnalyzeRequest is a raw chat turn to classify. The first participant is
// the speaker (the interaction initiator).
type AnalyzeRequest struct {
	Participants []string `json:"participants"`
	Text         string   `json:"text"`
}

// Validate checks the request shape before calling out.
func (r *AnalyzeRequest) Validate() error {
	if len(r.Participants) != 2 {
		return fmt.Errorf("%w: analysis requires exactly 2 participants, got %d", types.ErrValidation, len(r.Participants))
	}
	if r.Text == "" {
		return fmt.Errorf("%w: text is required", types.ErrValidation)
	}
	return nil
}

// analyzeResponse is the analyzer service's wire response.
type analyzeResponse struct {
	Valence    float64 `json:"valence"`
	Intensity  float64 `json:"intensity"`
	ContextTag string  `json:"context_tag"`
}

// Client is an HTTP Analyzer with circuit-breaker protection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *CircuitBreaker
}

// NewClient creates an analyzer client from the affect configuration.
func NewClient(cfg config.AffectConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxFailures := uint32(cfg.BreakerFailures)
	if maxFailures == 0 {
		maxFailures = 3
	}

	return &Client{
		baseURL:    cfg.AnalyzerURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker: NewCircuitBreakerWithConfig(CircuitBreakerConfig{
			MaxFailures:          maxFailures,
			Timeout:              30 * time.Second,
			HalfOpenMaxSuccesses: 2,
		}),
	}
}

// Analyze sends the chat turn to the analyzer and maps its classification to
// a validated InteractionEvent. Returns ErrCircuitOpen when the analyzer has
// been failing and the breaker is rejecting calls.
func (c *Client) Analyze(ctx context.Context, req *AnalyzeRequest) (*types.InteractionEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.callAnalyzer(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	resp := result.(*analyzeResponse)
	ev := &types.InteractionEvent{
		Participants: append([]string(nil), req.Participants...),
		Valence:      resp.Valence,
		Intensity:    resp.Intensity,
		ContextTag:   resp.ContextTag,
	}
	// The analyzer is external input; its output gets the same validation
	// as any caller-supplied event.
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer returned out-of-contract classification: %w", err)
	}
	return ev, nil
}

// callAnalyzer performs one HTTP round trip to the analyzer service.
func (c *Client) callAnalyzer(ctx context.Context, req *AnalyzeRequest) (*analyzeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		// Read a bounded slice of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("analyzer returned status %d: %s", httpResp.StatusCode, snippet)
	}

	var resp analyzeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	return &resp, nil
}

// BreakerState exposes the circuit state for health endpoints.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}
