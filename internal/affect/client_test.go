package affect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/pkg/types"
)

func testClient(url string) *Client {
	return NewClient(config.AffectConfig{
		AnalyzerURL:     url,
		TimeoutSeconds:  2,
		BreakerFailures: 3,
	})
}

// TestAnalyzeMapsClassification verifies the happy path: the analyzer's
// classification comes back as a validated interaction event.
func TestAnalyzeMapsClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/analyze" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"valence": 0.7, "intensity": 0.4, "context_tag": "banter"}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	ev, err := client.Analyze(context.Background(), &AnalyzeRequest{
		Participants: []string{"chr:a", "chr:b"},
		Text:         "nice one!",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if ev.Valence != 0.7 || ev.Intensity != 0.4 || ev.ContextTag != "banter" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Initiator() != "chr:a" {
		t.Errorf("initiator = %s, want chr:a", ev.Initiator())
	}
}

// TestAnalyzeRejectsOutOfContractResponse verifies that analyzer output gets
// the same validation as caller-supplied events.
func TestAnalyzeRejectsOutOfContractResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"valence": 3.5, "intensity": 0.4}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Analyze(context.Background(), &AnalyzeRequest{
		Participants: []string{"chr:a", "chr:b"},
		Text:         "???",
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

// TestAnalyzeRequestValidation verifies local request checks happen before
// any network call.
func TestAnalyzeRequestValidation(t *testing.T) {
	client := testClient("http://127.0.0.1:1") // would fail if dialed

	reqs := []*AnalyzeRequest{
		{Participants: []string{"chr:a"}, Text: "hi"},
		{Participants: []string{"chr:a", "chr:b"}, Text: ""},
	}
	for i, req := range reqs {
		if _, err := client.Analyze(context.Background(), req); !errors.Is(err, types.ErrValidation) {
			t.Errorf("request %d: expected ErrValidation, got %v", i, err)
		}
	}
}

// TestBreakerOpensAfterConsecutiveFailures verifies that repeated analyzer
// failures trip the circuit and subsequent calls fail fast.
func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL)
	req := &AnalyzeRequest{Participants: []string{"chr:a", "chr:b"}, Text: "hi"}

	for i := 0; i < 3; i++ {
		if _, err := client.Analyze(context.Background(), req); err == nil {
			t.Fatalf("call %d: expected error, got nil", i+1)
		}
	}

	if state := client.BreakerState(); state != "open" {
		t.Fatalf("breaker state = %s, want open", state)
	}

	_, err := client.Analyze(context.Background(), req)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

// TestBreakerRecoversAfterTimeout verifies the half-open to closed
// transition once the analyzer is healthy again.
func TestBreakerRecoversAfterTimeout(t *testing.T) {
	healthy := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"valence": 0.1, "intensity": 0.1, "context_tag": "smalltalk"}`)
	}))
	defer server.Close()

	client := NewClient(config.AffectConfig{
		AnalyzerURL:     server.URL,
		TimeoutSeconds:  2,
		BreakerFailures: 2,
	})
	// Shrink the open interval so the test does not sleep for 30 seconds.
	client.breaker = NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              50 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})

	req := &AnalyzeRequest{Participants: []string{"chr:a", "chr:b"}, Text: "hi"}
	for i := 0; i < 2; i++ {
		_, _ = client.Analyze(context.Background(), req)
	}
	if state := client.BreakerState(); state != "open" {
		t.Fatalf("breaker state = %s, want open", state)
	}

	healthy = true
	time.Sleep(80 * time.Millisecond)

	if _, err := client.Analyze(context.Background(), req); err != nil {
		t.Fatalf("expected recovery call to succeed, got %v", err)
	}
	if state := client.BreakerState(); state != "closed" {
		t.Errorf("breaker state = %s, want closed", state)
	}
}
