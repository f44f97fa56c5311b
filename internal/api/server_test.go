package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soferos/govpulse/internal/agent"
	"github.com/soferos/govpulse/internal/feedback"
)

// fakeAsker returns a canned answer or error.
type fakeAsker struct {
	answer *agent.Answer
	err    error
	asked  []string
}

func (f *fakeAsker) Ask(_ context.Context, query string) (*agent.Answer, error) {
	f.asked = append(f.asked, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func newTestServer(t *testing.T, asker Asker) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fb := feedback.NewLog(filepath.Join(t.TempDir(), "feedback.csv"))
	srv := NewServer("127.0.0.1:0", asker, fb, time.Minute, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestAskEndpoint(t *testing.T) {
	asker := &fakeAsker{answer: &agent.Answer{
		OriginalQuery: "How deprived is Govan? Contact jean@example.com",
		RedactedQuery: "How deprived is Govan? Contact [REDACTED_EMAIL]",
		Response:      "Govan is the most deprived area in Scotland.",
		Status:        agent.StatusSuccess,
	}}
	ts := newTestServer(t, asker)

	resp, err := http.Post(ts.URL+"/ask", "application/json",
		strings.NewReader(`{"query": "How deprived is Govan? Contact jean@example.com"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got agent.Answer
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != agent.StatusSuccess {
		t.Errorf("status = %q", got.Status)
	}
	if !strings.Contains(got.RedactedQuery, "[REDACTED_EMAIL]") {
		t.Errorf("redacted query = %q", got.RedactedQuery)
	}
	if len(asker.asked) != 1 || !strings.Contains(asker.asked[0], "jean@example.com") {
		t.Errorf("orchestrator received %v, want the raw query", asker.asked)
	}
}

func TestAskEndpointBadRequest(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	for _, body := range []string{"", "{not json", `{"query": ""}`} {
		resp, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestAskEndpointAgentError(t *testing.T) {
	asker := &fakeAsker{err: errors.New("model request: connection refused")}
	ts := newTestServer(t, asker)

	resp, err := http.Post(ts.URL+"/ask", "application/json",
		strings.NewReader(`{"query": "How deprived is Govan?"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "connection refused") {
		t.Errorf("response leaks upstream detail: %s", body)
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Post(ts.URL+"/feedback", "application/json",
		strings.NewReader(`{"query": "How deprived is Govan?", "rating": "up"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "logged" {
		t.Errorf("status = %q, want logged", got["status"])
	}
	if got["id"] == "" {
		t.Error("missing entry id")
	}
}

func TestFeedbackEndpointInvalidRating(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Post(ts.URL+"/feedback", "application/json",
		strings.NewReader(`{"query": "q", "rating": "amazing"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthAndRoot(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var root map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root["name"] != "GovPulse" {
		t.Errorf("root = %v", root)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/ask")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /ask status = %d, want 405", resp.StatusCode)
	}
}
