package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantName  string // First tool name if wantCount > 0
	}{
		{
			name:      "empty content",
			content:   "",
			wantCount: 0,
		},
		{
			name:      "whitespace only",
			content:   "   \n\t  ",
			wantCount: 0,
		},
		{
			name:      "plain text no JSON",
			content:   "Govan is among the most deprived areas.",
			wantCount: 0,
		},
		{
			name:      "single tool call object",
			content:   `{"name": "get_ranking", "arguments": {"area_name": "Glasgow", "ranking_type": "most"}}`,
			wantCount: 1,
			wantName:  "get_ranking",
		},
		{
			name:      "single tool call with whitespace",
			content:   `  {"name": "lookup_neighborhood", "arguments": {"name": "Hyndland"}}  `,
			wantCount: 1,
			wantName:  "lookup_neighborhood",
		},
		{
			name:      "array of tool calls",
			content:   `[{"name": "get_ranking", "arguments": {"area_name": "Scotland"}}, {"name": "query_policy_documents", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "get_ranking",
		},
		{
			name:      "tagged tool call",
			content:   `<tool_call>{"name": "query_policy_documents", "arguments": {"query": "industrial strategy"}}</tool_call>`,
			wantCount: 1,
			wantName:  "query_policy_documents",
		},
		{
			name:      "tagged tool call without closing tag",
			content:   `<tool_call>{"name": "lookup_neighborhood", "arguments": {"name": "Govan"}}`,
			wantCount: 1,
			wantName:  "lookup_neighborhood",
		},
		{
			name:      "tagged with preamble",
			content:   `Let me check that for you. <tool_call>{"name": "get_ranking", "arguments": {"area_name": "Glasgow"}}</tool_call>`,
			wantCount: 1,
			wantName:  "get_ranking",
		},
		{
			name:      "malformed JSON",
			content:   `{"name": "get_ranking", "arguments": {`,
			wantCount: 0,
		},
		{
			name:      "JSON without name field",
			content:   `{"foo": "bar", "arguments": {}}`,
			wantCount: 0,
		},
		{
			name:      "JSON with empty name",
			content:   `{"name": "", "arguments": {}}`,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content)
			if len(got) != tt.wantCount {
				t.Fatalf("parseTextToolCalls() returned %d calls, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Function.Name != tt.wantName {
				t.Errorf("first tool name = %q, want %q", got[0].Function.Name, tt.wantName)
			}
		})
	}
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Model != "llama3.2" {
			t.Errorf("model = %q, want llama3.2", req.Model)
		}
		if len(req.Tools) != 1 {
			t.Errorf("tools count = %d, want 1", len(req.Tools))
		}
		if req.Options == nil || req.Options.Temperature != 0 {
			t.Error("expected temperature 0 options")
		}

		resp := ChatResponse{
			Model:   req.Model,
			Message: Message{Role: "assistant", Content: "Hello."},
			Done:    true,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	resp, err := client.Chat(context.Background(), "llama3.2",
		[]Message{{Role: "user", Content: "hi"}},
		[]map[string]any{{"type": "function"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "Hello." {
		t.Errorf("content = %q, want Hello.", resp.Message.Content)
	}
}

func TestOllamaChatTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ChatResponse{
			Model: "llama3.2",
			Message: Message{
				Role:    "assistant",
				Content: `{"name": "get_ranking", "arguments": {"area_name": "Glasgow", "ranking_type": "most"}}`,
			},
			Done: true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	resp, err := client.Chat(context.Background(), "llama3.2", nil, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1 (text fallback)", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Function.Name != "get_ranking" {
		t.Errorf("tool = %q, want get_ranking", resp.Message.ToolCalls[0].Function.Name)
	}
	if resp.Message.Content != "" {
		t.Errorf("content should be cleared after fallback parse, got %q", resp.Message.Content)
	}
}

func TestOllamaChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	if _, err := client.Chat(context.Background(), "missing", nil, nil); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"models": []}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
