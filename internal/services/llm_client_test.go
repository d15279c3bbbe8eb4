package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLLMClient_StructuredRequest(t *testing.T) {
	var got struct {
		Model          string        `json:"model"`
		Messages       []ChatMessage `json:"messages"`
		ResponseFormat struct {
			Type       string `json:"type"`
			JSONSchema struct {
				Name   string                 `json:"name"`
				Strict bool                   `json:"strict"`
				Schema map[string]interface{} `json:"schema"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}},
			},
		})
	}))
	defer srv.Close()

	client := NewLLMClient(srv.URL+"/", "test-key", "test-model")
	schema := map[string]interface{}{"type": "object"}
	content, err := client.Complete(context.Background(), []ChatMessage{
		{Role: "system", Content: "classify"},
		{Role: "user", Content: "Buy milk"},
	}, 0.1, "classification", schema)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if content != `{"ok":true}` {
		t.Errorf("Unexpected content %q", content)
	}
	if got.Model != "test-model" || len(got.Messages) != 2 || got.Messages[1].Content != "Buy milk" {
		t.Errorf("Unexpected request: %+v", got)
	}
	if got.ResponseFormat.Type != "json_schema" || got.ResponseFormat.JSONSchema.Name != "classification" || !got.ResponseFormat.JSONSchema.Strict {
		t.Errorf("Expected strict json_schema format, got %+v", got.ResponseFormat)
	}
	if got.ResponseFormat.JSONSchema.Schema["type"] != "object" {
		t.Errorf("Expected schema to be sent, got %v", got.ResponseFormat.JSONSchema.Schema)
	}
}

func TestLLMClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"API error", http.StatusBadGateway, `{"error":{"message":"upstream down","type":"server_error"}}`, "status 502"},
		{"No choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewLLMClient(srv.URL, "k", "m").Complete(context.Background(), []ChatMessage{{Role: "user", Content: "x"}}, 0, "", nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
