package minutes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		var req struct {
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[1].Content != "0. we ship friday" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.Temperature > 0.2 {
			t.Errorf("temperature too high for deterministic-leaning output: %f", req.Temperature)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "# Minutes\n\n- ship friday"}},
			},
		})
	}))
	defer server.Close()

	gen := NewLLMGenerator(server.URL+"/v1", "key", "test-model")
	md, err := gen.Generate(context.Background(), "0. we ship friday")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if md != "# Minutes\n\n- ship friday" {
		t.Fatalf("unexpected minutes: %q", md)
	}
	if calls != 2 {
		t.Fatalf("expected 1 retry (2 calls), got %d", calls)
	}
}

func TestGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	gen := NewLLMGenerator(server.URL+"/v1", "key", "test-model")
	if _, err := gen.Generate(context.Background(), "text"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls)
	}
}
