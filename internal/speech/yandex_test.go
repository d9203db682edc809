package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newYandexTestServer(t *testing.T, pollsUntilDone int) *YandexBackend {
	t.Helper()

	var polls int
	mux := http.NewServeMux()
	mux.HandleFunc("/stt/v3/recognizeFileAsync", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Api-Key yc-key" {
			t.Errorf("submit auth header: %q", r.Header.Get("Authorization"))
		}
		var payload struct {
			Content string `json:"content"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if _, err := base64.StdEncoding.DecodeString(payload.Content); err != nil {
			t.Errorf("content is not valid base64: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "op-1", "done": false})
	})
	mux.HandleFunc("/operations/op-1", func(w http.ResponseWriter, _ *http.Request) {
		polls++
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "op-1", "done": polls > pollsUntilDone})
	})
	mux.HandleFunc("/stt/v3/getRecognition", func(w http.ResponseWriter, _ *http.Request) {
		// newline-delimited JSON events
		fmt.Fprintln(w, `{"result":{"final":{"alternatives":[{"text":"first point"}],"channelTag":"0"}}}`)
		fmt.Fprintln(w, `{"result":{"partial":{}}}`)
		fmt.Fprintln(w, `{"result":{"final":{"alternatives":[{"text":"second point"}],"channelTag":"1"}}}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	backend := NewYandexBackend("yc-key")
	backend.BaseURL = server.URL
	return backend
}

func TestYandexFullRecognitionRun(t *testing.T) {
	backend := newYandexTestServer(t, 1)

	text, err := Recognize(context.Background(), backend, []byte("pcm bytes"), RecognizeOptions{
		UploadOptions: UploadOptions{Encoding: "PCM_S16LE", Channels: 1, SampleRate: 16000},
		Diarization:   true,
		PollInterval:  time.Millisecond,
		MaxWait:       time.Second,
	})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}

	want := "0. first point (0)\n1. second point (1)"
	if text != want {
		t.Fatalf("transcript:\n%s\nwant:\n%s", text, want)
	}
}

func TestYandexUploadRejectsUnsupportedFormats(t *testing.T) {
	backend := NewYandexBackend("yc-key")

	cases := []UploadOptions{
		{Encoding: "MP3", Channels: 1},                       // only raw PCM accepted
		{Encoding: "PCM_S16LE", Channels: 1, SampleRate: 44100}, // not a supported rate
	}
	for _, opts := range cases {
		_, err := backend.Upload(context.Background(), []byte("x"), opts)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("opts %+v: expected *ValidationError, got %v", opts, err)
		}
	}
}

func TestYandexPollReportsOperationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/operations/op-9", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "op-9",
			"done":  true,
			"error": map[string]interface{}{"code": 13, "message": "internal recognizer error"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	backend := NewYandexBackend("yc-key")
	backend.BaseURL = server.URL

	handle := &TaskHandle{ID: "op-9", State: StateRunning}
	state, err := backend.Poll(context.Background(), handle)
	if err == nil {
		t.Fatal("expected poll error")
	}
	if state != StateError {
		t.Fatalf("expected error state, got %s", state)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepPoll {
		t.Fatalf("expected poll StepError, got %v", err)
	}
}

func TestYandexFetchRequiresTerminalState(t *testing.T) {
	backend := NewYandexBackend("yc-key")
	_, err := backend.Fetch(context.Background(), &TaskHandle{ID: "op-1", State: StateRunning})
	if err == nil {
		t.Fatal("expected error fetching a running operation")
	}
}
