package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	saluteBaseURL = "https://smartspeech.sber.ru/rest/v1/"
	saluteAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	saluteModel   = "general"
)

// SaluteBackend talks to the SaluteSpeech asynchronous recognition API.
// Authentication is a client-credentials token exchange; the bearer token is
// cached and reused across the four protocol steps until it expires.
type SaluteBackend struct {
	BaseURL string
	AuthURL string

	apiKey     string
	scope      string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewSaluteBackend(apiKey, scope string) *SaluteBackend {
	return &SaluteBackend{
		BaseURL: saluteBaseURL,
		AuthURL: saluteAuthURL,
		apiKey:  apiKey,
		scope:   scope,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (b *SaluteBackend) Name() string {
	return "salute"
}

func (b *SaluteBackend) DefaultPollInterval() time.Duration {
	return time.Second
}

// authenticate issues (or reuses) a bearer token via the client-credentials
// endpoint. The token itself is never logged.
func (b *SaluteBackend) authenticate(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" && time.Now().Before(b.tokenExpiry) {
		return b.token, nil
	}

	form := url.Values{"scope": {b.scope}}
	req, err := http.NewRequestWithContext(ctx, "POST", b.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.New().String())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"` // unix millis
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &AuthError{Err: fmt.Errorf("parse token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return "", &AuthError{Err: fmt.Errorf("access token missing in response")}
	}

	b.token = tokenResp.AccessToken
	if tokenResp.ExpiresAt > 0 {
		// Renew a minute early to avoid mid-run expiry
		b.tokenExpiry = time.UnixMilli(tokenResp.ExpiresAt).Add(-time.Minute)
	} else {
		b.tokenExpiry = time.Now().Add(10 * time.Minute)
	}
	log.Printf("[speech] salute client authenticated")
	return b.token, nil
}

func (b *SaluteBackend) Upload(ctx context.Context, data []byte, opts UploadOptions) (string, error) {
	spec, sampleRate, err := ValidateAudioFormat(opts.Encoding, opts.Channels, opts.SampleRate)
	if err != nil {
		return "", err
	}

	token, err := b.authenticate(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.BaseURL+"data:upload", bytes.NewReader(data))
	if err != nil {
		return "", &StepError{Backend: b.Name(), Step: StepUpload, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", spec.WireContentType(sampleRate))

	log.Printf("[speech] uploading %.2f mb to salute with encoding %s", float64(len(data))/1e6, opts.Encoding)

	var uploadResp struct {
		Result struct {
			RequestFileID string `json:"request_file_id"`
		} `json:"result"`
	}
	if err := b.doJSON(req, StepUpload, &uploadResp); err != nil {
		return "", err
	}
	if uploadResp.Result.RequestFileID == "" {
		return "", stepErrorf(b.Name(), StepUpload, "request_file_id missing in response")
	}
	return uploadResp.Result.RequestFileID, nil
}

func (b *SaluteBackend) Submit(ctx context.Context, fileID string, opts RecognizeOptions) (*TaskHandle, error) {
	token, err := b.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	_, sampleRate, err := ValidateAudioFormat(opts.Encoding, opts.Channels, opts.SampleRate)
	if err != nil {
		return nil, err
	}

	language := opts.Language
	if language == "" {
		language = "ru-RU"
	}
	maxSpeakers := opts.MaxSpeakers
	if maxSpeakers > 10 {
		maxSpeakers = 10
	}
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}

	payload := map[string]interface{}{
		"options": map[string]interface{}{
			"model":                    saluteModel,
			"audio_encoding":           opts.Encoding,
			"sample_rate":              sampleRate,
			"language":                 language,
			"enable_profanity_filter":  false,
			"channels_count":           channels,
			"speaker_separation_options": map[string]interface{}{
				"enable":                   opts.Diarization,
				"enable_only_main_speaker": false,
				"count":                    maxSpeakers,
			},
		},
		"request_file_id": fileID,
	}
	if len(opts.Hints) > 0 {
		payload["hints"] = map[string]interface{}{
			"words":       opts.Hints,
			"eou_timeout": 1,
		}
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepSubmit, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.BaseURL+"speech:async_recognize", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepSubmit, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	// The file id doubles as an idempotency key for retried submits
	req.Header.Set("X-Request-ID", fileID)

	var submitResp struct {
		Result struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := b.doJSON(req, StepSubmit, &submitResp); err != nil {
		return nil, err
	}
	if submitResp.Result.ID == "" {
		return nil, stepErrorf(b.Name(), StepSubmit, "task id missing in response")
	}

	return &TaskHandle{ID: submitResp.Result.ID, State: mapSaluteStatus(submitResp.Result.Status)}, nil
}

func (b *SaluteBackend) Poll(ctx context.Context, handle *TaskHandle) (TaskState, error) {
	token, err := b.authenticate(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", b.BaseURL+"task:get?id="+url.QueryEscape(handle.ID), nil)
	if err != nil {
		return "", &StepError{Backend: b.Name(), Step: StepPoll, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var pollResp struct {
		Result struct {
			Status         string `json:"status"`
			ResponseFileID string `json:"response_file_id"`
		} `json:"result"`
	}
	if err := b.doJSON(req, StepPoll, &pollResp); err != nil {
		return "", err
	}

	handle.State = mapSaluteStatus(pollResp.Result.Status)
	if handle.State == StateDone {
		handle.ResultFileID = pollResp.Result.ResponseFileID
	}
	return handle.State, nil
}

func (b *SaluteBackend) Fetch(ctx context.Context, handle *TaskHandle) ([]Utterance, error) {
	if handle.State != StateDone {
		return nil, stepErrorf(b.Name(), StepFetch, "task %s is not done (state %s)", handle.ID, handle.State)
	}
	token, err := b.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET",
		b.BaseURL+"data:download?response_file_id="+url.QueryEscape(handle.ResultFileID), nil)
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepFetch, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/octet-stream")

	var results []struct {
		Results []struct {
			NormalizedText string `json:"normalized_text"`
		} `json:"results"`
		SpeakerInfo *struct {
			SpeakerID int `json:"speaker_id"`
		} `json:"speaker_info"`
		EmotionsResult map[string]float64 `json:"emotions_result"`
	}
	if err := b.doJSON(req, StepFetch, &results); err != nil {
		return nil, err
	}

	utterances := make([]Utterance, 0, len(results))
	for _, r := range results {
		if len(r.Results) == 0 {
			continue
		}
		u := Utterance{
			Text:     r.Results[0].NormalizedText,
			Emotions: r.EmotionsResult,
		}
		if r.SpeakerInfo != nil {
			speaker := r.SpeakerInfo.SpeakerID
			u.Speaker = &speaker
		}
		utterances = append(utterances, u)
	}
	return utterances, nil
}

func (b *SaluteBackend) doJSON(req *http.Request, step Step, out interface{}) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &StepError{Backend: b.Name(), Step: step, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &StepError{Backend: b.Name(), Step: step, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return stepErrorf(b.Name(), step, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return stepErrorf(b.Name(), step, "parse response: %w", err)
	}
	return nil
}

func mapSaluteStatus(status string) TaskState {
	switch status {
	case "DONE":
		return StateDone
	case "ERROR", "CANCELED":
		return StateError
	default: // NEW, RUNNING
		return StateRunning
	}
}
