package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

const yandexBaseURL = "https://stt.api.cloud.yandex.net"

var yandexSampleRates = map[int]bool{8000: true, 16000: true, 48000: true}

// YandexBackend talks to the Yandex SpeechKit v3 asynchronous file
// recognition API. It authenticates with a static API key, so the "token
// issuance" step is a no-op; only raw PCM at the fixed supported rates is
// accepted. The upload step stages the audio locally: the wire protocol
// embeds the content, base64-encoded, in the submit payload.
type YandexBackend struct {
	BaseURL string

	apiKey     string
	httpClient *http.Client
}

func NewYandexBackend(apiKey string) *YandexBackend {
	return &YandexBackend{
		BaseURL: yandexBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (b *YandexBackend) Name() string {
	return "yandex"
}

func (b *YandexBackend) DefaultPollInterval() time.Duration {
	return 5 * time.Second
}

func (b *YandexBackend) Upload(_ context.Context, data []byte, opts UploadOptions) (string, error) {
	if _, _, err := ValidateAudioFormat(opts.Encoding, opts.Channels, opts.SampleRate); err != nil {
		return "", err
	}
	if opts.Encoding != "PCM_S16LE" {
		return "", validationErrorf("yandex backend accepts only PCM_S16LE, got %s", opts.Encoding)
	}
	rate := opts.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}
	if !yandexSampleRates[rate] {
		return "", validationErrorf("yandex backend supports sample rates 8000, 16000 or 48000 Hz, got %d", rate)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (b *YandexBackend) Submit(ctx context.Context, fileID string, opts RecognizeOptions) (*TaskHandle, error) {
	rate := opts.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}
	language := opts.Language
	if language == "" {
		language = "ru-RU"
	}

	speakerLabeling := "SPEAKER_LABELING_DISABLED"
	if opts.Diarization {
		speakerLabeling = "SPEAKER_LABELING_ENABLED"
	}

	payload := map[string]interface{}{
		"content": fileID,
		"recognitionModel": map[string]interface{}{
			"model": "general",
			"audioFormat": map[string]interface{}{
				"rawAudio": map[string]string{
					"audioEncoding":     "LINEAR16_PCM",
					"sampleRateHertz":   strconv.Itoa(rate),
					"audioChannelCount": strconv.Itoa(channels),
				},
			},
			"textNormalization": map[string]interface{}{
				"textNormalization": "TEXT_NORMALIZATION_ENABLED",
				"profanityFilter":   false,
			},
			"languageRestriction": map[string]interface{}{
				"restrictionType": "WHITELIST",
				"languageCode":    []string{language},
			},
		},
		"speakerLabeling": map[string]string{
			"speakerLabeling": speakerLabeling,
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepSubmit, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.BaseURL+"/stt/v3/recognizeFileAsync", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepSubmit, Err: err}
	}
	b.setHeaders(req)

	var operation struct {
		ID   string `json:"id"`
		Done bool   `json:"done"`
	}
	if err := b.doJSON(req, StepSubmit, &operation); err != nil {
		return nil, err
	}
	if operation.ID == "" {
		return nil, stepErrorf(b.Name(), StepSubmit, "operation id missing in response")
	}

	handle := &TaskHandle{ID: operation.ID, State: StateRunning}
	if operation.Done {
		handle.State = StateDone
		handle.ResultFileID = operation.ID
	}
	return handle, nil
}

func (b *YandexBackend) Poll(ctx context.Context, handle *TaskHandle) (TaskState, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.BaseURL+"/operations/"+handle.ID, nil)
	if err != nil {
		return "", &StepError{Backend: b.Name(), Step: StepPoll, Err: err}
	}
	b.setHeaders(req)

	var operation struct {
		ID    string `json:"id"`
		Done  bool   `json:"done"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := b.doJSON(req, StepPoll, &operation); err != nil {
		return "", err
	}

	switch {
	case operation.Error != nil:
		handle.State = StateError
		return handle.State, stepErrorf(b.Name(), StepPoll, "operation failed: %s", operation.Error.Message)
	case operation.Done:
		handle.State = StateDone
		handle.ResultFileID = handle.ID
	default:
		handle.State = StateRunning
	}
	return handle.State, nil
}

func (b *YandexBackend) Fetch(ctx context.Context, handle *TaskHandle) ([]Utterance, error) {
	if handle.State != StateDone {
		return nil, stepErrorf(b.Name(), StepFetch, "operation %s is not done (state %s)", handle.ID, handle.State)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", b.BaseURL+"/stt/v3/getRecognition?operationId="+handle.ID, nil)
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepFetch, Err: err}
	}
	b.setHeaders(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &StepError{Backend: b.Name(), Step: StepFetch, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, stepErrorf(b.Name(), StepFetch, "status %d: %s", resp.StatusCode, string(body))
	}

	// The result endpoint streams newline-delimited JSON events; final
	// alternatives become utterances.
	var utterances []Utterance
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var event struct {
			Result struct {
				Final *struct {
					Alternatives []struct {
						Text string `json:"text"`
					} `json:"alternatives"`
					ChannelTag string `json:"channelTag"`
				} `json:"final"`
			} `json:"result"`
		}
		if err := dec.Decode(&event); err != nil {
			return nil, stepErrorf(b.Name(), StepFetch, "parse result stream: %w", err)
		}
		final := event.Result.Final
		if final == nil || len(final.Alternatives) == 0 {
			continue
		}
		u := Utterance{Text: final.Alternatives[0].Text}
		if final.ChannelTag != "" {
			if speaker, err := strconv.Atoi(final.ChannelTag); err == nil {
				u.Speaker = &speaker
			}
		}
		utterances = append(utterances, u)
	}
	return utterances, nil
}

func (b *YandexBackend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+b.apiKey)
}

func (b *YandexBackend) doJSON(req *http.Request, step Step, out interface{}) error {
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
		return stepErrorf(b.Name(), step, "status %d: %s", resp.StatusCode, string(bytes.TrimSpace(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return stepErrorf(b.Name(), step, "parse response: %w", err)
	}
	return nil
}
