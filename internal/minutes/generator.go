package minutes

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are an assistant that writes meeting minutes. Given the raw transcript
of a meeting, produce a concise protocol in Markdown with these sections:
a short summary, the agenda items discussed, decisions made, and action
items with owners when speakers are identifiable. Use only information
present in the transcript. Answer with Markdown only, no preamble.`

const maxAttempts = 3

// Generator turns a full transcript into markdown minutes.
type Generator interface {
	Generate(ctx context.Context, transcript string) (string, error)
}

// LLMGenerator calls an OpenAI-compatible chat completion endpoint. Low
// temperature keeps repeated runs on the same transcript near-identical.
type LLMGenerator struct {
	client *openai.Client
	model  string
}

func NewLLMGenerator(baseURL, apiKey, model string) *LLMGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &LLMGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, transcript string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("minutes generation returned no choices")
			}
			return strings.TrimSpace(resp.Choices[0].Message.Content), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("[minutes] generation attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return "", fmt.Errorf("minutes generation failed after %d attempts: %w", maxAttempts, lastErr)
}
