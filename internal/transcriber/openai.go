package transcriber

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI calls an OpenAI-compatible /audio/transcriptions endpoint
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAI creates the engine. A non-empty baseURL targets a self-hosted
// server speaking the same API.
func NewOpenAI(apiKey, baseURL, model, language string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAI{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
	}
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: o.language,
	})
	if err != nil {
		return "", fmt.Errorf("creating transcription: %w", err)
	}

	return resp.Text, nil
}
