package transcriber

import (
	"context"
	"fmt"
	"voxrun/internal/config"
	"voxrun/internal/speechkit"
	"voxrun/internal/storage"
)

// NewEngine builds the engine selected by cfg.Engine.Kind
func NewEngine(ctx context.Context, cfg *config.Config) (Engine, error) {
	switch cfg.Engine.Kind {
	case config.EngineWhisperCLI:
		return NewWhisperCLI(cfg.Engine.WhisperBinary, cfg.Engine.WhisperModel, cfg.Engine.Language), nil

	case config.EngineOpenAI:
		return NewOpenAI(cfg.Engine.OpenAIKey, cfg.Engine.OpenAIBaseURL, cfg.Engine.OpenAIModel, cfg.Engine.Language), nil

	case config.EngineSpeechKit:
		objects, err := storage.NewS3Storage(ctx,
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			cfg.S3.Bucket,
		)
		if err != nil {
			return nil, err
		}

		client := speechkit.NewClient(cfg.SpeechKit.APIKey, cfg.SpeechKit.FolderID, cfg.Engine.Language).
			WithPolling(speechkit.OperationPoll, cfg.Engine.RecognitionLimit)

		return NewSpeechKit(objects, client), nil

	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine.Kind)
	}
}
