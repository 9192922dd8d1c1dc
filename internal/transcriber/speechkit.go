package transcriber

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
	"voxrun/internal/speechkit"
	"voxrun/internal/storage"
	"voxrun/pkg/logger"

	"go.uber.org/zap"
)

// Recognizer is the async recognition API of SpeechKit
type Recognizer interface {
	StartRecognition(ctx context.Context, uri string) (string, error)
	WaitForResult(ctx context.Context, operationID string) (*speechkit.RecognitionResult, error)
}

// SpeechKit stages the audio in object storage and runs long-running recognition on it
type SpeechKit struct {
	objects    storage.ObjectStorage
	recognizer Recognizer
}

func NewSpeechKit(objects storage.ObjectStorage, recognizer Recognizer) *SpeechKit {
	return &SpeechKit{
		objects:    objects,
		recognizer: recognizer,
	}
}

func (s *SpeechKit) Name() string {
	return "speechkit"
}

func (s *SpeechKit) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ext := filepath.Ext(audioPath)
	if ext == "" {
		ext = ".ogg"
	}
	key := storage.GenerateKey(time.Now(), ext)

	uri, err := s.objects.UploadFile(ctx, key, audioPath, "audio/ogg")
	if err != nil {
		return "", fmt.Errorf("staging audio: %w", err)
	}
	defer func() {
		// the run may already be cancelled; the staged copy still has to go
		if err := s.objects.DeleteFile(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("Failed to delete staged audio", zap.String("key", key), zap.Error(err))
		}
	}()

	operationID, err := s.recognizer.StartRecognition(ctx, uri)
	if err != nil {
		return "", err
	}

	result, err := s.recognizer.WaitForResult(ctx, operationID)
	if err != nil {
		return "", err
	}

	return result.GetFullText(), nil
}
