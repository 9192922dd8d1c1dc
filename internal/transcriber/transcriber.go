// Package transcriber turns a local audio file into text.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"voxrun/pkg/logger"

	"go.uber.org/zap"
)

// Engine is a speech recognizer working on a file path
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Service runs an engine and owns the lifecycle of the audio artifact.
// Every call reaches the engine: a failure on one message says nothing
// about the next one.
type Service struct {
	engine Engine
}

func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

func (s *Service) Name() string {
	return s.engine.Name()
}

// Transcribe returns the trimmed text recognized in audioPath. The file is
// removed before returning, whatever the outcome.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (string, error) {
	defer removeArtifact(audioPath)

	started := time.Now()

	text, err := s.engine.Transcribe(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.engine.Name(), err)
	}

	text = strings.TrimSpace(text)

	logger.Info("Transcription finished",
		zap.String("engine", s.engine.Name()),
		zap.Duration("took", time.Since(started)),
		zap.Int("text_length", len(text)))

	return text, nil
}

func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("Failed to remove audio artifact",
			zap.String("path", path),
			zap.Error(err))
	}
}
