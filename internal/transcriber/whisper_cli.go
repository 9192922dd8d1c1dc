package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"voxrun/pkg/logger"

	"go.uber.org/zap"
)

// WhisperCLI runs the openai-whisper command line tool. The model is loaded
// by the tool on every call.
type WhisperCLI struct {
	binary   string
	model    string
	language string
}

func NewWhisperCLI(binary, model, language string) *WhisperCLI {
	return &WhisperCLI{
		binary:   binary,
		model:    model,
		language: language,
	}
}

func (w *WhisperCLI) Name() string {
	return "whisper-cli"
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	outDir, err := os.MkdirTemp("", "whisper-out-")
	if err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.binary, w.args(audioPath, outDir)...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.Debug("Running whisper",
		zap.String("binary", w.binary),
		zap.String("model", w.model),
		zap.String("audio", audioPath))

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s: %w: %s", w.binary, err, lastLine(output.String()))
	}

	base := filepath.Base(audioPath)
	resultPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".txt")

	text, err := os.ReadFile(resultPath)
	if err != nil {
		return "", fmt.Errorf("reading whisper result: %w", err)
	}

	return string(text), nil
}

func (w *WhisperCLI) args(audioPath, outDir string) []string {
	args := []string{
		audioPath,
		"--model", w.model,
		"--fp16", "False",
		"--output_format", "txt",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	return args
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
