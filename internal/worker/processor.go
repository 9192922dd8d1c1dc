package worker

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
	"voxrun/pkg/logger"
	"voxrun/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	AckMessage     = "✅ Voice message received (duration: %d sec).\nProcessing... this can take up to 5 minutes, depending on when the bot wakes up."
	SuccessMessage = "🎉 Transcription complete:\n\n---\n%s\n---"
	FailureMessage = "❌ Sorry, I could not transcribe this voice message. (Maybe it was silent?)"

	// MaxMessageLength is the Bot API limit for a text message, in characters
	MaxMessageLength = 4096
)

// Outcome is what happened to a single update
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeResolveFailed
	OutcomeDownloadFailed
	OutcomeTranscribed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeResolveFailed:
		return "resolve_failed"
	case OutcomeDownloadFailed:
		return "download_failed"
	case OutcomeTranscribed:
		return "transcribed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transport is the part of the Bot API the processor talks to
type Transport interface {
	ResolveFile(ctx context.Context, fileID string) (string, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	SendReply(ctx context.Context, chatID int64, text string, replyTo int) error
}

// Transcriber turns the artifact into text and removes it
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.TranscriptionEvent) error
}

type Processor struct {
	transport    Transport
	transcriber  Transcriber
	events       EventPublisher
	artifactPath string
}

// NewProcessor creates a processor that downloads every voice file to
// artifactPath. events may be nil.
func NewProcessor(transport Transport, transcriber Transcriber, events EventPublisher, artifactPath string) *Processor {
	return &Processor{
		transport:    transport,
		transcriber:  transcriber,
		events:       events,
		artifactPath: artifactPath,
	}
}

// Process handles one update. Failures stay inside the update: they are
// logged and reported through the returned Outcome.
func (p *Processor) Process(ctx context.Context, update model.Update) Outcome {
	if !update.HasVoice() {
		return OutcomeSkipped
	}

	msg := update.Message
	voice := msg.Voice

	log := logger.With(
		zap.Int64("update_id", update.ID),
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("message_id", msg.MessageID))

	log.Info("Processing voice message", zap.Int("duration", voice.Duration))

	// the heavy part can take a while, let the sender know it was seen
	p.reply(ctx, log, msg, fmt.Sprintf(AckMessage, voice.Duration))

	remotePath, err := p.transport.ResolveFile(ctx, voice.FileID)
	if err != nil {
		log.Error("Failed to resolve voice file", zap.String("file_id", voice.FileID), zap.Error(err))
		return OutcomeResolveFailed
	}

	if err := p.transport.DownloadFile(ctx, remotePath, p.artifactPath); err != nil {
		log.Error("Failed to download voice file", zap.String("file_path", remotePath), zap.Error(err))
		return OutcomeDownloadFailed
	}

	text, err := p.transcriber.Transcribe(ctx, p.artifactPath)
	if err != nil {
		log.Error("Transcription failed", zap.Error(err))
	}
	if err != nil || model.IsBlank(text) {
		p.reply(ctx, log, msg, FailureMessage)
		return OutcomeFailed
	}

	for _, part := range SplitMessage(fmt.Sprintf(SuccessMessage, text), MaxMessageLength) {
		p.reply(ctx, log, msg, part)
	}

	p.publish(ctx, log, update, text)

	log.Info("Voice message transcribed", zap.Int("text_length", len(text)))

	return OutcomeTranscribed
}

// reply is best-effort: a failed send never stops the batch
func (p *Processor) reply(ctx context.Context, log *zap.Logger, msg *model.Message, text string) {
	if err := p.transport.SendReply(ctx, msg.ChatID, text, msg.MessageID); err != nil {
		log.Error("Failed to send reply", zap.Error(err))
	}
}

func (p *Processor) publish(ctx context.Context, log *zap.Logger, update model.Update, text string) {
	if p.events == nil {
		return
	}

	event := &model.TranscriptionEvent{
		ID:        uuid.NewString(),
		UpdateID:  update.ID,
		ChatID:    update.Message.ChatID,
		MessageID: update.Message.MessageID,
		Duration:  update.Message.Voice.Duration,
		Engine:    p.transcriber.Name(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	if err := p.events.PublishEvent(ctx, event); err != nil {
		log.Warn("Failed to publish transcription event", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// SplitMessage cuts text into parts of at most limit characters, preferring
// to break at a newline or space.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)

	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' || runes[i-1] == ' ' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}

	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}

	return parts
}
