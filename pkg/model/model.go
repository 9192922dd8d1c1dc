package model

import (
	"strings"
	"time"
)

// Update is one item of the bot update feed
type Update struct {
	ID      int64    `json:"update_id"`
	Message *Message `json:"message,omitempty"`
}

// Message is the part of an inbound chat message the bot cares about
type Message struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Voice     *Voice `json:"voice,omitempty"`
}

// Voice describes a voice attachment
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// HasVoice reports whether the update carries a voice message
func (u Update) HasVoice() bool {
	return u.Message != nil && u.Message.Voice != nil
}

// MaxID returns the highest update identifier in the batch, or floor if none is higher.
func MaxID(floor int64, updates []Update) int64 {
	max := floor
	for _, u := range updates {
		if u.ID > max {
			max = u.ID
		}
	}
	return max
}

// IsBlank reports whether a transcription has no usable content
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// TranscriptionEvent is published after a voice message has been transcribed
type TranscriptionEvent struct {
	ID        string    `json:"id"`
	UpdateID  int64     `json:"update_id"`
	ChatID    int64     `json:"chat_id"`
	MessageID int       `json:"message_id"`
	Duration  int       `json:"duration"`
	Engine    string    `json:"engine"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
