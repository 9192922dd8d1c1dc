package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
	"voxrun/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const artifact = "audio.ogg"

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) FetchUpdates(ctx context.Context, after int64) ([]model.Update, error) {
	args := m.Called(ctx, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Update), args.Error(1)
}

func (m *MockTransport) ResolveFile(ctx context.Context, fileID string) (string, error) {
	args := m.Called(ctx, fileID)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	args := m.Called(ctx, remotePath, localPath)
	return args.Error(0)
}

func (m *MockTransport) SendReply(ctx context.Context, chatID int64, text string, replyTo int) error {
	args := m.Called(ctx, chatID, text, replyTo)
	return args.Error(0)
}

// replies returns the texts sent so far, in order
func (m *MockTransport) replies() []string {
	var texts []string
	for _, call := range m.Calls {
		if call.Method == "SendReply" {
			texts = append(texts, call.Arguments.String(2))
		}
	}
	return texts
}

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Name() string {
	return "mock"
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	args := m.Called(ctx, audioPath)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, event *model.TranscriptionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func voiceUpdate(id int64, chatID int64, messageID int, fileID string, duration int) model.Update {
	return model.Update{
		ID: id,
		Message: &model.Message{
			ChatID:    chatID,
			MessageID: messageID,
			Voice:     &model.Voice{FileID: fileID, Duration: duration},
		},
	}
}

func TestProcessor_NonVoiceUpdatesAreSkipped(t *testing.T) {
	transport := new(MockTransport)
	transcriber := new(MockTranscriber)
	p := NewProcessor(transport, transcriber, nil, artifact)

	tests := []model.Update{
		{ID: 1},
		{ID: 2, Message: &model.Message{ChatID: 10, MessageID: 3}},
	}

	for _, u := range tests {
		assert.Equal(t, OutcomeSkipped, p.Process(context.Background(), u))
	}

	transport.AssertNotCalled(t, "SendReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestProcessor_Success(t *testing.T) {
	ctx := context.Background()
	transport := new(MockTransport)
	transcriber := new(MockTranscriber)
	events := new(MockPublisher)

	transport.On("SendReply", ctx, int64(555), mock.Anything, 7).Return(nil)
	transport.On("ResolveFile", ctx, "voice-file").Return("voice/file_1.oga", nil)
	transport.On("DownloadFile", ctx, "voice/file_1.oga", artifact).Return(nil)
	transcriber.On("Transcribe", ctx, artifact).Return("hello world", nil)
	events.On("PublishEvent", ctx, mock.MatchedBy(func(e *model.TranscriptionEvent) bool {
		return e.UpdateID == 102 && e.ChatID == 555 && e.MessageID == 7 &&
			e.Duration == 5 && e.Text == "hello world" && e.Engine == "mock" && e.ID != ""
	})).Return(nil)

	p := NewProcessor(transport, transcriber, events, artifact)
	outcome := p.Process(ctx, voiceUpdate(102, 555, 7, "voice-file", 5))

	assert.Equal(t, OutcomeTranscribed, outcome)

	replies := transport.replies()
	require.Len(t, replies, 2)
	assert.Equal(t, fmt.Sprintf(AckMessage, 5), replies[0])
	assert.Contains(t, replies[0], "5 sec")
	assert.Equal(t, fmt.Sprintf(SuccessMessage, "hello world"), replies[1])

	transport.AssertExpectations(t)
	transcriber.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestProcessor_Failures(t *testing.T) {
	tests := []struct {
		name            string
		setup           func(*MockTransport, *MockTranscriber)
		expected        Outcome
		expectedReplies []string
	}{
		{
			name: "resolve fails",
			setup: func(tr *MockTransport, _ *MockTranscriber) {
				tr.On("ResolveFile", mock.Anything, "voice-file").Return("", errors.New("file is temporarily unavailable"))
			},
			expected:        OutcomeResolveFailed,
			expectedReplies: []string{fmt.Sprintf(AckMessage, 5)},
		},
		{
			name: "download fails",
			setup: func(tr *MockTransport, _ *MockTranscriber) {
				tr.On("ResolveFile", mock.Anything, "voice-file").Return("voice/file_1.oga", nil)
				tr.On("DownloadFile", mock.Anything, "voice/file_1.oga", artifact).Return(errors.New("connection reset"))
			},
			expected:        OutcomeDownloadFailed,
			expectedReplies: []string{fmt.Sprintf(AckMessage, 5)},
		},
		{
			name: "engine error",
			setup: func(tr *MockTransport, tc *MockTranscriber) {
				tr.On("ResolveFile", mock.Anything, "voice-file").Return("voice/file_1.oga", nil)
				tr.On("DownloadFile", mock.Anything, "voice/file_1.oga", artifact).Return(nil)
				tc.On("Transcribe", mock.Anything, artifact).Return("", errors.New("model crashed"))
			},
			expected:        OutcomeFailed,
			expectedReplies: []string{fmt.Sprintf(AckMessage, 5), FailureMessage},
		},
		{
			name: "blank text",
			setup: func(tr *MockTransport, tc *MockTranscriber) {
				tr.On("ResolveFile", mock.Anything, "voice-file").Return("voice/file_1.oga", nil)
				tr.On("DownloadFile", mock.Anything, "voice/file_1.oga", artifact).Return(nil)
				tc.On("Transcribe", mock.Anything, artifact).Return("  \n", nil)
			},
			expected:        OutcomeFailed,
			expectedReplies: []string{fmt.Sprintf(AckMessage, 5), FailureMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			transcriber := new(MockTranscriber)
			events := new(MockPublisher)

			transport.On("SendReply", mock.Anything, int64(555), mock.Anything, 7).Return(nil)
			tt.setup(transport, transcriber)

			p := NewProcessor(transport, transcriber, events, artifact)
			outcome := p.Process(context.Background(), voiceUpdate(102, 555, 7, "voice-file", 5))

			assert.Equal(t, tt.expected, outcome)
			assert.Equal(t, tt.expectedReplies, transport.replies())
			events.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessor_ReplyFailuresDoNotStopProcessing(t *testing.T) {
	transport := new(MockTransport)
	transcriber := new(MockTranscriber)
	events := new(MockPublisher)

	transport.On("SendReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bot was blocked by the user"))
	transport.On("ResolveFile", mock.Anything, "voice-file").Return("voice/file_1.oga", nil)
	transport.On("DownloadFile", mock.Anything, "voice/file_1.oga", artifact).Return(nil)
	transcriber.On("Transcribe", mock.Anything, artifact).Return("hello world", nil)
	events.On("PublishEvent", mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	p := NewProcessor(transport, transcriber, events, artifact)
	outcome := p.Process(context.Background(), voiceUpdate(102, 555, 7, "voice-file", 5))

	assert.Equal(t, OutcomeTranscribed, outcome)
	transport.AssertNumberOfCalls(t, "SendReply", 2)
	transcriber.AssertExpectations(t)
}

func TestProcessor_LongTranscriptIsSplit(t *testing.T) {
	transport := new(MockTransport)
	transcriber := new(MockTranscriber)

	long := strings.Repeat("word ", 2000)

	transport.On("SendReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	transport.On("ResolveFile", mock.Anything, "voice-file").Return("voice/file_1.oga", nil)
	transport.On("DownloadFile", mock.Anything, "voice/file_1.oga", artifact).Return(nil)
	transcriber.On("Transcribe", mock.Anything, artifact).Return(long, nil)

	p := NewProcessor(transport, transcriber, nil, artifact)
	assert.Equal(t, OutcomeTranscribed, p.Process(context.Background(), voiceUpdate(1, 1, 1, "voice-file", 60)))

	replies := transport.replies()
	require.Len(t, replies, 4)
	for _, r := range replies {
		assert.LessOrEqual(t, utf8.RuneCountInString(r), MaxMessageLength)
	}
	assert.Equal(t, fmt.Sprintf(SuccessMessage, long), strings.Join(replies[1:], ""))
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		expected []string
	}{
		{name: "fits", text: "hello", limit: 10, expected: []string{"hello"}},
		{name: "break at space", text: "hello world again", limit: 12, expected: []string{"hello world ", "again"}},
		{name: "hard cut", text: "abcdefghij", limit: 4, expected: []string{"abcd", "efgh", "ij"}},
		{name: "runes not bytes", text: "مرحبا بالعالم", limit: 6, expected: []string{"مرحبا ", "بالعال", "م"}},
		{name: "no limit", text: "hello", limit: 0, expected: []string{"hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitMessage(tt.text, tt.limit))
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "resolve_failed", OutcomeResolveFailed.String())
	assert.Equal(t, "download_failed", OutcomeDownloadFailed.String())
	assert.Equal(t, "transcribed", OutcomeTranscribed.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}
