package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"voxrun/pkg/logger"
	"voxrun/pkg/model"
	"voxrun/pkg/resilience"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

const (
	DefaultURL         = "https://api.telegram.org"
	DefaultPollTimeout = 30 * time.Second
	DefaultMaxFileSize = 20 << 20

	// extra time the HTTP client waits on top of the long poll itself
	pollGrace = 15 * time.Second
)

// TransportError is returned by every failed call to the Bot API
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// statusError is an unexpected HTTP status on a file download
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

var errFileTooLarge = errors.New("file exceeds size limit")

type Options struct {
	URL         string
	Token       string
	PollTimeout time.Duration
	MaxFileSize int64
	Retry       *resilience.RetryConfig
	Limiter     *resilience.RateLimiter
}

// Transport wraps the Bot API calls a run needs
type Transport struct {
	bot         *tele.Bot
	httpClient  *http.Client
	pollTimeout time.Duration
	maxFileSize int64
	retry       *resilience.RetryConfig
	limiter     *resilience.RateLimiter
}

// New builds a transport without contacting Telegram
func New(opts Options) (*Transport, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Retry == nil {
		opts.Retry = resilience.DefaultRetryConfig()
		opts.Retry.Retryable = isTransient
	}
	if opts.Limiter == nil {
		// Bot API allows roughly 30 messages per second
		opts.Limiter = resilience.NewRateLimiter(20, 50*time.Millisecond)
	}

	client := &http.Client{Timeout: opts.PollTimeout + pollGrace}

	bot, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(opts.URL, "/"),
		Token:   opts.Token,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Transport{
		bot:         bot,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		pollTimeout: opts.PollTimeout,
		maxFileSize: opts.MaxFileSize,
		retry:       opts.Retry,
		limiter:     opts.Limiter,
	}, nil
}

// FetchUpdates long-polls for updates with an identifier greater than after
func (t *Transport) FetchUpdates(ctx context.Context, after int64) ([]model.Update, error) {
	params := map[string]interface{}{
		"offset":          after + 1,
		"timeout":         int(t.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}

	logger.Debug("Polling for updates",
		zap.Int64("offset", after+1),
		zap.Duration("timeout", t.pollTimeout))

	data, err := withContext(ctx, "getUpdates", func() ([]byte, error) {
		return t.bot.Raw("getUpdates", params)
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &TransportError{Op: "getUpdates", Err: fmt.Errorf("failed to decode updates: %w", err)}
	}

	updates := make([]model.Update, 0, len(resp.Result))
	for _, u := range resp.Result {
		updates = append(updates, toModel(u))
	}

	return updates, nil
}

func toModel(u tele.Update) model.Update {
	update := model.Update{ID: int64(u.ID)}
	if u.Message == nil || u.Message.Chat == nil {
		return update
	}

	update.Message = &model.Message{
		ChatID:    u.Message.Chat.ID,
		MessageID: u.Message.ID,
	}

	if v := u.Message.Voice; v != nil {
		update.Message.Voice = &model.Voice{
			FileID:   v.FileID,
			Duration: v.Duration,
			FileSize: int64(v.FileSize),
			MimeType: v.MIME,
		}
	}

	return update
}

// ResolveFile maps a file identifier to its path on the file server
func (t *Transport) ResolveFile(ctx context.Context, fileID string) (string, error) {
	file, err := withContext(ctx, "getFile", func() (tele.File, error) {
		return t.bot.FileByID(fileID)
	})
	if err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", &TransportError{Op: "getFile", Err: errors.New("empty file path")}
	}

	return file.FilePath, nil
}

// DownloadFile fetches remotePath into localPath, replacing whatever was there
func (t *Transport) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	fileURL := t.bot.URL + "/file/bot" + t.bot.Token + "/" + strings.TrimLeft(remotePath, "/")

	err := resilience.RetryWithExponentialBackoff(ctx, t.retry, func() error {
		return t.download(ctx, fileURL, localPath)
	})
	if err != nil {
		os.Remove(localPath)
		return &TransportError{Op: "download", Err: err}
	}

	return nil
}

func (t *Transport) download(ctx context.Context, fileURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, t.maxFileSize+1))
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write file data: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", localPath, err)
	}
	if n > t.maxFileSize {
		return errFileTooLarge
	}

	logger.Debug("File downloaded",
		zap.String("path", localPath),
		zap.Int64("size", n))

	return nil
}

// isTransient reports whether a download failure is worth retrying
func isTransient(err error) bool {
	if errors.Is(err, errFileTooLarge) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// SendReply sends text as a reply to messageID in chatID
func (t *Transport) SendReply(ctx context.Context, chatID int64, text string, replyTo int) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: "sendMessage", Err: err}
	}

	chat := &tele.Chat{ID: chatID}
	_, err := withContext(ctx, "sendMessage", func() (*tele.Message, error) {
		return t.bot.Send(chat, text, &tele.SendOptions{
			ReplyTo: &tele.Message{ID: replyTo},
		})
	})
	return err
}

// withContext runs a telebot call, which takes no context, and stops waiting
// for it once ctx is done. An abandoned call still ends on the client timeout.
func withContext[T any](ctx context.Context, op string, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, &TransportError{Op: op, Err: err}
	}

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := call()
		done <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Abandoning Bot API call", zap.String("op", op), zap.Error(ctx.Err()))
		return zero, &TransportError{Op: op, Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return zero, &TransportError{Op: op, Err: r.err}
		}
		return r.value, nil
	}
}
