package speechkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"voxrun/pkg/logger"

	"go.uber.org/zap"
)

const (
	RecognizeURL  = "https://transcribe.api.cloud.yandex.net/speech/stt/v2/longRunningRecognize"
	OperationURL  = "https://operation.api.cloud.yandex.net/operations"
	OperationPoll = 5 * time.Second
	MaxWaitTime   = 30 * time.Minute
)

type Client struct {
	apiKey       string
	folderID     string
	language     string
	recognizeURL string
	operationURL string
	pollInterval time.Duration
	maxWait      time.Duration
	client       *http.Client
}

// NewClient creates a Yandex SpeechKit client. An empty language lets the service detect it.
func NewClient(apiKey, folderID, language string) *Client {
	return &Client{
		apiKey:       apiKey,
		folderID:     folderID,
		language:     language,
		recognizeURL: RecognizeURL,
		operationURL: OperationURL,
		pollInterval: OperationPoll,
		maxWait:      MaxWaitTime,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithEndpoints points the client at other recognize and operation URLs (for testing).
func (c *Client) WithEndpoints(recognizeURL, operationURL string) *Client {
	c.recognizeURL = recognizeURL
	c.operationURL = strings.TrimRight(operationURL, "/")
	return c
}

// WithPolling overrides how often and how long WaitForResult polls
func (c *Client) WithPolling(interval, maxWait time.Duration) *Client {
	c.pollInterval = interval
	c.maxWait = maxWait
	return c
}

// StartRecognition starts async recognition of the OGG/Opus object at uri
func (c *Client) StartRecognition(ctx context.Context, uri string) (string, error) {
	language := c.language
	if language == "" {
		language = "auto"
	}

	reqBody := RecognitionRequest{
		Config: RecognitionConfig{
			Specification: Specification{
				LanguageCode:      language,
				Model:             "general",
				AudioEncoding:     "OGG_OPUS",
				SampleRateHertz:   48000,
				AudioChannelCount: 1,
				ProfanityFilter:   false,
				LiteratureText:    true,
			},
		},
		Audio: AudioSource{
			URI: uri,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.recognizeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Api-Key %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-folder-id", c.folderID)

	logger.Debug("Starting speech recognition", zap.String("uri", uri))

	var opResp OperationResponse
	if err := c.do(req, &opResp); err != nil {
		return "", fmt.Errorf("recognition request failed: %w", err)
	}

	logger.Info("Recognition started", zap.String("operation_id", opResp.ID))

	return opResp.ID, nil
}

// WaitForResult polls the operation until it is done or the wait limit passes
func (c *Client) WaitForResult(ctx context.Context, operationID string) (*RecognitionResult, error) {
	url := fmt.Sprintf("%s/%s", c.operationURL, operationID)
	startTime := time.Now()

	for {
		if time.Since(startTime) > c.maxWait {
			return nil, fmt.Errorf("recognition timeout exceeded")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", fmt.Sprintf("Api-Key %s", c.apiKey))

		var opResp OperationResponse
		if err := c.do(req, &opResp); err != nil {
			return nil, fmt.Errorf("operation check failed: %w", err)
		}

		if opResp.Done {
			if opResp.Error != nil {
				return nil, fmt.Errorf("recognition failed: %s (code: %d)", opResp.Error.Message, opResp.Error.Code)
			}

			var result RecognitionResult
			if len(opResp.Response) > 0 {
				if err := json.Unmarshal(opResp.Response, &result); err != nil {
					return nil, fmt.Errorf("failed to unmarshal result: %w", err)
				}
			}

			logger.Info("Recognition completed",
				zap.String("operation_id", operationID),
				zap.Int("chunks", len(result.Chunks)))

			return &result, nil
		}

		logger.Debug("Recognition in progress",
			zap.String("operation_id", operationID),
			zap.Duration("elapsed", time.Since(startTime)))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// GetFullText joins the first alternative of every chunk on channel 1
func (r *RecognitionResult) GetFullText() string {
	parts := make([]string, 0, len(r.Chunks))
	for _, chunk := range r.Chunks {
		if chunk.ChannelTag != "" && chunk.ChannelTag != "1" {
			continue
		}
		if len(chunk.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(chunk.Alternatives[0].Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
