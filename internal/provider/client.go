package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Client is an HTTP implementation of the Provider contract. A submission is
// two calls: the media bytes are uploaded first, then a transcript job is
// created referencing the uploaded audio URL.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a provider client for the given API base URL and key
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
}

// NewClientWithLogger creates a provider client with structured logging
func NewClientWithLogger(baseURL, apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := NewClient(baseURL, apiKey)
	client.logger = logger
	return client
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type createTranscriptRequest struct {
	AudioURL string `json:"audio_url"`
	Profile
}

// transcriptPayload mirrors the provider wire format. Word and utterance
// timestamps and the audio duration are in milliseconds.
type transcriptPayload struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	Text            *string     `json:"text"`
	Confidence      *float64    `json:"confidence"`
	AudioDurationMs *int64      `json:"audio_duration"`
	Utterances      []Utterance `json:"utterances"`
	Words           []Word      `json:"words"`
	Error           *string     `json:"error"`
}

func (p *transcriptPayload) toTranscript() *Transcript {
	t := &Transcript{
		ID:         p.ID,
		Status:     ParseStatus(p.Status),
		Utterances: p.Utterances,
		Words:      p.Words,
	}
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Confidence != nil {
		t.Confidence = *p.Confidence
	}
	if p.AudioDurationMs != nil {
		t.AudioDurationMs = *p.AudioDurationMs
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	return t
}

// Submit uploads the media file and creates a transcription job
func (c *Client) Submit(ctx context.Context, filePath string, profile Profile) (string, error) {
	audioURL, err := c.uploadFile(ctx, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	c.logger.Debug("media uploaded to provider",
		zap.String("file_path", filePath))

	payload, err := json.Marshal(createTranscriptRequest{
		AudioURL: audioURL,
		Profile:  profile,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build transcript request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var created transcriptPayload
	if err := c.doJSON(req, &created); err != nil {
		return "", fmt.Errorf("failed to create transcript: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("provider returned transcript without an id")
	}

	c.logger.Info("transcription job created",
		zap.String("job_id", created.ID),
		zap.String("status", created.Status))

	return created.ID, nil
}

// GetTranscript fetches the current transcript state by provider job id
func (c *Client) GetTranscript(ctx context.Context, id string) (*Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build transcript request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	var payload transcriptPayload
	if err := c.doJSON(req, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch transcript %s: %w", id, err)
	}

	return payload.toTranscript(), nil
}

// uploadFile streams the media bytes to the provider upload endpoint and
// returns the URL the provider assigned to them.
func (c *Client) uploadFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", f)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var uploaded uploadResponse
	if err := c.doJSON(req, &uploaded); err != nil {
		return "", err
	}
	if uploaded.UploadURL == "" {
		return "", fmt.Errorf("provider returned empty upload URL")
	}
	return uploaded.UploadURL, nil
}

// doJSON executes the request and decodes a JSON response body into out,
// treating any non-2xx status as an error.
func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
