package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPClient talks to a transcription HTTP API that accepts multipart audio
// uploads and returns JSON.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type httpResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Final      bool    `json:"final,omitempty"`
}

// NewHTTPClient builds a client for the given endpoint. The API key is
// optional; when set it is sent as a bearer token.
func NewHTTPClient(endpoint, apiKey, model string, timeout time.Duration) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("transcription endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Transcribe uploads the window audio and parses the transcription response.
func (c *HTTPClient) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, ErrEmptyAudio
	}

	body, contentType, err := c.encodeRequest(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode transcription request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("create transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("transcription HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed httpResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse transcription response: %w", err)
	}

	return Result{
		Text:       parsed.Text,
		Confidence: parsed.Confidence,
		Language:   parsed.Language,
		Final:      parsed.Final,
	}, nil
}

func (c *HTTPClient) encodeRequest(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", fmt.Sprintf("%s-%d.raw", req.SessionID, req.WindowID))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"session_id": req.SessionID,
		"window_id":  fmt.Sprintf("%d", req.WindowID),
		"language":   req.LanguageHint,
		"model":      c.model,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
