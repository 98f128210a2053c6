package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Completer is the text-completion oracle consumed by the learning pipeline.
// Implementations may fail, time out, or return garbage; callers own the
// fallback behavior.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = 512
	}

	var response CompletionResponse
	if err := c.makeRequest(ctx, "POST", "/v1/complete", req, &response); err != nil {
		return "", err
	}

	if strings.TrimSpace(response.Text) == "" {
		return "", fmt.Errorf("empty completion: %w", ErrMalformed)
	}

	return response.Text, nil
}

// Health probes the oracle's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.makeRequest(ctx, "GET", "/health", nil, nil)
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	url := c.baseURL + endpoint

	var body io.Reader
	var contentLength int

	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
		contentLength = len(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"url":      url,
		"has_body": payload != nil,
		"size":     contentLength,
	}).Debug("Making oracle request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v: %w", err, ErrUnavailable)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code":   resp.StatusCode,
		"method":        method,
		"url":           url,
		"response_size": len(responseBody),
	}).Debug("Oracle response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Only log response body for errors to avoid spam
		c.logger.WithFields(logrus.Fields{
			"status_code":   resp.StatusCode,
			"response_body": string(responseBody),
		}).Debug("Oracle error body")
		return fmt.Errorf("oracle request failed with status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %v: %w", err, ErrMalformed)
		}
	}

	return nil
}
