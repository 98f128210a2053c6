package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   8 * time.Second,
	}
}

// CompleteWithRetry retries transient failures with exponential backoff.
// Malformed output is not retried: resending the same prompt to a model that
// answered garbage usually just burns tokens.
func (c *Client) CompleteWithRetry(ctx context.Context, req CompletionRequest) (string, error) {
	config := DefaultRetryConfig()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, err := c.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, ErrMalformed) {
			return "", err
		}

		if attempt == config.MaxRetries {
			break
		}

		delay := time.Duration(float64(config.BaseDelay) * math.Pow(1.5, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err.Error(),
		}).Warn("Retrying oracle completion")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", fmt.Errorf("completion failed after %d retries: %w", config.MaxRetries, lastErr)
}

// WithRetry returns a Completer whose Complete calls go through the retry
// policy. Services should depend on this rather than the raw client.
func (c *Client) WithRetry() Completer {
	return retryingCompleter{client: c}
}

type retryingCompleter struct {
	client *Client
}

func (r retryingCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return r.client.CompleteWithRetry(ctx, req)
}
