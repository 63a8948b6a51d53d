package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/i2y/openagent/retry"
)

// client wraps the HTTP client for chat completion calls.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// chatCompletionStream posts a streaming request and returns the response
// body once the server has answered with a 2xx status. Connection failures
// and 429/5xx responses are retried per the client's policy; the body is
// never retried once handed out.
func (c *client) chatCompletionStream(ctx context.Context, req *chatCompletionRequest) (io.ReadCloser, error) {
	streamReq := *req
	streamReq.Stream = true

	body, err := json.Marshal(streamReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	requestID := uuid.NewString()
	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"

	c.logger.Debug("chat completion request",
		"request_id", requestID,
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	attempt := 0
	shouldRetry := func(err error) bool {
		ok := retry.IsRetryable(err)
		if ok {
			c.logger.Debug("chat completion retry", "request_id", requestID, "attempt", attempt, "err", err)
		}
		return ok
	}

	var respBody io.ReadCloser
	err = retry.Do(ctx, c.retry, shouldRetry, func(ctx context.Context) error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-Request-Id", requestID)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}

		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			defer func() { _ = httpResp.Body.Close() }()
			raw, _ := io.ReadAll(httpResp.Body)
			return parseError(httpResp.StatusCode, raw)
		}

		respBody = httpResp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}

	return respBody, nil
}
