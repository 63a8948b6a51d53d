package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError represents a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
	Body       string // Raw response body
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("openai API error (status %d): %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// parseError builds an APIError from a response body, falling back to the
// raw body when it is not the standard error envelope.
func parseError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    string(body),
		Body:       string(body),
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return apiErr
	}

	detail := errResp.Error.toAPIError()
	detail.StatusCode = statusCode
	detail.Body = apiErr.Body
	return detail
}

// toAPIError converts an error envelope. It is also used for errors sent
// as a data line after the stream has started with a 200 status.
func (e *apiError) toAPIError() *APIError {
	apiErr := &APIError{
		StatusCode: http.StatusOK,
		Message:    e.Message,
		Type:       e.Type,
	}
	if apiErr.Message == "" {
		apiErr.Message = "unspecified error in stream"
	}
	if e.Code != nil {
		apiErr.Code = fmt.Sprint(e.Code)
	}
	return apiErr
}

// StreamError represents a stream that failed after the response started,
// either on a malformed payload or on an error sent by the server.
type StreamError struct {
	Op    string
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("openai stream: %s: %v", e.Op, e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Permanent marks stream errors as not worth retrying.
func (e *StreamError) Permanent() bool {
	return true
}
