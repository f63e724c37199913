package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies an LLM failure.
type ErrorType string

const (
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeRate     ErrorType = "rate_limit"
	ErrorTypeResponse ErrorType = "response"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int // HTTP status code if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Type)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" HTTP %d", e.StatusCode)
	}
	msg += " " + e.Message
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// errorRule maps substrings of a provider error to a classification.
// Rules are checked in order; the first match wins.
type errorRule struct {
	patterns  []string
	errType   ErrorType
	message   string
	retryable bool
}

var errorRules = []errorRule{
	{[]string{"401", "unauthorized", "invalid api key", "api key not valid", "permission_denied"}, ErrorTypeAuth, "authentication failed", false},
	{[]string{"model not found", "model does not exist", "unknown model"}, ErrorTypeModel, "model not found", false},
	{[]string{"404"}, ErrorTypeEndpoint, "endpoint not found", false},
	{[]string{"connection refused", "no such host", "connection reset"}, ErrorTypeEndpoint, "connection failed", true},
	{[]string{"timeout", "deadline exceeded"}, ErrorTypeEndpoint, "request timeout", true},
	{[]string{"429", "rate limit", "resource_exhausted", "overloaded"}, ErrorTypeRate, "rate limited", true},
	{[]string{"500", "502", "503", "504", "unavailable"}, ErrorTypeEndpoint, "server error", true},
}

var statusCodes = []int{400, 401, 403, 404, 429, 500, 502, 503, 504}

// ClassifyError categorizes an error and returns a structured Error.
// Context cancellation is never retryable: the caller has gone away.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range statusCodes {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	if strings.Contains(lower, "context canceled") {
		llmErr = NewError(ErrorTypeEndpoint, "request canceled", false, err)
		llmErr.StatusCode = statusCode
		return llmErr
	}

	for _, rule := range errorRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				llmErr = NewError(rule.errType, rule.message, rule.retryable, err)
				llmErr.StatusCode = statusCode
				return llmErr
			}
		}
	}

	llmErr = NewError(ErrorTypeUnknown, "llm error", false, err)
	llmErr.StatusCode = statusCode
	return llmErr
}

// IsRetryable returns true if the error is a retryable LLM error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
