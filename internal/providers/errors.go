package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// Retryable reports whether a call that failed with this type may succeed if repeated.
func (t ErrorType) Retryable() bool {
	return t == ErrorTransient || t == ErrorRate
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTransient
	case errors.Is(err, context.Canceled):
		return ErrorPermanent
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if t := classifyStatus(apiErr.HTTPStatusCode, fmt.Sprint(apiErr.Code)+" "+apiErr.Type); t != "" {
			return t
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if t := classifyStatus(reqErr.HTTPStatusCode, ""); t != "" {
			return t
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransient
	}

	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "context_length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"), strings.Contains(e, "connection reset"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

func classifyStatus(status int, code string) ErrorType {
	code = strings.ToLower(code)
	switch {
	case strings.Contains(code, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(code, "context_length_exceeded"):
		return ErrorContext
	case status == 429:
		return ErrorRate
	case status == 408 || status >= 500:
		return ErrorTransient
	case status >= 400:
		return ErrorPermanent
	}
	return ""
}
