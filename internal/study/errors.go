package study

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// User-facing messages for generation failures.
const (
	MsgEmptyInput  = "Input content is empty. Please provide text, a valid URL, or a file."
	MsgAuth        = "Authentication failed. Please ensure the API key is configured correctly and has the necessary permissions."
	MsgOverloaded  = "The AI service is currently overloaded. Please try again in a few moments."
	MsgUnavailable = "The AI service is temporarily unavailable. Please try again later."
	MsgBadInput    = "There was a problem with the input provided. It might be too long, malformed, or in an unsupported format."
	MsgUnknown     = "Failed to generate study materials. An unknown error occurred."
)

// UserError is a failure with a message fit for display. Err keeps the
// underlying diagnostic.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Err }

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusCode extracts the HTTP status from err, or 0 if it has none.
func StatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// Retryable reports whether err is a rate limit or server error.
func Retryable(err error) bool {
	status := StatusCode(err)
	return status == http.StatusTooManyRequests || status >= 500
}

// UserMessage maps the final generation error to a display message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	switch status := StatusCode(err); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return MsgAuth
	case status == http.StatusTooManyRequests:
		return MsgOverloaded
	case status >= 500:
		return MsgUnavailable
	}
	msg := err.Error()
	if strings.Contains(msg, "INVALID_ARGUMENT") {
		return MsgBadInput
	}
	if msg != "" {
		return msg
	}
	return MsgUnknown
}
