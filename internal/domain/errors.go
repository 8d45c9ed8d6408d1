package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction is the base kind every pipeline error matches via errors.Is.
	ErrExtraction = errors.New("extraction error")

	// ErrBlockedContent signals that the model withheld its answer behind a safety filter.
	ErrBlockedContent = errors.New("blocked content")
	// ErrBudgetExceeded signals an exhausted token budget.
	ErrBudgetExceeded = errors.New("token budget exceeded")
	// ErrEmptyResponse signals a model response without candidates or text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Error kind names, as shown to the CLI user.
const (
	KindConfiguration = "ConfigurationError"
	KindValidation    = "ValidationError"
	KindImageLoad     = "ImageLoadError"
	KindAPI           = "APIError"
	KindJSONParse     = "JSONParseError"
)

// ConfigurationError reports missing or invalid settings or an unloadable prompt template.
type ConfigurationError struct {
	Key string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string { return format(e.Msg, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches the base kind.
func (e *ConfigurationError) Is(target error) bool { return target == ErrExtraction }

// ValidationError reports a bad input path or an image outside the accepted bounds.
type ValidationError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ValidationError) Error() string { return format(e.Msg, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches the base kind.
func (e *ValidationError) Is(target error) bool { return target == ErrExtraction }

// ImageLoadError reports a corrupt, undecodable or unsupported image.
type ImageLoadError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ImageLoadError) Error() string { return format(e.Msg, e.Err) }
func (e *ImageLoadError) Unwrap() error { return e.Err }

// Is matches the base kind.
func (e *ImageLoadError) Is(target error) bool { return target == ErrExtraction }

// APIError reports a failed call to the external model.
// Retryable marks transient failures; Blocked marks a content-filter refusal, which is never retried.
type APIError struct {
	StatusCode int
	Retryable  bool
	Blocked    bool
	Msg        string
	Err        error
}

func (e *APIError) Error() string { return format(e.Msg, e.Err) }
func (e *APIError) Unwrap() error { return e.Err }

// Is matches the base kind.
func (e *APIError) Is(target error) bool { return target == ErrExtraction }

// Transient reports whether the failure may succeed on another attempt.
func (e *APIError) Transient() bool { return e.Retryable && !e.Blocked }

// JSONParseError reports model output that is not a parseable JSON document.
type JSONParseError struct {
	Snippet string
	Msg     string
	Err     error
}

func (e *JSONParseError) Error() string {
	return fmt.Sprintf("%s (response snippet: %q)", format(e.Msg, e.Err), e.Snippet)
}

func (e *JSONParseError) Unwrap() error { return e.Err }

// Is matches the base kind.
func (e *JSONParseError) Is(target error) bool { return target == ErrExtraction }

// NewBlockedError builds the fatal APIError for a content-filter refusal.
func NewBlockedError(reason string) error {
	return &APIError{
		Blocked: true,
		Msg:     "model blocked the request: " + reason,
		Err:     ErrBlockedContent,
	}
}

// KindOf returns the taxonomy name of the first pipeline error in err's chain, or "Error".
func KindOf(err error) string {
	var (
		cfgErr   *ConfigurationError
		valErr   *ValidationError
		loadErr  *ImageLoadError
		apiErr   *APIError
		parseErr *JSONParseError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &loadErr):
		return KindImageLoad
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &parseErr):
		return KindJSONParse
	default:
		return "Error"
	}
}

func format(msg string, cause error) string {
	switch {
	case cause == nil:
		return msg
	case msg == "":
		return cause.Error()
	default:
		return msg + ": " + cause.Error()
	}
}
