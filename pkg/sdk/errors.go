package docextract

import (
	"errors"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	// ErrExtraction matches every pipeline failure.
	ErrExtraction     = domain.ErrExtraction
	ErrBlockedContent = domain.ErrBlockedContent
	ErrBudgetExceeded = domain.ErrBudgetExceeded
	ErrEmptyResponse  = domain.ErrEmptyResponse
)

// Error kinds returned by ErrorKind.
const (
	KindConfiguration = domain.KindConfiguration
	KindValidation    = domain.KindValidation
	KindImageLoad     = domain.KindImageLoad
	KindAPI           = domain.KindAPI
	KindJSONParse     = domain.KindJSONParse
)

// ErrorKind names the failure class of err, or "Error" for errors outside the pipeline.
func ErrorKind(err error) string {
	return domain.KindOf(err)
}

// IsRetryable reports whether err is a transient model failure that a later call may not hit.
func IsRetryable(err error) bool {
	var apiErr *domain.APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}
