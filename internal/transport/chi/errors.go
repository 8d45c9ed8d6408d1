package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeImageUnreadable  ErrorCode = "image_unreadable"
	CodeContentBlocked   ErrorCode = "content_blocked"
	CodeBudgetExceeded   ErrorCode = "budget_exceeded"
	CodeModelError       ErrorCode = "model_error"
	CodeModelOutput      ErrorCode = "model_output_invalid"
	CodeMisconfigured    ErrorCode = "configuration_error"
	CodeInternal         ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message"`
}

// errorHandler writes a response for err and reports whether it did.
type errorHandler func(w http.ResponseWriter, err error) bool

// sentinelHandler matches errors.Is(err, sentinel).
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeKindError(w, status, code, err)
		return true
	}
}

// kindHandler matches the first pipeline error of type T in the chain.
func kindHandler[T error](status int, code ErrorCode, message func(error) string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		var target T
		if !errors.As(err, &target) {
			return false
		}
		msg := err.Error()
		if message != nil {
			msg = message(err)
		}
		writeJSON(w, status, ErrorResponse{Code: code, Kind: domain.KindOf(err), Message: msg})
		return true
	}
}

// pipelineErrorHandlers maps the error taxonomy to HTTP statuses. Order matters:
// budget and blocked refusals are APIErrors too.
var pipelineErrorHandlers = []errorHandler{
	sentinelHandler(domain.ErrBudgetExceeded, http.StatusPaymentRequired, CodeBudgetExceeded),
	sentinelHandler(domain.ErrBlockedContent, http.StatusUnprocessableEntity, CodeContentBlocked),
	kindHandler[*domain.ValidationError](http.StatusBadRequest, CodeValidationFailed, nil),
	kindHandler[*domain.ImageLoadError](http.StatusUnprocessableEntity, CodeImageUnreadable, nil),
	kindHandler[*domain.APIError](http.StatusBadGateway, CodeModelError, nil),
	kindHandler[*domain.JSONParseError](http.StatusBadGateway, CodeModelOutput, nil),
	kindHandler[*domain.ConfigurationError](http.StatusInternalServerError, CodeMisconfigured,
		func(error) string { return "service is misconfigured" }),
}

func writeKindError(w http.ResponseWriter, status int, code ErrorCode, err error) {
	writeJSON(w, status, ErrorResponse{Code: code, Kind: domain.KindOf(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
