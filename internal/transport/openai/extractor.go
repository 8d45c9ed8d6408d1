package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/metrics"
)

// Extractor is a single-attempt model binding over an OpenAI-compatible chat completions API
// (Gemini exposes one at /v1beta/openai/). Retries are the caller's concern.
type Extractor struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// Config holds the model binding settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewExtractor creates an OpenAI-compatible model binding.
func NewExtractor(cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Extractor{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   logger,
	}
}

// Extract implements domain.Extractor with one model call and transport-level metrics.
func (e *Extractor) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResponse, error) {
	start := time.Now()

	resp, err := e.client.CreateChatCompletion(ctx, e.buildRequest(req))

	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			e.recordError("canceled")
			return domain.ExtractionResponse{}, fmt.Errorf("model request: %w", ctx.Err())
		}
		classified := parseAPIError(err)
		var apiErr *domain.APIError
		if !errors.As(classified, &apiErr) {
			e.recordError("request_error")
			return domain.ExtractionResponse{}, classified
		}
		e.recordError("api_error")
		return domain.ExtractionResponse{}, classified
	}

	if len(resp.Choices) == 0 {
		e.recordError("empty_response")
		return domain.ExtractionResponse{}, &domain.APIError{
			Retryable: true, Msg: "model returned no choices", Err: domain.ErrEmptyResponse,
		}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		e.recordError("blocked")
		return domain.ExtractionResponse{}, domain.NewBlockedError(string(choice.FinishReason))
	}

	text := choice.Message.Content
	if strings.TrimSpace(text) == "" {
		e.recordError("empty_response")
		return domain.ExtractionResponse{}, &domain.APIError{
			Retryable: true, Msg: "model returned empty text", Err: domain.ErrEmptyResponse,
		}
	}

	metrics.ExtractionRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.ExtractionRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())

	usage := usageFrom(resp.Usage)
	if usage.Total() > 0 {
		metrics.ExtractionTokensTotal.WithLabelValues(e.provider, e.model, "input").Add(float64(usage.InputTokens))
		metrics.ExtractionTokensTotal.WithLabelValues(e.provider, e.model, "output").Add(float64(usage.OutputTokens))
	}

	e.logger.Debug("Model call completed",
		zap.String("model", e.model),
		zap.Duration("duration", duration),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
	)

	return domain.ExtractionResponse{Text: text, Usage: usage}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Extractor) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (e *Extractor) buildRequest(req domain.ExtractionRequest) openai.ChatCompletionRequest {
	img := req.Image
	dataURL := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	return openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailHigh},
					},
					{Type: openai.ChatMessagePartTypeText, Text: req.UserPrompt},
				},
			},
		},
		Temperature: sampling(req.Temperature),
		TopP:        sampling(req.TopP),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// sampling converts a sampling parameter for the wire. The request struct drops zero
// values (omitempty), so an explicit 0 is sent as the smallest positive float32.
func sampling(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

func usageFrom(u openai.Usage) domain.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return domain.Usage{Note: domain.UsageNoteUnavailable}
	}
	return domain.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		Note:         domain.UsageNoteReported,
	}
}

func (e *Extractor) recordError(errorType string) {
	status := "error"
	if errorType == "blocked" {
		status = "blocked"
	}
	metrics.ExtractionRequestsTotal.WithLabelValues(e.provider, e.model, status).Inc()
	metrics.ExtractionErrorsTotal.WithLabelValues(e.provider, e.model, errorType).Inc()
}

// parseAPIError classifies a client error into a domain.APIError.
// 408, 429, 5xx and transport failures are transient; other 4xx are permanent;
// content-policy rejections are blocked. Errors raised before the request left the
// process (e.g. an unencodable body) are returned as plain errors and never retried.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isContentFilter(apiErr) {
			blocked := domain.NewBlockedError(apiErr.Message).(*domain.APIError)
			blocked.StatusCode = apiErr.HTTPStatusCode
			return blocked
		}
		return &domain.APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  retryableStatus(apiErr.HTTPStatusCode),
			Msg:        fmt.Sprintf("model API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = strings.TrimSpace(string(reqErr.Body))
		}
		return &domain.APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Retryable:  retryableStatus(reqErr.HTTPStatusCode),
			Msg:        fmt.Sprintf("model API error %d: %s", reqErr.HTTPStatusCode, detail),
			Err:        err,
		}
	}

	if isTransportError(err) {
		return &domain.APIError{Retryable: true, Msg: "model request failed", Err: err}
	}
	return fmt.Errorf("model request: %w", err)
}

func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func retryableStatus(status int) bool {
	switch {
	case status == 0, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func isContentFilter(apiErr *openai.APIError) bool {
	if code, ok := apiErr.Code.(string); ok {
		switch code {
		case "content_filter", "content_policy_violation":
			return true
		}
	}
	return apiErr.InnerError != nil && apiErr.InnerError.Code == "ResponsibleAIPolicyViolation"
}

// extractDetail pulls the message out of a non-OpenAI error body.
// Gemini wraps errors in a one-element array; other providers use {"detail": "..."}.
func extractDetail(body []byte) string {
	type geminiError struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	var list []geminiError
	if json.Unmarshal(body, &list) == nil && len(list) > 0 && list[0].Error.Message != "" {
		return list[0].Error.Message
	}

	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
