// Package chi exposes the extraction pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
	logpkg "github.com/kailas-cloud/docextract/internal/logger"
	healthuc "github.com/kailas-cloud/docextract/internal/usecase/health"
	usageuc "github.com/kailas-cloud/docextract/internal/usecase/usage"
)

// multipart parts above this size spill to disk
const multipartMemory = 8 << 20

// Runner runs the extraction pipeline on one input path.
type Runner interface {
	Run(ctx context.Context, path string) (*domain.Document, error)
}

// ExtractRequest is the JSON body of POST /v1/extract.
type ExtractRequest struct {
	Path string `json:"path"`
}

// Server is the HTTP API.
type Server struct {
	pipeline  Runner
	usage     *usageuc.Service
	health    *healthuc.Service
	maxUpload int64
	logger    *zap.Logger
}

// NewServer creates an HTTP API server. maxUpload bounds multipart image uploads.
func NewServer(pipeline Runner, usage *usageuc.Service, health *healthuc.Service, maxUpload int64, logger *zap.Logger) *Server {
	return &Server{
		pipeline:  pipeline,
		usage:     usage,
		health:    health,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/extract", s.Extract)
	r.Get("/v1/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// Extract handles POST /v1/extract. The image comes either as a multipart "image"
// part or as a JSON {"path": "s3://bucket/key"} reference.
func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		path    string
		cleanup = func() {}
		err     error
	)
	switch mediaType {
	case "multipart/form-data":
		path, cleanup, err = s.saveUpload(w, r)
	case "application/json":
		path, err = remotePath(r.Body)
	default:
		err = fmt.Errorf("unsupported content type %q: send multipart/form-data or application/json", mediaType)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	defer cleanup()

	doc, err := s.pipeline.Run(r.Context(), path)
	if err != nil {
		s.handlePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// saveUpload stores the "image" part in a temp file that keeps the upload's extension.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, func(), error) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("upload exceeds %d bytes", s.maxUpload)
		}
		return "", nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		return "", nil, errors.New(`multipart field "image" is required`)
	}
	defer file.Close()

	if s.maxUpload > 0 && header.Size > s.maxUpload {
		return "", nil, fmt.Errorf("upload is %d bytes, limit is %d", header.Size, s.maxUpload)
	}

	tmp, err := os.CreateTemp("", "docextract-upload-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return "", nil, fmt.Errorf("store upload: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("store upload: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// remotePath decodes an ExtractRequest. Only object storage references are accepted:
// the server never reads arbitrary local paths on a client's behalf.
func remotePath(body io.Reader) (string, error) {
	var req ExtractRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}
	if !strings.HasPrefix(req.Path, "s3://") {
		return "", errors.New(`path must be an s3://bucket/key reference`)
	}
	return req.Path, nil
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handlePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range pipelineErrorHandlers {
		if h(w, err) {
			log.Warn("extraction failed", zap.String("error_kind", domain.KindOf(err)), zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
