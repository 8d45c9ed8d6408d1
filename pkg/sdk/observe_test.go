package docextract

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/docextract/internal/domain"
)

func TestObserve_LabelsByErrorKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs, err := newObserver(logger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("extract", time.Now(), nil)
	obs.observe("extract", time.Now(), &domain.APIError{StatusCode: 503, Retryable: true, Msg: "overloaded"})
	obs.observe("extract", time.Now(), domain.NewBlockedError("SAFETY"))
	obs.observe("extract", time.Now(), &domain.JSONParseError{Msg: "bad output"})
	obs.observe("extract", time.Now(), errors.New("boom"))

	tests := []struct {
		status string
		want   float64
	}{
		{"ok", 1},
		{KindAPI, 2},
		{KindJSONParse, 1},
		{"Error", 1},
		{"error", 0},
	}
	for _, tc := range tests {
		if v := testutil.ToFloat64(obs.metrics.operations.WithLabelValues("extract", tc.status)); v != tc.want {
			t.Errorf("status %q = %f, want %f", tc.status, v, tc.want)
		}
	}

	var failures []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if rec["level"] == "WARN" {
			failures = append(failures, rec)
		}
	}
	if len(failures) != 4 {
		t.Fatalf("expected 4 failure records, got %d", len(failures))
	}

	transient := failures[0]
	if transient["error_kind"] != KindAPI || transient["retryable"] != true || transient["blocked"] != false {
		t.Errorf("transient record = %v", transient)
	}
	if transient["status_code"] != float64(503) {
		t.Errorf("status_code = %v", transient["status_code"])
	}

	blocked := failures[1]
	if blocked["blocked"] != true || blocked["retryable"] != false {
		t.Errorf("blocked record = %v", blocked)
	}

	plain := failures[3]
	if plain["error_kind"] != "Error" {
		t.Errorf("plain record = %v", plain)
	}
	if _, ok := plain["retryable"]; ok {
		t.Error("non-API failures must not carry retryable")
	}
}

func TestObserve_NilObserver(_ *testing.T) {
	var obs *observer
	obs.observe("extract", time.Now(), errors.New("ignored"))
}
