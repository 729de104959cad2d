package logging_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"framelens/internal/logging"
	"framelens/internal/services"
)

func TestWithContextAddsFields(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := services.WithJobID(context.Background(), "acme_summer_20260101")
	ctx = services.WithStage(ctx, "classifier")
	ctx = services.WithRequestID(ctx, "req-1")

	logging.WithContext(ctx, logger).Info("hello")

	out := buf.String()
	for _, want := range []string{
		"job_id=acme_summer_20260101",
		"stage=classifier",
		"correlation_id=req-1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestWithContextNilLogger(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	// Must not panic.
	logger.Info("noop")
}

func TestNewComponentLogger(t *testing.T) {
	var buf strings.Builder
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logging.NewComponentLogger(base, "sampler").Info("working")
	if !strings.Contains(buf.String(), "component=sampler") {
		t.Fatalf("missing component attr: %s", buf.String())
	}
}
