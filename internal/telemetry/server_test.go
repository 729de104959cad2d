package telemetry

import (
	"context"
	"testing"

	"framelens/internal/logging"
)

func TestServerDisabledWithoutBind(t *testing.T) {
	s := NewServer("", logging.NewNop())
	s.Start()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on disabled server: %v", err)
	}
}

func TestMetricsRegistered(t *testing.T) {
	// promauto panics on duplicate registration; touching the collectors
	// here catches accidental metric name collisions at test time.
	JobsProcessedTotal.WithLabelValues("completed").Add(0)
	StageDuration.WithLabelValues("sample").Observe(0)
	FramesClassifiedTotal.WithLabelValues("accepted").Add(0)
	OCRBatchesTotal.WithLabelValues("ok").Add(0)
	OCRRetriesTotal.Add(0)
	FramesSampledTotal.Add(0)
	ActiveWorkers.Set(0)
}
