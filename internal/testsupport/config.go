package testsupport

import (
	"path/filepath"
	"testing"

	"framelens/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ProcessingDir = filepath.Join(base, "processing")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ModelPath = filepath.Join(base, "model.json")
	cfgVal.Store.Backend = "memory"
	cfgVal.OCR.APIKey = "test"
	cfgVal.Telemetry.MetricsBind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStoreBackend selects the job store backend for the test config.
func WithStoreBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithOCRKey sets the vision engine credential on the test config.
func WithOCRKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OCR.APIKey = key
	}
}

// WithWorkers overrides the daemon worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = workers
	}
}
