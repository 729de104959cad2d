package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and artifact location configuration.
type Paths struct {
	UploadDir     string `toml:"upload_dir"`
	ProcessingDir string `toml:"processing_dir"`
	LogDir        string `toml:"log_dir"`
	ModelPath     string `toml:"model_path"`
}

// Sampler contains frame extraction settings.
type Sampler struct {
	Stride    int  `toml:"stride"`
	Downscale bool `toml:"downscale"`
	MaxHeight int  `toml:"max_height"`
}

// Classifier contains quality classification settings.
type Classifier struct {
	Threshold      float64 `toml:"threshold"`
	DarkThreshold  float64 `toml:"dark_threshold"`
	InputSize      int     `toml:"input_size"`
	OrganizeFrames bool    `toml:"organize_frames"`
}

// OCR contains configuration for the vision/OCR engine.
type OCR struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url"`
	Model                string `toml:"model"`
	BatchSize            int    `toml:"batch_size"`
	PacingSeconds        int    `toml:"pacing_seconds"`
	MaxAttempts          int    `toml:"max_attempts"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	RateLimitStepSeconds int    `toml:"rate_limit_step_seconds"`
	RetryDelaySeconds    int    `toml:"retry_delay_seconds"`
}

// Store contains job store backend selection.
type Store struct {
	Backend     string `toml:"backend"` // memory, sqlite, postgres
	PostgresDSN string `toml:"postgres_dsn"`
}

// Blob contains configuration for the S3-compatible metrics sink.
// All fields empty means the sink is disabled.
type Blob struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Workflow contains daemon timing and concurrency settings.
type Workflow struct {
	PollIntervalSeconds int `toml:"poll_interval"`
	Workers             int `toml:"workers"`
}

// Telemetry contains the Prometheus listener configuration.
type Telemetry struct {
	MetricsBind string `toml:"metrics_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for framelens.
//
// Configuration sections by subsystem:
//   - Paths: upload/processing/log directories and the scorer artifact
//   - Sampler: frame sampling stride and 720p downscale toggle
//   - Classifier: acceptance threshold and preprocessing constants
//   - OCR: vision engine connection, batching, and retry schedule
//   - Store: job store backend (memory, sqlite, postgres)
//   - Blob: S3-compatible sink for metrics documents
//   - Workflow: daemon polling interval and worker count
//   - Telemetry: Prometheus metrics listener
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Sampler    Sampler    `toml:"sampler"`
	Classifier Classifier `toml:"classifier"`
	OCR        OCR        `toml:"ocr"`
	Store      Store      `toml:"store"`
	Blob       Blob       `toml:"blob"`
	Workflow   Workflow   `toml:"workflow"`
	Telemetry  Telemetry  `toml:"telemetry"`
	Logging    Logging    `toml:"logging"`
}

// envOverrides carries secret material that should not live in the config
// file. Values set in the environment win over the TOML contents.
type envOverrides struct {
	OCRAPIKey     string `env:"OPENROUTER_API_KEY"`
	PostgresDSN   string `env:"FRAMELENS_POSTGRES_DSN"`
	BlobEndpoint  string `env:"FRAMELENS_S3_ENDPOINT"`
	BlobAccessKey string `env:"FRAMELENS_S3_ACCESS_KEY"`
	BlobSecretKey string `env:"FRAMELENS_S3_SECRET_KEY"`
	BlobBucket    string `env:"FRAMELENS_S3_BUCKET"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/framelens/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has environment overrides applied and all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if v := strings.TrimSpace(overrides.OCRAPIKey); v != "" {
		c.OCR.APIKey = v
	}
	if v := strings.TrimSpace(overrides.PostgresDSN); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := strings.TrimSpace(overrides.BlobEndpoint); v != "" {
		c.Blob.Endpoint = v
	}
	if v := strings.TrimSpace(overrides.BlobAccessKey); v != "" {
		c.Blob.AccessKey = v
	}
	if v := strings.TrimSpace(overrides.BlobSecretKey); v != "" {
		c.Blob.SecretKey = v
	}
	if v := strings.TrimSpace(overrides.BlobBucket); v != "" {
		c.Blob.Bucket = v
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("framelens.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.UploadDir,
		&c.Paths.ProcessingDir,
		&c.Paths.LogDir,
		&c.Paths.ModelPath,
	} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.ProcessingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// BlobConfigured reports whether the S3 sink has the full credential set.
func (c *Config) BlobConfigured() bool {
	return strings.TrimSpace(c.Blob.Endpoint) != "" &&
		strings.TrimSpace(c.Blob.AccessKey) != "" &&
		strings.TrimSpace(c.Blob.SecretKey) != "" &&
		strings.TrimSpace(c.Blob.Bucket) != ""
}

// FFmpegBinary returns the ffmpeg executable name used for sampling.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
