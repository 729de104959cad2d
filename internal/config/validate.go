package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSampler(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		return errors.New("paths.upload_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.ProcessingDir) == "" {
		return errors.New("paths.processing_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must not be empty")
	}
	return nil
}

func (c *Config) validateSampler() error {
	if c.Sampler.Stride < 1 {
		return fmt.Errorf("sampler.stride must be >= 1, got %d", c.Sampler.Stride)
	}
	if c.Sampler.MaxHeight < 1 {
		return fmt.Errorf("sampler.max_height must be >= 1, got %d", c.Sampler.MaxHeight)
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold >= 1 {
		return fmt.Errorf("classifier.threshold must be in (0,1), got %g", c.Classifier.Threshold)
	}
	if c.Classifier.DarkThreshold < 0 || c.Classifier.DarkThreshold > 255 {
		return fmt.Errorf("classifier.dark_threshold must be in [0,255], got %g", c.Classifier.DarkThreshold)
	}
	if c.Classifier.InputSize < 1 {
		return fmt.Errorf("classifier.input_size must be >= 1, got %d", c.Classifier.InputSize)
	}
	return nil
}

func (c *Config) validateOCR() error {
	if strings.TrimSpace(c.OCR.BaseURL) == "" {
		return errors.New("ocr.base_url must not be empty")
	}
	if strings.TrimSpace(c.OCR.Model) == "" {
		return errors.New("ocr.model must not be empty")
	}
	if c.OCR.BatchSize < 1 {
		return fmt.Errorf("ocr.batch_size must be >= 1, got %d", c.OCR.BatchSize)
	}
	if c.OCR.MaxAttempts < 1 {
		return fmt.Errorf("ocr.max_attempts must be >= 1, got %d", c.OCR.MaxAttempts)
	}
	if c.OCR.TimeoutSeconds < 1 {
		return fmt.Errorf("ocr.timeout_seconds must be >= 1, got %d", c.OCR.TimeoutSeconds)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("store.backend must be memory, sqlite, or postgres, got %q", c.Store.Backend)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollIntervalSeconds < 1 {
		return fmt.Errorf("workflow.poll_interval must be >= 1, got %d", c.Workflow.PollIntervalSeconds)
	}
	if c.Workflow.Workers < 1 {
		return fmt.Errorf("workflow.workers must be >= 1, got %d", c.Workflow.Workers)
	}
	return nil
}
