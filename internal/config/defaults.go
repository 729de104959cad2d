package config

const (
	defaultUploadDir     = "~/.local/share/framelens/uploads"
	defaultProcessingDir = "~/.local/share/framelens/processing"
	defaultLogDir        = "~/.local/share/framelens/logs"
	defaultModelPath     = "~/.local/share/framelens/models/frame_scorer.json"

	defaultSamplerStride    = 3
	defaultSamplerMaxHeight = 720

	defaultClassifierThreshold     = 0.65
	defaultClassifierDarkThreshold = 80
	defaultClassifierInputSize     = 224

	defaultOCRBaseURL       = "https://openrouter.ai/api/v1"
	defaultOCRModel         = "google/gemini-3-flash-preview"
	defaultOCRBatchSize     = 50
	defaultOCRPacing        = 2
	defaultOCRMaxAttempts   = 5
	defaultOCRTimeout       = 60
	defaultOCRRateLimitStep = 10
	defaultOCRRetryDelay    = 5

	defaultStoreBackend = "sqlite"

	defaultWorkflowPollInterval = 5
	defaultWorkflowWorkers      = 2

	defaultLogFormat = "auto"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:     defaultUploadDir,
			ProcessingDir: defaultProcessingDir,
			LogDir:        defaultLogDir,
			ModelPath:     defaultModelPath,
		},
		Sampler: Sampler{
			Stride:    defaultSamplerStride,
			Downscale: true,
			MaxHeight: defaultSamplerMaxHeight,
		},
		Classifier: Classifier{
			Threshold:      defaultClassifierThreshold,
			DarkThreshold:  defaultClassifierDarkThreshold,
			InputSize:      defaultClassifierInputSize,
			OrganizeFrames: true,
		},
		OCR: OCR{
			BaseURL:              defaultOCRBaseURL,
			Model:                defaultOCRModel,
			BatchSize:            defaultOCRBatchSize,
			PacingSeconds:        defaultOCRPacing,
			MaxAttempts:          defaultOCRMaxAttempts,
			TimeoutSeconds:       defaultOCRTimeout,
			RateLimitStepSeconds: defaultOCRRateLimitStep,
			RetryDelaySeconds:    defaultOCRRetryDelay,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Workflow: Workflow{
			PollIntervalSeconds: defaultWorkflowPollInterval,
			Workers:             defaultWorkflowWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
