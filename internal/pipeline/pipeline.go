// Package pipeline runs one job through the sampling, classification, and
// extraction stages and records the terminal outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"framelens/internal/classifier"
	"framelens/internal/config"
	"framelens/internal/extractor"
	"framelens/internal/jobstore"
	"framelens/internal/logging"
	"framelens/internal/sampler"
	"framelens/internal/services"
	"framelens/internal/telemetry"
	"framelens/internal/vision"
)

// ArtifactSink stores finished metric artifacts durably. Nil disables
// uploads; artifacts stay in the processing directory.
type ArtifactSink interface {
	PutJSON(ctx context.Context, jobID string, v any) error
	Key(jobID string) string
}

// Outcome is the immutable result of one pipeline run.
type Outcome struct {
	JobID         string
	TotalFrames   int
	Accepted      int
	Rejected      int
	Indeterminate int
	Elapsed       time.Duration
	Summary       map[string]extractor.MetricSummary
	FailureReason string
	// Interrupted marks a run cut short by shutdown, not a job failure.
	Interrupted bool
}

// Failed reports whether the run ended in failure.
func (o *Outcome) Failed() bool { return o.FailureReason != "" }

// Pipeline executes jobs. Stage functions are fields so tests can
// substitute fakes without external tools or network.
type Pipeline struct {
	cfg    *config.Config
	store  jobstore.Store
	sink   ArtifactSink
	logger *slog.Logger

	sampleVideo   func(ctx context.Context, src, dir, videoID string) ([]sampler.Frame, error)
	sampleImage   func(src, dir, videoID string) ([]sampler.Frame, error)
	sampleArchive func(ctx context.Context, src, dir, campaign string) ([]sampler.Frame, error)
	classify      func(ctx context.Context, frames []sampler.Frame, dir string) (*classifier.Result, error)
	extract       func(ctx context.Context, jobID string, frames []sampler.Frame, dir string) (*extractor.CampaignMetrics, error)
	removeSource  func(path string) error
}

// New wires a Pipeline from configuration. The vision client is built
// lazily per job so a missing credential fails jobs, not daemon startup.
func New(cfg *config.Config, store jobstore.Store, sink ArtifactSink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}

	samp := sampler.New(sampler.Options{
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		Stride:        cfg.Sampler.Stride,
		Downscale:     cfg.Sampler.Downscale,
		MaxHeight:     cfg.Sampler.MaxHeight,
	}, logger)

	cls := classifier.New(
		classifier.NewWeightsScorer(cfg.Paths.ModelPath),
		classifier.Options{
			Threshold:      cfg.Classifier.Threshold,
			DarkThreshold:  cfg.Classifier.DarkThreshold,
			InputSize:      cfg.Classifier.InputSize,
			OrganizeFrames: cfg.Classifier.OrganizeFrames,
		}, logger)

	p := &Pipeline{
		cfg:    cfg,
		store:  store,
		sink:   sink,
		logger: logger,
		sampleVideo: func(ctx context.Context, src, dir, videoID string) ([]sampler.Frame, error) {
			_, frames, err := samp.SampleVideo(ctx, src, dir, videoID)
			return frames, err
		},
		sampleImage: samp.SampleImage,
		sampleArchive: func(ctx context.Context, src, dir, campaign string) ([]sampler.Frame, error) {
			_, frames, err := samp.SampleArchive(ctx, src, dir, campaign)
			return frames, err
		},
		classify:     cls.ClassifyFrames,
		removeSource: os.Remove,
	}
	p.extract = func(ctx context.Context, jobID string, frames []sampler.Frame, dir string) (*extractor.CampaignMetrics, error) {
		stageLogger := logging.WithContext(ctx, logger)
		client, err := vision.New(vision.Options{
			APIKey:        cfg.OCR.APIKey,
			BaseURL:       cfg.OCR.BaseURL,
			Model:         cfg.OCR.Model,
			MaxAttempts:   cfg.OCR.MaxAttempts,
			Timeout:       time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
			RateLimitStep: time.Duration(cfg.OCR.RateLimitStepSeconds) * time.Second,
			RetryDelay:    time.Duration(cfg.OCR.RetryDelaySeconds) * time.Second,
		}, vision.WithLogger(stageLogger))
		if err != nil {
			return nil, err
		}
		var extractorSink extractor.Sink
		if sink != nil {
			extractorSink = sink
		}
		ext := extractor.New(client, extractorSink, extractor.Options{
			BatchSize:   cfg.OCR.BatchSize,
			PacingDelay: time.Duration(cfg.OCR.PacingSeconds) * time.Second,
			Logger:      stageLogger,
		})
		return ext.ExtractMetrics(ctx, jobID, frames, dir)
	}
	return p
}

// Run drives the job to a terminal state. The uploaded source asset is
// released once the job finishes, success or failure. A run cut short by
// daemon shutdown is not a terminal state: the job stays in processing with
// its source asset intact so the startup reset returns it to pending.
func (p *Pipeline) Run(ctx context.Context, job *jobstore.Job) *Outcome {
	start := time.Now()
	outcome := &Outcome{JobID: job.ID}
	jobDir := filepath.Join(p.cfg.Paths.ProcessingDir, job.ID)
	logger := p.logger.With(logging.String("job_id", job.ID))

	err := p.run(ctx, job, jobDir, outcome, logger)
	outcome.Elapsed = time.Since(start)
	persistCtx := context.WithoutCancel(ctx)

	if err != nil && errors.Is(err, context.Canceled) {
		outcome.Interrupted = true
		job.SetProgress("Interrupted", jobstore.DaemonStopReason)
		telemetry.JobsProcessedTotal.WithLabelValues("interrupted").Inc()
		logger.Info("job interrupted, will resume after restart")
		if err := p.store.Update(persistCtx, job); err != nil {
			logger.Error("failed to persist interrupted job state", logging.Error(err))
		}
		return outcome
	}

	if err != nil {
		outcome.FailureReason = err.Error()
		job.SetFailed(err.Error())
		telemetry.JobsProcessedTotal.WithLabelValues("failed").Inc()
		logger.Error("job failed", logging.Error(err))
	} else {
		job.SetCompleted()
		telemetry.JobsProcessedTotal.WithLabelValues("completed").Inc()
		logger.Info("job completed",
			logging.Int("frames", outcome.TotalFrames),
			logging.Int("accepted", outcome.Accepted))
	}

	p.releaseSource(job, logger)
	if err := p.store.Update(persistCtx, job); err != nil {
		logger.Error("failed to persist terminal job state", logging.Error(err))
	}
	return outcome
}

func (p *Pipeline) releaseSource(job *jobstore.Job, logger *slog.Logger) {
	if job.SourcePath == "" {
		return
	}
	if err := p.removeSource(job.SourcePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to release source asset",
			logging.String("path", job.SourcePath),
			logging.Error(err))
	}
}

func (p *Pipeline) run(ctx context.Context, job *jobstore.Job, jobDir string, outcome *Outcome, logger *slog.Logger) error {
	frames, err := p.runSampling(ctx, job, jobDir)
	if err != nil {
		return err
	}
	outcome.TotalFrames = len(frames)
	job.FramesSampled = len(frames)

	p.setProgress(ctx, job, "Classifying frames", fmt.Sprintf("%d frames sampled", len(frames)))
	classifyStart := time.Now()
	result, err := p.classify(services.WithStage(ctx, "classify"), frames, jobDir)
	if err != nil {
		return fmt.Errorf("classification stage: %w", err)
	}
	telemetry.StageDuration.WithLabelValues("classify").Observe(time.Since(classifyStart).Seconds())

	outcome.Accepted = len(result.Accepted)
	outcome.Rejected = len(result.Rejected)
	outcome.Indeterminate = len(result.Indeterminate)
	job.FramesAccepted = outcome.Accepted
	job.FramesRejected = outcome.Rejected
	job.FramesIndeterminate = outcome.Indeterminate

	if len(result.Accepted) == 0 {
		logger.Info("no accepted frames, skipping extraction")
		return nil
	}

	p.setProgress(ctx, job, "Extracting metrics", fmt.Sprintf("%d accepted frames", len(result.Accepted)))
	extractStart := time.Now()
	metrics, err := p.extract(services.WithStage(ctx, "extract"), job.ID, result.Accepted, jobDir)
	if err != nil {
		return fmt.Errorf("extraction stage: %w", err)
	}
	telemetry.StageDuration.WithLabelValues("extract").Observe(time.Since(extractStart).Seconds())

	outcome.Summary = metrics.Summary
	payload, err := json.Marshal(metrics.Summary)
	if err != nil {
		return fmt.Errorf("encode metrics summary: %w", err)
	}
	job.MetricsJSON = string(payload)
	if p.sink != nil {
		job.BlobKey = p.sink.Key(job.ID)
	}
	return nil
}

func (p *Pipeline) runSampling(ctx context.Context, job *jobstore.Job, jobDir string) ([]sampler.Frame, error) {
	p.setProgress(ctx, job, "Sampling frames", "")
	ctx = services.WithStage(ctx, "sample")
	start := time.Now()
	var (
		frames []sampler.Frame
		err    error
	)
	switch job.SourceKind {
	case jobstore.SourceVideo:
		frames, err = p.sampleVideo(ctx, job.SourcePath, jobDir, job.ID)
	case jobstore.SourceImage:
		frames, err = p.sampleImage(job.SourcePath, jobDir, job.ID)
	case jobstore.SourceArchive:
		frames, err = p.sampleArchive(ctx, job.SourcePath, jobDir, job.Campaign)
	default:
		return nil, fmt.Errorf("unknown source kind %q", job.SourceKind)
	}
	if err != nil {
		return nil, fmt.Errorf("sampling stage: %w", err)
	}
	telemetry.StageDuration.WithLabelValues("sample").Observe(time.Since(start).Seconds())
	return frames, nil
}

// setProgress records stage transitions; persistence failures are logged,
// never fatal mid-run.
func (p *Pipeline) setProgress(ctx context.Context, job *jobstore.Job, stage, message string) {
	job.SetProgress(stage, message)
	if err := p.store.Update(ctx, job); err != nil {
		p.logger.Warn("failed to persist progress",
			logging.String("job_id", job.ID),
			logging.String("stage", stage),
			logging.Error(err))
	}
}
