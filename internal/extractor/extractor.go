// Package extractor turns accepted frames into aggregated campaign metrics
// by batching them through a vision engine and reconciling the replies.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"framelens/internal/fileutil"
	"framelens/internal/logging"
	"framelens/internal/sampler"
	"framelens/internal/services"
	"framelens/internal/telemetry"
	"framelens/internal/vision"
)

// MetricsFileName is the extraction artifact written into the job directory.
const MetricsFileName = "campaign_metrics.json"

// Analyzer is the vision engine surface the extractor depends on.
// *vision.Client satisfies it.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, prompt string, frames [][]byte) (string, error)
}

// Sink receives the finished artifact for durable storage. Nil sink means
// local persistence only.
type Sink interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// Options tunes batching and pacing.
type Options struct {
	BatchSize   int
	PacingDelay time.Duration
	Logger      *slog.Logger
}

// Extractor runs the metric extraction stage.
type Extractor struct {
	analyzer Analyzer
	sink     Sink
	opts     Options
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an Extractor. The analyzer must already hold a valid
// credential; sink may be nil.
func New(analyzer Analyzer, sink Sink, opts Options) *Extractor {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.PacingDelay < 0 {
		opts.PacingDelay = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		analyzer: analyzer,
		sink:     sink,
		opts:     opts,
		logger:   logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// ExtractMetrics processes the accepted frames in order-preserving batches
// and returns the campaign artifact. An exhausted batch is skipped, not
// fatal; the artifact records how many batches answered. Configuration and
// validation errors from the engine abort the whole job. The artifact is
// written to outputDir and, when a sink is configured, uploaded keyed by
// job ID.
func (e *Extractor) ExtractMetrics(ctx context.Context, jobID string, frames []sampler.Frame, outputDir string) (*CampaignMetrics, error) {
	result := &CampaignMetrics{
		ExtractionDate: time.Now().UTC().Format(time.RFC3339),
		TotalFrames:    len(frames),
		Summary:        map[string]MetricSummary{},
	}

	for start := 0; start < len(frames); start += e.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.opts.BatchSize
		if end > len(frames) {
			end = len(frames)
		}
		batch := frames[start:end]
		result.BatchesAttempted++

		if start > 0 && e.opts.PacingDelay > 0 {
			if err := e.sleep(ctx, e.opts.PacingDelay); err != nil {
				return nil, err
			}
		}

		e.logger.Info("processing OCR batch",
			logging.String("job_id", jobID),
			logging.Int("batch_start", start),
			logging.Int("batch_size", len(batch)))

		results, err := e.processBatch(ctx, batch)
		if err != nil {
			if services.IsFatal(err) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			telemetry.OCRBatchesTotal.WithLabelValues("skipped").Inc()
			e.logger.Warn("batch skipped",
				logging.String("job_id", jobID),
				logging.Int("batch_start", start),
				logging.Error(err))
			continue
		}
		telemetry.OCRBatchesTotal.WithLabelValues("ok").Inc()
		result.BatchesAnswered++

		for _, r := range results {
			if !r.Malformed {
				r.order = start + r.FrameIndex
			}
			result.AllFrames = append(result.AllFrames, r)
			if !r.Malformed && !r.IsDuplicate {
				result.UniqueMetrics = append(result.UniqueMetrics, r)
			}
		}
	}

	result.UniqueFrames = len(result.UniqueMetrics)
	result.DuplicateFrames = len(result.AllFrames) - len(result.UniqueMetrics)
	result.Summary = aggregate(result.UniqueMetrics)

	if err := e.persist(ctx, jobID, outputDir, result); err != nil {
		return nil, err
	}

	e.logger.Info("extraction complete",
		logging.String("job_id", jobID),
		logging.Int("unique_frames", result.UniqueFrames),
		logging.Int("batches_answered", result.BatchesAnswered))
	return result, nil
}

// processBatch encodes and sends one batch, then decodes the reply. Frames
// that cannot be read are dropped before sending so batch-local indices in
// the reply still line up with what the model saw.
func (e *Extractor) processBatch(ctx context.Context, batch []sampler.Frame) ([]FrameResult, error) {
	images := make([][]byte, 0, len(batch))
	sent := make([]sampler.Frame, 0, len(batch))
	for _, frame := range batch {
		data, err := os.ReadFile(frame.Path)
		if err != nil {
			e.logger.Warn("skipping unreadable frame",
				logging.String("path", frame.Path),
				logging.Error(err))
			continue
		}
		images = append(images, data)
		sent = append(sent, frame)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no readable frames in batch")
	}

	reply, err := e.analyzer.AnalyzeBatch(ctx, instructionPrompt, images)
	if err != nil {
		return nil, err
	}
	results, err := decodeBatchReply(vision.StripFence(reply), len(sent))
	if err != nil {
		return nil, err
	}
	for i := range results {
		if !results[i].Malformed {
			results[i].SourceFrame = filepath.Base(sent[results[i].FrameIndex].Path)
		}
	}
	return results, nil
}

func (e *Extractor) persist(ctx context.Context, jobID, outputDir string, result *CampaignMetrics) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(outputDir, MetricsFileName)
	if err := fileutil.WriteJSON(path, result); err != nil {
		return fmt.Errorf("write metrics artifact: %w", err)
	}
	if e.sink != nil {
		if err := e.sink.PutJSON(ctx, jobID, result); err != nil {
			e.logger.Warn("metrics upload failed",
				logging.String("job_id", jobID),
				logging.Error(err))
		}
	}
	return nil
}
