package classifier

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"framelens/internal/fileutil"
	"framelens/internal/logging"
	"framelens/internal/sampler"
	"framelens/internal/telemetry"
)

// Label is a classification outcome.
type Label string

const (
	LabelAccepted      Label = "accepted"
	LabelRejected      Label = "rejected"
	LabelIndeterminate Label = "indeterminate"
)

// progressInterval is the cadence of progress log lines while classifying.
const progressInterval = 50

// Options configures a Classifier.
type Options struct {
	Threshold      float64
	DarkThreshold  float64
	InputSize      int
	OrganizeFrames bool
}

// Classifier partitions frames by visual quality.
type Classifier struct {
	scorer Scorer
	opts   Options
	logger *slog.Logger
}

// Outcome is one frame's classification.
type Outcome struct {
	Frame      sampler.Frame `json:"frame"`
	Label      Label         `json:"label"`
	Confidence float64       `json:"confidence"`
}

// Result is the stage output: the partitioned frame sets plus the summary
// persisted as classification_summary.json.
type Result struct {
	Outcomes      []Outcome
	Accepted      []sampler.Frame
	Rejected      []sampler.Frame
	Indeterminate []sampler.Frame
}

// Summary is the persisted stage record.
type Summary struct {
	Total          int       `json:"total"`
	Accepted       int       `json:"accepted"`
	Rejected       int       `json:"rejected"`
	Indeterminate  int       `json:"indeterminate"`
	Threshold      float64   `json:"threshold"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// SummaryFileName is the classification summary artifact name.
const SummaryFileName = "classification_summary.json"

// New builds a Classifier around a scorer. Zero option fields fall back to
// the standard defaults.
func New(scorer Scorer, opts Options, logger *slog.Logger) *Classifier {
	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		opts.Threshold = 0.65
	}
	if opts.DarkThreshold <= 0 {
		opts.DarkThreshold = 80
	}
	if opts.InputSize < 1 {
		opts.InputSize = 224
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Classifier{scorer: scorer, opts: opts, logger: logger}
}

// ClassifyFrames scores every frame and partitions the set. Per-frame
// decode or scoring failures yield indeterminate outcomes and never abort
// the batch. The summary artifact is written into jobDir.
func (c *Classifier) ClassifyFrames(ctx context.Context, frames []sampler.Frame, jobDir string) (*Result, error) {
	start := time.Now()
	result := &Result{Outcomes: make([]Outcome, 0, len(frames))}

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := c.classifyOne(ctx, frame)
		result.Outcomes = append(result.Outcomes, outcome)

		switch outcome.Label {
		case LabelAccepted:
			result.Accepted = append(result.Accepted, frame)
		case LabelRejected:
			result.Rejected = append(result.Rejected, frame)
		default:
			result.Indeterminate = append(result.Indeterminate, frame)
		}
		telemetry.FramesClassifiedTotal.WithLabelValues(string(outcome.Label)).Inc()

		if (i+1)%progressInterval == 0 {
			c.logger.Info("classification progress",
				logging.Int("processed", i+1),
				logging.Int("total", len(frames)),
				logging.Int("accepted", len(result.Accepted)))
		}
	}

	if c.opts.OrganizeFrames {
		c.organize(result, jobDir)
	}

	summary := Summary{
		Total:          len(frames),
		Accepted:       len(result.Accepted),
		Rejected:       len(result.Rejected),
		Indeterminate:  len(result.Indeterminate),
		Threshold:      c.opts.Threshold,
		ElapsedSeconds: time.Since(start).Seconds(),
		Timestamp:      start.UTC(),
	}
	if err := fileutil.WriteJSON(filepath.Join(jobDir, SummaryFileName), summary); err != nil {
		return nil, err
	}

	c.logger.Info("classification complete",
		logging.Int("total", summary.Total),
		logging.Int("accepted", summary.Accepted),
		logging.Int("rejected", summary.Rejected),
		logging.Int("indeterminate", summary.Indeterminate),
		logging.Float64("seconds", summary.ElapsedSeconds))
	return result, nil
}

func (c *Classifier) classifyOne(ctx context.Context, frame sampler.Frame) Outcome {
	img, err := DecodeFrame(frame.Path)
	if err != nil {
		c.logger.Warn("frame decode failed",
			logging.String("frame", filepath.Base(frame.Path)), logging.Error(err))
		return Outcome{Frame: frame, Label: LabelIndeterminate}
	}

	preprocessed, _ := Preprocess(img, c.opts.InputSize, c.opts.DarkThreshold)
	confidence, err := c.scorer.Score(ctx, preprocessed)
	if err != nil {
		c.logger.Warn("frame scoring failed",
			logging.String("frame", filepath.Base(frame.Path)), logging.Error(err))
		return Outcome{Frame: frame, Label: LabelIndeterminate}
	}

	label := LabelRejected
	if confidence > c.opts.Threshold {
		label = LabelAccepted
	}
	return Outcome{Frame: frame, Label: label, Confidence: confidence}
}

// organize copies accepted and rejected frames into good/ and bad/
// groupings for inspection. Per-file failures are logged and skipped.
func (c *Classifier) organize(result *Result, jobDir string) {
	groups := []struct {
		dir    string
		frames []sampler.Frame
	}{
		{filepath.Join(jobDir, "good"), result.Accepted},
		{filepath.Join(jobDir, "bad"), result.Rejected},
	}
	for _, group := range groups {
		if err := os.MkdirAll(group.dir, 0o755); err != nil {
			c.logger.Warn("create grouping directory failed",
				logging.String("dir", group.dir), logging.Error(err))
			continue
		}
		for _, frame := range group.frames {
			target := filepath.Join(group.dir, filepath.Base(frame.Path))
			if err := fileutil.CopyFile(frame.Path, target); err != nil {
				c.logger.Warn("frame copy failed",
					logging.String("frame", filepath.Base(frame.Path)), logging.Error(err))
			}
		}
	}
}
