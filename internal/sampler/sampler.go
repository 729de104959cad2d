package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"framelens/internal/fileutil"
	"framelens/internal/logging"
	"framelens/internal/media/ffprobe"
	"framelens/internal/services"
	"framelens/internal/telemetry"
)

// Options configures a Sampler.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	Stride        int
	Downscale     bool
	MaxHeight     int
}

// Sampler extracts frames from campaign media.
type Sampler struct {
	opts   Options
	logger *slog.Logger
}

// VideoManifest is the per-video extraction record persisted as
// extraction_metadata.json alongside the frames.
type VideoManifest struct {
	Video             string    `json:"video"`
	TotalFrames       int       `json:"total_frames"`
	ExtractedFrames   int       `json:"extracted_frames"`
	Stride            int       `json:"stride"`
	SourceFPS         float64   `json:"source_fps"`
	SourceHeight      int       `json:"source_height"`
	Downscaled        bool      `json:"downscaled"`
	DownscaleSkipped  string    `json:"downscale_skipped,omitempty"`
	ExtractionSeconds float64   `json:"extraction_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// ManifestFileName is the per-video extraction manifest name.
const ManifestFileName = "extraction_metadata.json"

// New builds a Sampler. Zero option fields fall back to working defaults.
func New(opts Options, logger *slog.Logger) *Sampler {
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if opts.FFprobeBinary == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	if opts.Stride < 1 {
		opts.Stride = 3
	}
	if opts.MaxHeight < 1 {
		opts.MaxHeight = 720
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sampler{opts: opts, logger: logger}
}

// SampleVideo extracts every Nth frame of the video into outputDir and
// writes the extraction manifest. Existing frame files in outputDir are
// cleared first, so re-running is idempotent.
func (s *Sampler) SampleVideo(ctx context.Context, videoPath, outputDir, videoID string) (*VideoManifest, []Frame, error) {
	start := time.Now()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "sampler", "prepare", "create output directory", err)
	}
	if err := ClearFrames(outputDir); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "sampler", "prepare", "clear stale frames", err)
	}

	manifest := &VideoManifest{
		Video:     videoID,
		Stride:    s.opts.Stride,
		Timestamp: start.UTC(),
	}

	source := videoPath
	probe, probeErr := ffprobe.Inspect(ctx, s.opts.FFprobeBinary, videoPath)
	if probeErr != nil {
		s.logger.Warn("video probe failed, sampling without stream metadata",
			logging.String("video", videoID), logging.Error(probeErr))
	} else if stream := probe.VideoStream(); stream != nil {
		manifest.SourceFPS = stream.FrameRate()
		manifest.SourceHeight = stream.Height
		manifest.TotalFrames = stream.TotalFrames()
	}

	if s.opts.Downscale && manifest.SourceHeight > s.opts.MaxHeight {
		downscaled, err := s.downscale(ctx, videoPath, outputDir)
		if err != nil {
			manifest.DownscaleSkipped = err.Error()
			s.logger.Warn("downscale failed, sampling original",
				logging.String("video", videoID), logging.Error(err))
		} else {
			source = downscaled
			manifest.Downscaled = true
			defer func() { _ = os.Remove(downscaled) }()
		}
	} else if s.opts.Downscale && probeErr != nil {
		manifest.DownscaleSkipped = "source height unknown"
	}

	if err := s.extract(ctx, source, outputDir); err != nil {
		return nil, nil, err
	}

	frames, err := renumberExtracted(outputDir, s.opts.Stride, videoID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "sampler", "extract", "renumber frames", err)
	}

	manifest.ExtractedFrames = len(frames)
	manifest.ExtractionSeconds = time.Since(start).Seconds()
	if err := fileutil.WriteJSON(filepath.Join(outputDir, ManifestFileName), manifest); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "sampler", "extract", "write extraction manifest", err)
	}

	telemetry.FramesSampledTotal.Add(float64(len(frames)))
	s.logger.Info("video sampled",
		logging.String("video", videoID),
		logging.Int("frames", len(frames)),
		logging.Float64("seconds", manifest.ExtractionSeconds))
	return manifest, frames, nil
}

// SampleImage treats a single uploaded still as a one-frame sequence.
func (s *Sampler) SampleImage(imagePath, outputDir, videoID string) ([]Frame, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "sampler", "image", "create output directory", err)
	}
	if err := ClearFrames(outputDir); err != nil {
		return nil, services.Wrap(services.ErrTransient, "sampler", "image", "clear stale frames", err)
	}

	target := filepath.Join(outputDir, FrameFileName(0))
	if err := fileutil.CopyFile(imagePath, target); err != nil {
		return nil, services.Wrap(services.ErrValidation, "sampler", "image", "stage uploaded image", err)
	}
	telemetry.FramesSampledTotal.Add(1)
	return []Frame{{Index: 0, Path: target, Video: videoID}}, nil
}

// downscale re-encodes the video to the configured maximum height,
// preserving aspect ratio, and returns the temp file path.
func (s *Sampler) downscale(ctx context.Context, videoPath, workDir string) (string, error) {
	out := filepath.Join(workDir, "downscaled"+filepath.Ext(videoPath))
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("scale=-2:%d", s.opts.MaxHeight),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "copy",
		out,
	}
	cmd := exec.CommandContext(ctx, s.opts.FFmpegBinary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("ffmpeg downscale: %w: %s", err, tail(string(output)))
	}
	return out, nil
}

// extract writes every Nth frame as a sequential JPEG series which
// renumberExtracted then renames by source index.
func (s *Sampler) extract(ctx context.Context, videoPath, outputDir string) error {
	pattern := filepath.Join(outputDir, extractPrefix+"%06d.jpg")
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='not(mod(n\\,%d))'", s.opts.Stride),
		"-vsync", "vfr",
		"-q:v", "2",
		pattern,
	}
	cmd := exec.CommandContext(ctx, s.opts.FFmpegBinary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "sampler", "extract",
			fmt.Sprintf("ffmpeg frame extraction: %s", tail(string(output))), err)
	}
	return nil
}

// tail keeps the last few lines of tool output for error messages.
func tail(output string) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
