package sampler

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"framelens/internal/fileutil"
	"framelens/internal/logging"
	"framelens/internal/services"
)

// videoExtensions lists the container formats accepted inside archives.
var videoExtensions = map[string]struct{}{
	".mp4": {},
	".avi": {},
	".mov": {},
	".mkv": {},
}

// VideoStatus is one archive member's outcome in the campaign summary.
type VideoStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, failed
	Frames int    `json:"frames"`
	Error  string `json:"error,omitempty"`
}

// CampaignSummary is the per-archive manifest persisted as
// campaign_summary.json.
type CampaignSummary struct {
	Campaign    string        `json:"campaign"`
	Videos      []VideoStatus `json:"videos"`
	TotalFrames int           `json:"total_frames"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SummaryFileName is the per-archive campaign summary name.
const SummaryFileName = "campaign_summary.json"

// SampleArchive expands a ZIP of videos and samples each member into its
// own subdirectory of workDir, named <campaign>_<idx>. Member failures are
// recorded in the summary and do not stop the remaining members; the error
// return is reserved for an unreadable archive or one containing no videos.
func (s *Sampler) SampleArchive(ctx context.Context, archivePath, workDir, campaign string) (*CampaignSummary, []Frame, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "sampler", "archive", "open archive", err)
	}
	defer reader.Close()

	stageDir, err := os.MkdirTemp(workDir, "archive-")
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "sampler", "archive", "create staging directory", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	var members []string
	for _, file := range reader.File {
		if skipArchiveEntry(file.Name) {
			continue
		}
		staged, err := extractArchiveMember(file, stageDir)
		if err != nil {
			s.logger.Warn("archive member extraction failed",
				logging.String("member", file.Name), logging.Error(err))
			continue
		}
		members = append(members, staged)
	}
	if len(members) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "sampler", "archive",
			"archive contains no videos", nil)
	}

	summary := &CampaignSummary{Campaign: campaign, Timestamp: time.Now().UTC()}
	var allFrames []Frame
	for idx, member := range members {
		videoID := fmt.Sprintf("%s_%d", campaign, idx+1)
		outputDir := filepath.Join(workDir, videoID)

		_, frames, err := s.SampleVideo(ctx, member, outputDir, videoID)
		status := VideoStatus{Name: filepath.Base(member), Frames: len(frames), Status: "ok"}
		if err != nil {
			status.Status = "failed"
			status.Frames = 0
			status.Error = err.Error()
			s.logger.Warn("archive member sampling failed",
				logging.String("video", videoID), logging.Error(err))
		} else {
			allFrames = append(allFrames, frames...)
			summary.TotalFrames += len(frames)
		}
		summary.Videos = append(summary.Videos, status)
	}

	if err := fileutil.WriteJSON(filepath.Join(workDir, SummaryFileName), summary); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "sampler", "archive", "write campaign summary", err)
	}
	return summary, allFrames, nil
}

// skipArchiveEntry filters archive members down to video files, dropping
// platform metadata directories and hidden files.
func skipArchiveEntry(name string) bool {
	cleaned := strings.ReplaceAll(name, "\\", "/")
	if strings.HasSuffix(cleaned, "/") {
		return true
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == "__MACOSX" || strings.HasPrefix(part, ".") {
			return true
		}
	}
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(cleaned))]
	return !ok
}

func extractArchiveMember(file *zip.File, destDir string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open member %s: %w", file.Name, err)
	}
	defer src.Close()

	// Flatten archive paths; member order disambiguates duplicates later.
	target := filepath.Join(destDir, filepath.Base(strings.ReplaceAll(file.Name, "\\", "/")))
	if existing, err := os.Stat(target); err == nil && existing != nil {
		target = filepath.Join(destDir, fmt.Sprintf("%d_%s", file.CRC32, filepath.Base(target)))
	}

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create staged member: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("extract member %s: %w", file.Name, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(target)
		return "", err
	}
	return target, nil
}
