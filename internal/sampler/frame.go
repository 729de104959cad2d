package sampler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Frame is one sampled still image. Index is the frame's position in the
// source video's decode order, not a sequential counter: with stride 3 the
// indices run 0, 3, 6, ...
type Frame struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Video string `json:"video"`
}

const (
	framePrefix = "frame_"
	frameSuffix = ".jpg"
)

// FrameFileName returns the canonical file name for a source frame index.
func FrameFileName(index int) string {
	return fmt.Sprintf("frame_%06d.jpg", index)
}

// ParseFrameIndex extracts the source frame index from a canonical frame
// file name.
func ParseFrameIndex(name string) (int, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, framePrefix) || !strings.HasSuffix(base, frameSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, framePrefix), frameSuffix)
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// ClearFrames removes previously extracted frame files from dir so a re-run
// starts from a clean slate. A missing directory is not an error.
func ClearFrames(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read frame dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := ParseFrameIndex(entry.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove stale frame: %w", err)
		}
	}
	return nil
}

// renumberExtracted renames the sequential files ffmpeg wrote
// (extract_000001.jpg, extract_000002.jpg, ...) to canonical names carrying
// the source frame index: output i (1-based) becomes frame index (i-1)*stride.
func renumberExtracted(dir string, stride int, video string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read extract dir: %w", err)
	}

	var seq []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, extractPrefix) && strings.HasSuffix(name, frameSuffix) {
			seq = append(seq, name)
		}
	}
	sort.Strings(seq)

	frames := make([]Frame, 0, len(seq))
	for i, name := range seq {
		index := i * stride
		target := filepath.Join(dir, FrameFileName(index))
		if err := os.Rename(filepath.Join(dir, name), target); err != nil {
			return nil, fmt.Errorf("rename frame %s: %w", name, err)
		}
		frames = append(frames, Frame{Index: index, Path: target, Video: video})
	}
	return frames, nil
}

const extractPrefix = "extract_"
