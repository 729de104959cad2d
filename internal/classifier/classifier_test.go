package classifier

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"framelens/internal/fileutil"
	"framelens/internal/sampler"
)

// writeGrayFrame writes a uniform gray PNG. Frame files carry a .jpg name;
// decoding sniffs the actual format.
func writeGrayFrame(t *testing.T, path string, value uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: value, G: value, B: value, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func uniformImage(value uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: value, G: value, B: value, A: 255})
		}
	}
	return img
}

// queueScorer pops one confidence (or error) per Score call.
type queueScorer struct {
	scores []float64
	errs   []error
	calls  int
}

func (q *queueScorer) Score(ctx context.Context, img image.Image) (float64, error) {
	i := q.calls
	q.calls++
	if i < len(q.errs) && q.errs[i] != nil {
		return 0, q.errs[i]
	}
	if i < len(q.scores) {
		return q.scores[i], nil
	}
	return 0, errors.New("queue exhausted")
}

func TestGrayscaleMean(t *testing.T) {
	if mean := GrayscaleMean(uniformImage(200)); math.Abs(mean-200) > 1 {
		t.Fatalf("mean of uniform gray 200 = %v", mean)
	}
	if mean := GrayscaleMean(uniformImage(0)); mean > 1 {
		t.Fatalf("mean of black = %v", mean)
	}
}

func TestDarknessCompensation(t *testing.T) {
	_, boosted := Preprocess(uniformImage(50), 8, 80)
	if !boosted {
		t.Fatal("expected dark frame to be boosted")
	}
	_, boosted = Preprocess(uniformImage(120), 8, 80)
	if boosted {
		t.Fatal("expected bright frame to pass through")
	}
}

func TestBoostDarkValues(t *testing.T) {
	boosted := BoostDark(uniformImage(50))
	r, _, _, _ := boosted.At(0, 0).RGBA()
	if got := uint8(r >> 8); got != 115 { // 1.5*50 + 40
		t.Fatalf("boosted channel = %d, want 115", got)
	}

	saturated := BoostDark(uniformImage(200))
	r, _, _, _ = saturated.At(0, 0).RGBA()
	if got := uint8(r >> 8); got != 255 {
		t.Fatalf("saturated channel = %d, want 255", got)
	}
}

func TestResizeDimensions(t *testing.T) {
	out := Resize(uniformImage(100), 224)
	if out.Bounds().Dx() != 224 || out.Bounds().Dy() != 224 {
		t.Fatalf("unexpected bounds: %v", out.Bounds())
	}
}

func TestClassifyFramesPartitions(t *testing.T) {
	dir := t.TempDir()
	frames := make([]sampler.Frame, 0, 4)
	for i, index := range []int{0, 3, 6, 9} {
		path := filepath.Join(dir, sampler.FrameFileName(index))
		if i == 3 {
			// Corrupt frame: not an image at all.
			if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
				t.Fatal(err)
			}
		} else {
			writeGrayFrame(t, path, 150)
		}
		frames = append(frames, sampler.Frame{Index: index, Path: path, Video: "clip"})
	}

	scorer := &queueScorer{scores: []float64{0.9, 0.65, 0.2}}
	c := New(scorer, Options{Threshold: 0.65}, nil)

	result, err := c.ClassifyFrames(context.Background(), frames, dir)
	if err != nil {
		t.Fatalf("ClassifyFrames: %v", err)
	}

	if len(result.Accepted) != 1 || result.Accepted[0].Index != 0 {
		t.Fatalf("accepted = %+v", result.Accepted)
	}
	// A confidence exactly at the threshold is rejected, not accepted.
	if len(result.Rejected) != 2 {
		t.Fatalf("rejected = %+v", result.Rejected)
	}
	if len(result.Indeterminate) != 1 || result.Indeterminate[0].Index != 9 {
		t.Fatalf("indeterminate = %+v", result.Indeterminate)
	}

	var summary Summary
	if err := fileutil.ReadJSON(filepath.Join(dir, SummaryFileName), &summary); err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if summary.Total != 4 || summary.Accepted != 1 || summary.Rejected != 2 || summary.Indeterminate != 1 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
}

func TestClassifyFramesScorerUnavailable(t *testing.T) {
	dir := t.TempDir()
	var frames []sampler.Frame
	for _, index := range []int{0, 3} {
		path := filepath.Join(dir, sampler.FrameFileName(index))
		writeGrayFrame(t, path, 150)
		frames = append(frames, sampler.Frame{Index: index, Path: path, Video: "clip"})
	}

	// Scorer that always errors, like a model that failed to load.
	scorer := &queueScorer{errs: []error{errors.New("unavailable"), errors.New("unavailable")}}
	c := New(scorer, Options{}, nil)

	result, err := c.ClassifyFrames(context.Background(), frames, dir)
	if err != nil {
		t.Fatalf("ClassifyFrames: %v", err)
	}
	if len(result.Accepted) != 0 || len(result.Rejected) != 0 {
		t.Fatalf("expected everything indeterminate: %+v", result)
	}
	if len(result.Indeterminate) != 2 {
		t.Fatalf("indeterminate = %d, want 2", len(result.Indeterminate))
	}
}

func TestClassifyFramesOrganizes(t *testing.T) {
	dir := t.TempDir()
	var frames []sampler.Frame
	for _, index := range []int{0, 3} {
		path := filepath.Join(dir, sampler.FrameFileName(index))
		writeGrayFrame(t, path, 150)
		frames = append(frames, sampler.Frame{Index: index, Path: path, Video: "clip"})
	}

	scorer := &queueScorer{scores: []float64{0.9, 0.1}}
	c := New(scorer, Options{OrganizeFrames: true}, nil)

	if _, err := c.ClassifyFrames(context.Background(), frames, dir); err != nil {
		t.Fatalf("ClassifyFrames: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "good", sampler.FrameFileName(0))); err != nil {
		t.Fatalf("accepted frame not organized: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad", sampler.FrameFileName(3))); err != nil {
		t.Fatalf("rejected frame not organized: %v", err)
	}
}

func TestWeightsScorer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorer.json")
	artifact := `{"pool_size":1,"weights":[2.0],"bias":-1.0}`
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}

	scorer := NewWeightsScorer(path)
	if err := scorer.Available(); err != nil {
		t.Fatalf("Available: %v", err)
	}

	// Uniform white: pooled feature 1.0, z = 2*1 - 1 = 1.
	score, err := scorer.Score(context.Background(), uniformImage(255))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := 1 / (1 + math.Exp(-1))
	if math.Abs(score-want) > 0.01 {
		t.Fatalf("score = %v, want ~%v", score, want)
	}

	// Black scores lower than white.
	dark, err := scorer.Score(context.Background(), uniformImage(0))
	if err != nil {
		t.Fatalf("Score dark: %v", err)
	}
	if dark >= score {
		t.Fatalf("dark %v should score below white %v", dark, score)
	}
}

func TestWeightsScorerLoadFailure(t *testing.T) {
	missing := NewWeightsScorer(filepath.Join(t.TempDir(), "missing.json"))
	if err := missing.Available(); err == nil {
		t.Fatal("expected load failure for missing artifact")
	}
	if _, err := missing.Score(context.Background(), uniformImage(100)); err == nil {
		t.Fatal("expected Score to surface the load failure")
	}

	badPath := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badPath, []byte(`{"pool_size":2,"weights":[1.0],"bias":0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := NewWeightsScorer(badPath)
	if err := bad.Available(); err == nil {
		t.Fatal("expected weight count mismatch to fail validation")
	}
}
