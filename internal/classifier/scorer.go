package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"sync"
)

// Scorer assigns a visual-quality confidence in [0,1] to a preprocessed
// frame. Implementations must be safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, img image.Image) (float64, error)
}

// weightsArtifact is the on-disk scorer model: a logistic model over a
// mean-pooled grayscale grid of the preprocessed frame.
type weightsArtifact struct {
	PoolSize int       `json:"pool_size"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
}

func (a *weightsArtifact) validate() error {
	if a.PoolSize < 1 {
		return fmt.Errorf("pool_size must be >= 1, got %d", a.PoolSize)
	}
	if want := a.PoolSize * a.PoolSize; len(a.Weights) != want {
		return fmt.Errorf("expected %d weights for pool size %d, got %d", want, a.PoolSize, len(a.Weights))
	}
	return nil
}

// WeightsScorer scores frames with a pre-trained weights artifact. The
// artifact is loaded lazily on first use and cached for the process
// lifetime; a load failure makes the scorer permanently unavailable rather
// than retrying per frame.
type WeightsScorer struct {
	path string

	once     sync.Once
	artifact *weightsArtifact
	loadErr  error
}

// NewWeightsScorer returns a scorer backed by the artifact at path. The
// file is not touched until the first Score or Available call.
func NewWeightsScorer(path string) *WeightsScorer {
	return &WeightsScorer{path: path}
}

func (s *WeightsScorer) load() {
	s.once.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			s.loadErr = fmt.Errorf("read scorer artifact: %w", err)
			return
		}
		var artifact weightsArtifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			s.loadErr = fmt.Errorf("parse scorer artifact: %w", err)
			return
		}
		if err := artifact.validate(); err != nil {
			s.loadErr = fmt.Errorf("invalid scorer artifact: %w", err)
			return
		}
		s.artifact = &artifact
	})
}

// Available reports whether the artifact loaded successfully, forcing the
// lazy load. Used by the status surface.
func (s *WeightsScorer) Available() error {
	s.load()
	return s.loadErr
}

// Score pools the image into the artifact's grid, normalizes to [0,1], and
// applies the logistic model.
func (s *WeightsScorer) Score(ctx context.Context, img image.Image) (float64, error) {
	s.load()
	if s.loadErr != nil {
		return 0, s.loadErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	features := poolGrayscale(img, s.artifact.PoolSize)
	z := s.artifact.Bias
	for i, w := range s.artifact.Weights {
		z += w * features[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// poolGrayscale splits the image into pool×pool cells and returns each
// cell's mean luminance normalized to [0,1], row-major.
func poolGrayscale(img image.Image, pool int) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	features := make([]float64, pool*pool)
	if width == 0 || height == 0 {
		return features
	}

	sums := make([]float64, pool*pool)
	counts := make([]int, pool*pool)
	for y := 0; y < height; y++ {
		cy := y * pool / height
		for x := 0; x < width; x++ {
			cx := x * pool / width
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
			cell := cy*pool + cx
			sums[cell] += luma
			counts[cell]++
		}
	}
	for i := range features {
		if counts[i] > 0 {
			features[i] = sums[i] / float64(counts[i]) / 255.0
		}
	}
	return features
}
