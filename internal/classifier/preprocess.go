package classifier

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

const (
	// darkBoostGain and darkBoostBias are the contrast/brightness
	// adjustment applied to dark frames before scoring. Dark frames score
	// systematically low without it.
	darkBoostGain = 1.5
	darkBoostBias = 40
)

// DecodeFrame reads and decodes a frame file.
func DecodeFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// GrayscaleMean returns the mean luminance of the image in [0,255].
func GrayscaleMean(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, on 16-bit channel values.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			sum += luma / 257.0
		}
	}
	return sum / float64(pixels)
}

// BoostDark applies the fixed contrast/brightness adjustment, clamping each
// channel to [0,255].
func BoostDark(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			i := out.PixOffset(x, y)
			out.Pix[i+0] = boostChannel(r)
			out.Pix[i+1] = boostChannel(g)
			out.Pix[i+2] = boostChannel(b)
			out.Pix[i+3] = uint8(a >> 8)
		}
	}
	return out
}

func boostChannel(value uint32) uint8 {
	adjusted := darkBoostGain*float64(value>>8) + darkBoostBias
	if adjusted > 255 {
		return 255
	}
	if adjusted < 0 {
		return 0
	}
	return uint8(adjusted)
}

// Resize scales the image to a square of the given size using Catmull-Rom
// resampling, which is deterministic across runs.
func Resize(img image.Image, size int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), draw.Over, nil)
	return out
}

// Preprocess runs the full deterministic pipeline on a decoded frame:
// darkness compensation when mean luminance is below darkThreshold, then
// resize to the scorer input size. The returned flag reports whether the
// dark boost was applied.
func Preprocess(img image.Image, inputSize int, darkThreshold float64) (image.Image, bool) {
	boosted := false
	if GrayscaleMean(img) < darkThreshold {
		img = BoostDark(img)
		boosted = true
	}
	return Resize(img, inputSize), boosted
}
