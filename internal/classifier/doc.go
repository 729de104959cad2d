// Package classifier scores sampled frames for visual quality and
// partitions them into accepted, rejected, and indeterminate sets.
//
// Preprocessing is deterministic: frames are decoded, dark frames (mean
// luminance below the configured threshold) get a contrast/brightness
// boost, and the result is resized to the scorer's input size. Scoring
// happens behind the Scorer interface so tests can substitute a fixed
// scorer; the production scorer is a pre-trained weights artifact loaded
// lazily once per process.
package classifier
