// Package sampler turns uploaded campaign media into ordered frame files.
//
// Videos are sampled at a fixed stride (every Nth decoded frame) via
// ffmpeg's select filter; sources taller than the configured maximum are
// first re-encoded to that height, with failures falling back to the
// original. ZIP archives are expanded and each contained video sampled into
// its own directory. Frame files are named frame_%06d.jpg by source frame
// index so downstream ordering is stable across re-runs.
package sampler
