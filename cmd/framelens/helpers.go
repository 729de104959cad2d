package main

import (
	"path/filepath"

	"framelens/internal/config"
)

func daemonLogPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "framelens.log")
}
