// Package config loads, validates, and defaults framelens configuration.
//
// Configuration is TOML on disk with environment overrides for secrets.
// Load resolves the config path (explicit flag, then
// ~/.config/framelens/config.toml, then ./framelens.toml), decodes it over
// the defaults, applies environment overrides, expands paths, and validates.
package config
