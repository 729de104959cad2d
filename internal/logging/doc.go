// Package logging configures slog output for the daemon and CLI and
// provides the attribute helpers the rest of the codebase logs with.
package logging
