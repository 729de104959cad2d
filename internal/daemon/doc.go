// Package daemon coordinates the long-running framelens process.
//
// It wires configuration, the job store, the workflow manager, and the
// telemetry listener into a single lifecycle with flock-based locking to
// prevent multiple instances sharing a data directory. The daemon exposes
// store health summaries for the status surface.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
