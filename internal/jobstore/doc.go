// Package jobstore persists analysis jobs and their lifecycle.
//
// Three backends implement the Store interface: an in-memory store for
// tests, a SQLite store for single-host deployments, and a PostgreSQL
// store for shared deployments. The daemon claims pending jobs through
// ClaimNextPending, which transitions a job to processing atomically so
// concurrent workers never pick up the same job.
package jobstore
