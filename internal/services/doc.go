// Package services provides shared error classification and context
// plumbing used by every pipeline stage.
package services
