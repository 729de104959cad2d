package jobstore

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an analysis job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the progress message recorded on a job whose run was
// interrupted by daemon shutdown. The job stays in processing and is reset
// to pending on the next startup.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// SourceKind identifies the flavour of uploaded content a job analyzes.
type SourceKind string

const (
	SourceVideo   SourceKind = "video"
	SourceImage   SourceKind = "image"
	SourceArchive SourceKind = "archive"
)

// Job represents an analysis job persisted in the store.
type Job struct {
	ID               string
	Company          string
	Campaign         string
	CampaignDate     string
	Product          string
	OriginalFilename string
	SourcePath       string
	SourceKind       SourceKind
	Status           Status
	ErrorMessage     string
	ProgressStage    string
	ProgressMessage  string

	FramesSampled       int
	FramesAccepted      int
	FramesRejected      int
	FramesIndeterminate int

	// MetricsJSON holds the aggregated campaign metrics document produced
	// by the extraction stage. Empty until extraction completes.
	MetricsJSON string
	// BlobKey is the object key of the metrics document in the blob sink,
	// empty when the sink is disabled or upload failed.
	BlobKey string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ListFilter narrows List results. A zero filter returns every job,
// newest first.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseSourceKind converts a string into a known SourceKind.
func ParseSourceKind(value string) (SourceKind, bool) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(value))) {
	case SourceVideo:
		return SourceVideo, true
	case SourceImage:
		return SourceImage, true
	case SourceArchive:
		return SourceArchive, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the status is an end state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SetProgress updates the stage and message shown by the jobs surface.
func (j *Job) SetProgress(stage, message string) {
	j.ProgressStage = stage
	j.ProgressMessage = message
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressStage = "Failed"
	j.ProgressMessage = message
	j.CompletedAt = &now
}

// SetCompleted marks the job as completed and clears any error.
func (j *Job) SetCompleted() {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.ErrorMessage = ""
	j.ProgressStage = "Completed"
	j.CompletedAt = &now
}
