package extractor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"framelens/internal/textutil"
)

// metricNames is the fixed extraction schema. The instruction prompt and the
// aggregate summary both follow this list; values for names outside it are
// discarded during validation.
var metricNames = []string{
	"views", "followers", "non_followers", "accounts_reached",
	"interactions", "likes", "replies", "shares",
	"links_clicks", "sticker_taps", "navigation",
	"forward", "next_story", "back", "exited",
	"profile_activity", "profile_visits", "external_link_taps", "follows",
}

var knownMetrics = func() map[string]bool {
	set := make(map[string]bool, len(metricNames))
	for _, name := range metricNames {
		set[name] = true
	}
	return set
}()

// FrameResult is one entry of a batch reply. Exactly one of the three shapes
// applies: a duplicate pointing at an earlier frame in the same batch, a
// reporter carrying metrics, or a malformed entry retained with its raw JSON
// so partial data is never silently lost.
type FrameResult struct {
	FrameIndex       int                `json:"frame_index"`
	IsDuplicate      bool               `json:"is_duplicate"`
	DuplicateOfFrame *int               `json:"duplicate_of_frame,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
	SourceFrame      string             `json:"source_frame,omitempty"`
	Malformed        bool               `json:"malformed,omitempty"`
	Raw              json.RawMessage    `json:"raw,omitempty"`

	// order is the frame's position in the full accepted sequence,
	// batch offset included. Used for the "last reported" aggregate.
	order int
}

// MetricSummary aggregates one metric across all unique reporters.
type MetricSummary struct {
	Max  float64 `json:"max"`
	Min  float64 `json:"min"`
	Avg  float64 `json:"avg"`
	Last float64 `json:"last"`
}

// CampaignMetrics is the durable extraction artifact for one job.
type CampaignMetrics struct {
	ExtractionDate   string                   `json:"extraction_date"`
	TotalFrames      int                      `json:"total_frames"`
	UniqueFrames     int                      `json:"unique_frames"`
	DuplicateFrames  int                      `json:"duplicate_frames"`
	BatchesAttempted int                      `json:"batches_attempted"`
	BatchesAnswered  int                      `json:"batches_answered"`
	AllFrames        []FrameResult            `json:"all_frames_data"`
	UniqueMetrics    []FrameResult            `json:"unique_metrics"`
	Summary          map[string]MetricSummary `json:"summary"`
}

// rawEntry is the permissive wire shape a reply entry is first decoded into.
type rawEntry struct {
	FrameIndex       *int           `json:"frame_index"`
	IsDuplicate      bool           `json:"is_duplicate"`
	DuplicateOfFrame *int           `json:"duplicate_of_frame"`
	Metrics          map[string]any `json:"metrics"`
	Metadata         map[string]any `json:"metadata"`
}

// decodeEntry validates one reply entry against the schema. Entries that
// fail validation come back with Malformed set and the raw JSON attached,
// never an error: the caller keeps them for audit.
func decodeEntry(raw json.RawMessage, batchSize int) FrameResult {
	malformed := FrameResult{Malformed: true, Raw: raw}

	var entry rawEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return malformed
	}
	if entry.FrameIndex == nil || *entry.FrameIndex < 0 || *entry.FrameIndex >= batchSize {
		return malformed
	}

	result := FrameResult{FrameIndex: *entry.FrameIndex}

	if entry.IsDuplicate {
		if entry.DuplicateOfFrame == nil ||
			*entry.DuplicateOfFrame < 0 || *entry.DuplicateOfFrame >= *entry.FrameIndex {
			return malformed
		}
		result.IsDuplicate = true
		result.DuplicateOfFrame = entry.DuplicateOfFrame
		return result
	}

	result.Metrics = make(map[string]float64)
	for name, value := range entry.Metrics {
		if !knownMetrics[name] {
			continue
		}
		parsed, ok := metricValue(value)
		if !ok {
			continue
		}
		result.Metrics[name] = parsed
	}
	result.Metadata = make(map[string]string)
	for key, value := range entry.Metadata {
		if s, ok := value.(string); ok {
			result.Metadata[key] = s
		}
	}
	return result
}

// metricValue coerces a reported metric to a float64. Models sometimes
// return numbers as strings, occasionally in Persian or Arabic-Indic
// numerals with grouping separators.
func metricValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		cleaned := strings.ReplaceAll(textutil.NormalizeDigits(strings.TrimSpace(v)), ",", "")
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// aggregate computes per-metric {max, min, avg, last} over the unique
// reporters. "Last" follows original frame order, not reply order. Metrics
// no frame reported are omitted.
func aggregate(unique []FrameResult) map[string]MetricSummary {
	ordered := make([]FrameResult, len(unique))
	copy(ordered, unique)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	summary := make(map[string]MetricSummary)
	for _, name := range metricNames {
		var values []float64
		for _, result := range ordered {
			if value, ok := result.Metrics[name]; ok {
				values = append(values, value)
			}
		}
		if len(values) == 0 {
			continue
		}
		agg := MetricSummary{Max: values[0], Min: values[0], Last: values[len(values)-1]}
		var sum float64
		for _, value := range values {
			sum += value
			if value > agg.Max {
				agg.Max = value
			}
			if value < agg.Min {
				agg.Min = value
			}
		}
		agg.Avg = sum / float64(len(values))
		summary[name] = agg
	}
	return summary
}

// decodeBatchReply parses one model reply into per-frame results. A reply
// that is not a JSON array at all is an error (the batch retries handled
// that upstream); individual bad entries degrade to malformed results.
func decodeBatchReply(reply string, batchSize int) ([]FrameResult, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(reply), &entries); err != nil {
		return nil, fmt.Errorf("reply is not a JSON array: %w", err)
	}
	results := make([]FrameResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, decodeEntry(entry, batchSize))
	}
	return results, nil
}
