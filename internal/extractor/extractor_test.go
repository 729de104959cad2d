package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"framelens/internal/sampler"
	"framelens/internal/services"
	"framelens/internal/testsupport"
)

// fakeAnalyzer pops one canned reply (or error) per call.
type fakeAnalyzer struct {
	replies []string
	errs    []error
	calls   int
	sizes   []int
}

func (f *fakeAnalyzer) AnalyzeBatch(ctx context.Context, prompt string, frames [][]byte) (string, error) {
	call := f.calls
	f.calls++
	f.sizes = append(f.sizes, len(frames))
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.replies) {
		return f.replies[call], nil
	}
	return "[]", nil
}

func writeFrames(t *testing.T, dir string, indices []int) []sampler.Frame {
	t.Helper()
	paths := testsupport.WriteFrames(t, dir, indices...)
	frames := make([]sampler.Frame, 0, len(indices))
	for i, idx := range indices {
		frames = append(frames, sampler.Frame{Index: idx, Path: paths[i], Video: "campaign"})
	}
	return frames
}

func newTestExtractor(analyzer Analyzer, batchSize int) (*Extractor, *[]time.Duration) {
	e := New(analyzer, nil, Options{BatchSize: batchSize, PacingDelay: 2 * time.Second})
	var waits []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return e, &waits
}

func TestExtractMetricsAggregates(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, []int{0, 3, 6})

	analyzer := &fakeAnalyzer{replies: []string{
		"```json\n" + `[
			{"frame_index": 0, "is_duplicate": false, "metrics": {"views": 100, "likes": 10}, "metadata": {"language": "en"}},
			{"frame_index": 1, "is_duplicate": true, "duplicate_of_frame": 0}
		]` + "\n```",
		`[{"frame_index": 0, "is_duplicate": false, "metrics": {"views": "۳۰۰", "shares": 5}}]`,
	}}
	e, waits := newTestExtractor(analyzer, 2)

	result, err := e.ExtractMetrics(context.Background(), "job-1", frames, dir)
	if err != nil {
		t.Fatalf("ExtractMetrics: %v", err)
	}

	if analyzer.calls != 2 {
		t.Fatalf("expected 2 batches, got %d", analyzer.calls)
	}
	if analyzer.sizes[0] != 2 || analyzer.sizes[1] != 1 {
		t.Fatalf("batch sizes = %v", analyzer.sizes)
	}
	if len(*waits) != 1 || (*waits)[0] != 2*time.Second {
		t.Fatalf("pacing waits = %v, want one 2s wait", *waits)
	}

	if result.TotalFrames != 3 || result.UniqueFrames != 2 || result.DuplicateFrames != 1 {
		t.Fatalf("counts = %d/%d/%d", result.TotalFrames, result.UniqueFrames, result.DuplicateFrames)
	}
	if result.BatchesAttempted != 2 || result.BatchesAnswered != 2 {
		t.Fatalf("batches = %d attempted, %d answered", result.BatchesAttempted, result.BatchesAnswered)
	}

	views, ok := result.Summary["views"]
	if !ok {
		t.Fatal("views missing from summary")
	}
	if views.Max != 300 || views.Min != 100 || views.Avg != 200 || views.Last != 300 {
		t.Fatalf("views summary = %+v", views)
	}
	likes := result.Summary["likes"]
	if likes.Max != 10 || likes.Last != 10 {
		t.Fatalf("likes summary = %+v", likes)
	}
	if _, ok := result.Summary["follows"]; ok {
		t.Fatal("unreported metric must be omitted from summary")
	}

	// Duplicates stay in the full list for audit.
	if len(result.AllFrames) != 3 {
		t.Fatalf("all frames = %d, want 3", len(result.AllFrames))
	}
	if result.UniqueMetrics[1].SourceFrame != sampler.FrameFileName(6) {
		t.Fatalf("source frame = %q", result.UniqueMetrics[1].SourceFrame)
	}

	data, err := os.ReadFile(filepath.Join(dir, MetricsFileName))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	var persisted CampaignMetrics
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("parse artifact: %v", err)
	}
	if persisted.UniqueFrames != 2 {
		t.Fatalf("persisted unique frames = %d", persisted.UniqueFrames)
	}
}

func TestExtractMetricsSkipsExhaustedBatch(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, []int{0, 3, 6, 9})

	analyzer := &fakeAnalyzer{
		replies: []string{
			`[{"frame_index": 0, "is_duplicate": false, "metrics": {"views": 100}},
			  {"frame_index": 1, "is_duplicate": false, "metrics": {"views": 200}}]`,
			"",
		},
		errs: []error{nil, errors.New("batch failed after 5 attempts")},
	}
	e, _ := newTestExtractor(analyzer, 2)

	result, err := e.ExtractMetrics(context.Background(), "job-1", frames, dir)
	if err != nil {
		t.Fatalf("ExtractMetrics: %v", err)
	}
	if result.BatchesAttempted != 2 || result.BatchesAnswered != 1 {
		t.Fatalf("batches = %d attempted, %d answered", result.BatchesAttempted, result.BatchesAnswered)
	}
	if result.UniqueFrames != 2 {
		t.Fatalf("unique frames = %d, want data from the surviving batch only", result.UniqueFrames)
	}
	if result.Summary["views"].Max != 200 {
		t.Fatalf("views max = %v", result.Summary["views"].Max)
	}
}

func TestExtractMetricsAbortsOnFatalEngineError(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, []int{0, 3, 6, 9})

	analyzer := &fakeAnalyzer{
		errs: []error{services.Wrap(services.ErrConfiguration, "vision", "analyze", "API key rejected", nil)},
	}
	e, _ := newTestExtractor(analyzer, 2)

	_, err := e.ExtractMetrics(context.Background(), "job-1", frames, dir)
	if err == nil {
		t.Fatal("expected configuration error to abort extraction")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if analyzer.calls != 1 {
		t.Fatalf("expected no further batches after fatal error, got %d calls", analyzer.calls)
	}
}

func TestExtractMetricsRetainsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, []int{0, 3})

	analyzer := &fakeAnalyzer{replies: []string{
		`[{"frame_index": 0, "is_duplicate": false, "metrics": {"views": 10}},
		  {"is_duplicate": false, "metrics": {"views": "not a number either way"}}]`,
	}}
	e, _ := newTestExtractor(analyzer, 50)

	result, err := e.ExtractMetrics(context.Background(), "job-1", frames, dir)
	if err != nil {
		t.Fatalf("ExtractMetrics: %v", err)
	}
	if len(result.AllFrames) != 2 {
		t.Fatalf("all frames = %d, malformed entry was dropped", len(result.AllFrames))
	}
	bad := result.AllFrames[1]
	if !bad.Malformed || len(bad.Raw) == 0 {
		t.Fatalf("expected malformed entry with raw payload, got %+v", bad)
	}
	if result.UniqueFrames != 1 {
		t.Fatalf("unique frames = %d, malformed must not aggregate", result.UniqueFrames)
	}
}

func TestExtractMetricsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	analyzer := &fakeAnalyzer{}
	e, _ := newTestExtractor(analyzer, 50)

	result, err := e.ExtractMetrics(context.Background(), "job-1", nil, dir)
	if err != nil {
		t.Fatalf("ExtractMetrics: %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatalf("no batches expected, got %d calls", analyzer.calls)
	}
	if result.TotalFrames != 0 || len(result.Summary) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, MetricsFileName)); err != nil {
		t.Fatalf("artifact should still be written: %v", err)
	}
}

func TestDecodeEntryValidation(t *testing.T) {
	cases := []struct {
		name      string
		entry     string
		malformed bool
	}{
		{"valid reporter", `{"frame_index": 0, "is_duplicate": false, "metrics": {"views": 1}}`, false},
		{"valid duplicate", `{"frame_index": 2, "is_duplicate": true, "duplicate_of_frame": 0}`, false},
		{"missing index", `{"is_duplicate": false}`, true},
		{"negative index", `{"frame_index": -1}`, true},
		{"index beyond batch", `{"frame_index": 10}`, true},
		{"duplicate without target", `{"frame_index": 1, "is_duplicate": true}`, true},
		{"duplicate of later frame", `{"frame_index": 1, "is_duplicate": true, "duplicate_of_frame": 3}`, true},
		{"duplicate of itself", `{"frame_index": 1, "is_duplicate": true, "duplicate_of_frame": 1}`, true},
		{"not an object", `"just a string"`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := decodeEntry(json.RawMessage(tc.entry), 5)
			if result.Malformed != tc.malformed {
				t.Fatalf("malformed = %v, want %v", result.Malformed, tc.malformed)
			}
		})
	}
}

func TestMetricValueCoercion(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(42), 42, true},
		{"1,234", 1234, true},
		{"۱۲۳", 123, true},
		{"٥٠", 50, true},
		{"  17 ", 17, true},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := metricValue(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("metricValue(%v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDecodeEntryDropsUnknownMetrics(t *testing.T) {
	entry := `{"frame_index": 0, "is_duplicate": false, "metrics": {"views": 5, "made_up": 9}}`
	result := decodeEntry(json.RawMessage(entry), 1)
	if result.Malformed {
		t.Fatal("entry should be valid")
	}
	if _, ok := result.Metrics["made_up"]; ok {
		t.Fatal("unknown metric must be discarded")
	}
	if result.Metrics["views"] != 5 {
		t.Fatalf("views = %v", result.Metrics["views"])
	}
}
