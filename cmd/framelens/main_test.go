package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"framelens/internal/jobstore"
)

func TestDetectSourceKind(t *testing.T) {
	cases := []struct {
		name string
		kind jobstore.SourceKind
		ok   bool
	}{
		{"campaign.mp4", jobstore.SourceVideo, true},
		{"campaign.MOV", jobstore.SourceVideo, true},
		{"screenshot.jpg", jobstore.SourceImage, true},
		{"screenshot.jpeg", jobstore.SourceImage, true},
		{"bundle.zip", jobstore.SourceArchive, true},
		{"notes.txt", "", false},
		{"noextension", "", false},
	}
	for _, tc := range cases {
		kind, ok := detectSourceKind(tc.name)
		if ok != tc.ok || kind != tc.kind {
			t.Fatalf("detectSourceKind(%q) = %q, %v; want %q, %v", tc.name, kind, ok, tc.kind, tc.ok)
		}
	}
}

func TestRenderJobsTable(t *testing.T) {
	jobs := []*jobstore.Job{
		{
			ID:             "acme_summer_20260801120000",
			Company:        "acme",
			Campaign:       "summer",
			Status:         jobstore.StatusCompleted,
			FramesSampled:  42,
			FramesAccepted: 30,
			CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	rendered := renderJobsTable(jobs)
	for _, want := range []string{"acme_summer_20260801120000", "completed", "42", "30"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("table missing %q:\n%s", want, rendered)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	cmd := newConfigInitCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if !strings.Contains(string(data), "[sampler]") {
		t.Fatal("sample config missing sampler section")
	}

	// A second run without --overwrite refuses to clobber.
	cmd = newConfigInitCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestPrintJobIncludesSummary(t *testing.T) {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	job := &jobstore.Job{
		ID:               "acme_summer_20260801120000",
		Company:          "acme",
		Campaign:         "summer",
		Product:          "sunscreen",
		OriginalFilename: "story.mp4",
		SourceKind:       jobstore.SourceVideo,
		Status:           jobstore.StatusCompleted,
		FramesSampled:    10,
		FramesAccepted:   8,
		MetricsJSON:      `{"views":{"max":300,"min":100,"avg":200,"last":300}}`,
		StartedAt:        &started,
		CompletedAt:      &completed,
	}

	var out bytes.Buffer
	printJob(&out, job)
	text := out.String()
	for _, want := range []string{"sunscreen", "story.mp4", "1m30s", "views", "300"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}
