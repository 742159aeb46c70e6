package storage

import (
	"path/filepath"
	"testing"
	"time"

	"jenkinstrigger/internal/storage/models"
)

func TestInsertAndGetRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	if err := Init(dbPath); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	defer Close()

	runs := []models.TriggerRun{
		{
			Timestamp:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			JobName:    "deploy",
			Params:     `{"branch":"main"}`,
			BuildURL:   "https://jenkins.example.com/job/deploy/42/",
			Result:     "SUCCESS",
			DurationMS: 90500,
		},
		{
			Timestamp:  time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
			JobName:    "deploy",
			Params:     `{}`,
			Result:     "ERROR",
			Error:      "timed out waiting for build to start: waited for 120 seconds",
			DurationMS: 126000,
		},
	}
	for _, run := range runs {
		if err := InsertRun(run); err != nil {
			t.Fatalf("Failed to insert run: %v", err)
		}
	}

	got, err := GetRuns(10, 0)
	if err != nil {
		t.Fatalf("Failed to get runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(got))
	}

	// Newest first
	if got[0].Result != "ERROR" || got[1].Result != "SUCCESS" {
		t.Errorf("Expected newest-first ordering, got %s then %s", got[0].Result, got[1].Result)
	}
	if got[1].BuildURL != runs[0].BuildURL {
		t.Errorf("Expected build URL %q, got %q", runs[0].BuildURL, got[1].BuildURL)
	}
	if got[0].Error == "" {
		t.Error("Expected error text to round-trip")
	}
	if !got[1].Timestamp.Equal(runs[0].Timestamp) {
		t.Errorf("Expected timestamp %s, got %s", runs[0].Timestamp, got[1].Timestamp)
	}
}

func TestGetRunsPagination(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	if err := Init(dbPath); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	defer Close()

	for i := 0; i < 5; i++ {
		run := models.TriggerRun{
			Timestamp: time.Now().UTC(),
			JobName:   "deploy",
			Result:    "TRIGGERED",
		}
		if err := InsertRun(run); err != nil {
			t.Fatalf("Failed to insert run: %v", err)
		}
	}

	page, err := GetRuns(2, 2)
	if err != nil {
		t.Fatalf("Failed to get runs: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("Expected page of 2 runs, got %d", len(page))
	}
}
