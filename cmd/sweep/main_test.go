package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/retention"
)

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	if !strings.Contains(buf.String(), "Usage: sweep") {
		t.Errorf("usage = %q", buf.String())
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := map[string]string{
		"run":          "run",
		"status-2":     "status-2",
		"rm -rf /":     "rm_-rf__",
		"\x1b[31mred":  "__31mred",
		"snake_case_1": "snake_case_1",
	}
	for in, want := range tests {
		if got := sanitizeCommand(in); got != want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     string
		want    time.Duration
		wantErr bool
	}{
		{"default", nil, "", retention.DefaultMaxAge, false},
		{"env", nil, "30m", 30 * time.Minute, false},
		{"argument wins", []string{"2h"}, "30m", 2 * time.Hour, false},
		{"invalid", []string{"soon"}, "", 0, true},
		{"zero", []string{"0s"}, "", 0, true},
		{"negative", nil, "-1h", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMaxAge(tt.args, tt.env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMaxAge() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseMaxAge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "clipper.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})
	return db
}

func TestRunSweepIntegration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	layout := filesystem.Layout{Root: t.TempDir()}
	if err := layout.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	old := &database.Asset{
		OriginalRef: "uploads/old_a.mp4",
		Status:      database.AssetCompleted,
		CreatedAt:   time.Now().Add(-3 * time.Hour),
	}
	if err := db.CreateAsset(ctx, old); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(layout.Root, "uploads", "old_a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	fresh := &database.Asset{OriginalRef: "uploads/new_a.mp4", Status: database.AssetUploading}
	if err := db.CreateAsset(ctx, fresh); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	var out bytes.Buffer
	if !runSweep(ctx, retention.New(db, layout), time.Hour, &out) {
		t.Fatalf("runSweep() = false, output %s", out.String())
	}
	if !strings.Contains(out.String(), `"assetsDeleted": 1`) {
		t.Errorf("output = %s", out.String())
	}

	if _, err := db.GetAsset(ctx, old.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("old asset still present: %v", err)
	}
	if _, err := db.GetAsset(ctx, fresh.ID); err != nil {
		t.Errorf("fresh asset removed: %v", err)
	}
}

func TestShowStatusIntegration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateAsset(ctx, &database.Asset{OriginalRef: "uploads/a.mp4"}); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	var out bytes.Buffer
	if !showStatus(ctx, db, &out) {
		t.Fatal("showStatus() = false")
	}
	if !strings.Contains(out.String(), "uploading   1") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "Clips:") {
		t.Errorf("output missing clips section: %q", out.String())
	}
}
