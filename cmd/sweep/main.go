package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/retention"
)

const (
	// Default timeout for a single sweep or status query
	defaultTimeout = 10 * time.Minute
	// Default database and media directories, matching the service
	defaultDatabaseDir = "/database"
	defaultMediaDir    = "/media"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	databaseDir := envOr("DATABASE_DIR", defaultDatabaseDir)
	dbPath := filepath.Join(databaseDir, "clipper.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	ok := true
	switch command {
	case "run":
		layout, err := filesystem.NewLayout(envOr("MEDIA_DIR", defaultMediaDir))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		maxAge, err := parseMaxAge(os.Args[2:], os.Getenv("RETENTION_MAX_AGE"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ok = runSweep(ctx, retention.New(db, layout), maxAge, os.Stdout)
	case "status":
		ok = showStatus(ctx, db, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(os.Stderr)
		ok = false
	}
	if !ok {
		stop()
		_ = db.Close()
		os.Exit(1)
	}
}

// parseMaxAge takes the max age from the first argument, then the
// environment, then retention.DefaultMaxAge.
func parseMaxAge(args []string, env string) (time.Duration, error) {
	raw := env
	if len(args) > 0 {
		raw = args[0]
	}
	if strings.TrimSpace(raw) == "" {
		return retention.DefaultMaxAge, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid max age %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("max age must be positive, got %s", d)
	}
	return d, nil
}

func runSweep(ctx context.Context, s *retention.Sweeper, maxAge time.Duration, w io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.Sweep(ctx, maxAge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Sweep failed: %v\n", err)
		return false
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	return result.Errors == 0
}

func showStatus(ctx context.Context, db *database.Database, w io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats, err := db.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read stats: %v\n", err)
		return false
	}

	fmt.Fprintln(w, "Assets:")
	for _, s := range database.AssetStatuses {
		fmt.Fprintf(w, "  %-11s %d\n", s, stats.Assets[s])
	}
	fmt.Fprintln(w, "Clips:")
	for _, s := range database.ClipStatuses {
		fmt.Fprintf(w, "  %-11s %d\n", s, stats.Clips[s])
	}
	return true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sanitizeCommand returns a safe representation of a command string for display.
// Any character that is not alphanumeric, a hyphen, or an underscore becomes '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Clipper Retention Sweep")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: sweep <command> [max-age]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run     - Delete assets and clips older than max-age (e.g. 1h, 30m)")
	fmt.Fprintln(w, "  status  - Show record counts per status")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  DATABASE_DIR      - Path to database directory (default: %s)\n", defaultDatabaseDir)
	fmt.Fprintf(w, "  MEDIA_DIR         - Path to media directory (default: %s)\n", defaultMediaDir)
	fmt.Fprintf(w, "  RETENTION_MAX_AGE - Max age when none is given (default: %s)\n", retention.DefaultMaxAge)
}
