package transcoder

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// writeScript writes an executable bash script into a temp dir and returns its path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()

	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755); err != nil {
		t.Fatalf("Failed to create mock %s: %v", name, err)
	}
	return path
}
