package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeFFmpeg records its arguments to argsFile and writes the final argument
// as the output file.
func fakeFFmpeg(t *testing.T, argsFile string) string {
	t.Helper()
	return writeScript(t, "ffmpeg", `echo "$@" > "`+argsFile+`"
for last; do :; done
echo "fake media" > "$last"
`)
}

func readArgs(t *testing.T, argsFile string) string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Failed to read recorded args: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestNewInvokerDefaults(t *testing.T) {
	inv := NewInvoker(InvokerConfig{})

	if inv.binary != "ffmpeg" {
		t.Errorf("binary = %q, want ffmpeg", inv.binary)
	}
	if inv.timeout != DefaultEngineTimeout {
		t.Errorf("timeout = %v, want %v", inv.timeout, DefaultEngineTimeout)
	}
	if inv.Profile() != DefaultProxyProfile() {
		t.Errorf("Profile() = %+v, want defaults", inv.Profile())
	}
	if inv.processes == nil {
		t.Error("Expected processes map to be initialized")
	}
}

func TestRunProxyTranscode(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	inv := NewInvoker(InvokerConfig{FFmpegPath: fakeFFmpeg(t, argsFile)})

	dst := filepath.Join(dir, "proxies", "abc_proxy.mp4")
	if err := inv.RunProxyTranscode(context.Background(), "/src/in.mov", 640, 360, dst); err != nil {
		t.Fatalf("RunProxyTranscode() error = %v", err)
	}

	want := "-y -i /src/in.mov -vf scale=640:360 -c:v libx264 -crf 23 -preset medium -c:a aac -b:a 192k -movflags +faststart " + dst
	if got := readArgs(t, argsFile); got != want {
		t.Errorf("args = %q\nwant   %q", got, want)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestRunProxyTranscodeCustomProfile(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	inv := NewInvoker(InvokerConfig{
		FFmpegPath: fakeFFmpeg(t, argsFile),
		Profile:    ProxyProfile{VideoCodec: "libx265", CRF: 28, Preset: "fast", AudioBitrate: "128k"},
	})

	dst := filepath.Join(dir, "out.mp4")
	if err := inv.RunProxyTranscode(context.Background(), "in.mp4", 320, 180, dst); err != nil {
		t.Fatalf("RunProxyTranscode() error = %v", err)
	}

	got := readArgs(t, argsFile)
	for _, want := range []string{"-c:v libx265", "-crf 28", "-preset fast", "-c:a aac", "-b:a 128k"} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestRunClipTranscode(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	inv := NewInvoker(InvokerConfig{FFmpegPath: fakeFFmpeg(t, argsFile)})

	dst := filepath.Join(dir, "clips", "c1.mp4")
	if err := inv.RunClipTranscode(context.Background(), "/src/in.mp4", 2.5, 3.25, dst); err != nil {
		t.Fatalf("RunClipTranscode() error = %v", err)
	}

	want := "-y -ss 2.500 -i /src/in.mp4 -t 3.250 -c copy -map_metadata 0 -movflags +faststart " + dst
	if got := readArgs(t, argsFile); got != want {
		t.Errorf("args = %q\nwant   %q", got, want)
	}
}

func TestExtractFrame(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	inv := NewInvoker(InvokerConfig{FFmpegPath: fakeFFmpeg(t, argsFile)})

	dst := filepath.Join(dir, "frame.png")
	if err := inv.ExtractFrame(context.Background(), "/src/in.mp4", 1, dst); err != nil {
		t.Fatalf("ExtractFrame() error = %v", err)
	}

	want := "-y -ss 1.000 -i /src/in.mp4 -frames:v 1 -f image2 -c:v png " + dst
	if got := readArgs(t, argsFile); got != want {
		t.Errorf("args = %q\nwant   %q", got, want)
	}
}

func TestEngineFailureCarriesStderrAndRemovesOutput(t *testing.T) {
	ffmpeg := writeScript(t, "ffmpeg", `for last; do :; done
echo "partial" > "$last"
echo "Error while decoding stream #0:0: Invalid data found when processing input" >&2
exit 1
`)
	inv := NewInvoker(InvokerConfig{FFmpegPath: ffmpeg})

	dst := filepath.Join(t.TempDir(), "out.mp4")
	err := inv.RunProxyTranscode(context.Background(), "in.mp4", 640, 360, dst)
	if !errors.Is(err, ErrEngineFailed) {
		t.Fatalf("error = %v, want ErrEngineFailed", err)
	}

	var te *TranscodeError
	if !errors.As(err, &te) || te.Kind != EngineFailed || te.Op != "proxy" {
		t.Fatalf("error = %#v", err)
	}
	if !strings.Contains(te.Detail, "Invalid data found") {
		t.Errorf("Detail = %q, want engine stderr", te.Detail)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Errorf("partial output should be removed, stat err = %v", statErr)
	}
}

func TestEngineFailureDetailTruncated(t *testing.T) {
	ffmpeg := writeScript(t, "ffmpeg", `for i in $(seq 1 2000); do echo "noise line $i" >&2; done
echo "FINAL DIAGNOSTIC" >&2
exit 1
`)
	inv := NewInvoker(InvokerConfig{FFmpegPath: ffmpeg})

	err := inv.RunClipTranscode(context.Background(), "in.mp4", 0, 1, filepath.Join(t.TempDir(), "c.mp4"))
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TranscodeError", err)
	}
	if len(te.Detail) > maxDetailBytes {
		t.Errorf("len(Detail) = %d, want <= %d", len(te.Detail), maxDetailBytes)
	}
	if !strings.HasSuffix(te.Detail, "FINAL DIAGNOSTIC") {
		t.Errorf("Detail should keep the tail of stderr, got suffix %q", te.Detail[len(te.Detail)-40:])
	}
}

func TestSpawnFailure(t *testing.T) {
	inv := NewInvoker(InvokerConfig{FFmpegPath: "/nonexistent/ffmpeg"})

	err := inv.RunClipTranscode(context.Background(), "in.mp4", 0, 1, filepath.Join(t.TempDir(), "c.mp4"))
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("error = %v, want ErrSpawnFailed", err)
	}
	if errors.Is(err, ErrEngineFailed) {
		t.Error("spawn failure should not match ErrEngineFailed")
	}
}

func TestInvocationTimeout(t *testing.T) {
	ffmpeg := writeScript(t, "ffmpeg", "exec sleep 10\n")
	inv := NewInvoker(InvokerConfig{FFmpegPath: ffmpeg, Timeout: 100 * time.Millisecond})

	start := time.Now()
	err := inv.RunProxyTranscode(context.Background(), "in.mp4", 2, 2, filepath.Join(t.TempDir(), "p.mp4"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout should wrap DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("invocation took %v, timeout not enforced", time.Since(start))
	}
	if inv.Running() != 0 {
		t.Errorf("Running() = %d after timeout, want 0", inv.Running())
	}
}

func TestParentContextDeadlineIsTimeout(t *testing.T) {
	ffmpeg := writeScript(t, "ffmpeg", "exec sleep 10\n")
	inv := NewInvoker(InvokerConfig{FFmpegPath: ffmpeg})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := inv.ExtractFrame(ctx, "in.mp4", 0, filepath.Join(t.TempDir(), "f.png"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestCleanupKillsRunningProcesses(t *testing.T) {
	ffmpeg := writeScript(t, "ffmpeg", "exec sleep 30\n")
	inv := NewInvoker(InvokerConfig{FFmpegPath: ffmpeg})

	var wg sync.WaitGroup
	errs := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- inv.RunProxyTranscode(context.Background(), "in.mp4", 2, 2, filepath.Join(t.TempDir(), "p.mp4"))
	}()

	deadline := time.Now().Add(5 * time.Second)
	for inv.Running() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("process never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	inv.Cleanup()
	wg.Wait()

	if err := <-errs; err == nil {
		t.Fatal("killed invocation should fail")
	}
}

func TestOutputDirectoryCreatedConcurrently(t *testing.T) {
	dir := t.TempDir()
	inv := NewInvoker(InvokerConfig{FFmpegPath: fakeFFmpeg(t, filepath.Join(dir, "args"))})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dst := filepath.Join(dir, "nested", "clips", string(rune('a'+i))+".mp4")
			errs <- inv.RunClipTranscode(context.Background(), "in.mp4", 0, 1, dst)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("RunClipTranscode() error = %v", err)
		}
	}
}

func TestTailWriter(t *testing.T) {
	w := &tailWriter{limit: 8}
	for i := 0; i < 10; i++ {
		_, _ = w.Write([]byte("abcdef"))
	}
	_, _ = w.Write([]byte("XYZ"))

	if got := w.String(); got != "bcdefXYZ" {
		t.Errorf("String() = %q, want %q", got, "bcdefXYZ")
	}
}
