package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipper/internal/filesystem"
	"clipper/internal/logging"
	"clipper/internal/metrics"
)

// maxDetailBytes bounds the stderr text carried in error details.
const maxDetailBytes = 4096

// DefaultEngineTimeout bounds a single ffmpeg invocation.
const DefaultEngineTimeout = 30 * time.Minute

// ProxyProfile holds the encoder settings for proxy renditions.
type ProxyProfile struct {
	VideoCodec   string
	CRF          int
	Preset       string
	AudioCodec   string
	AudioBitrate string
}

// DefaultProxyProfile returns H.264 CRF 23 medium with 192k AAC audio.
func DefaultProxyProfile() ProxyProfile {
	return ProxyProfile{
		VideoCodec:   "libx264",
		CRF:          23,
		Preset:       "medium",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
	}
}

// InvokerConfig configures an Invoker. Zero values take defaults.
type InvokerConfig struct {
	FFmpegPath string
	Timeout    time.Duration
	Profile    ProxyProfile
}

// Invoker runs ffmpeg for proxy, clip and frame operations.
type Invoker struct {
	binary    string
	timeout   time.Duration
	profile   ProxyProfile
	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// NewInvoker creates an Invoker.
func NewInvoker(cfg InvokerConfig) *Invoker {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEngineTimeout
	}

	def := DefaultProxyProfile()
	if cfg.Profile.VideoCodec == "" {
		cfg.Profile.VideoCodec = def.VideoCodec
	}
	if cfg.Profile.CRF <= 0 {
		cfg.Profile.CRF = def.CRF
	}
	if cfg.Profile.Preset == "" {
		cfg.Profile.Preset = def.Preset
	}
	if cfg.Profile.AudioCodec == "" {
		cfg.Profile.AudioCodec = def.AudioCodec
	}
	if cfg.Profile.AudioBitrate == "" {
		cfg.Profile.AudioBitrate = def.AudioBitrate
	}

	return &Invoker{
		binary:    cfg.FFmpegPath,
		timeout:   cfg.Timeout,
		profile:   cfg.Profile,
		processes: make(map[string]*exec.Cmd),
	}
}

// Profile returns the encoder settings in use.
func (i *Invoker) Profile() ProxyProfile {
	return i.profile
}

// RunProxyTranscode re-encodes src at width x height into dst.
func (i *Invoker) RunProxyTranscode(ctx context.Context, src string, width, height int, dst string) error {
	return i.run(ctx, "proxy", dst, i.proxyArgs(src, width, height, dst))
}

// RunClipTranscode stream-copies duration seconds of src starting at in into dst.
func (i *Invoker) RunClipTranscode(ctx context.Context, src string, in, duration float64, dst string) error {
	return i.run(ctx, "clip", dst, clipArgs(src, in, duration, dst))
}

// ExtractFrame writes the frame at the given offset of src to dst as PNG.
func (i *Invoker) ExtractFrame(ctx context.Context, src string, at float64, dst string) error {
	return i.run(ctx, "frame", dst, frameArgs(src, at, dst))
}

func (i *Invoker) proxyArgs(src string, width, height int, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-c:v", i.profile.VideoCodec,
		"-crf", strconv.Itoa(i.profile.CRF),
		"-preset", i.profile.Preset,
		"-c:a", i.profile.AudioCodec,
		"-b:a", i.profile.AudioBitrate,
		"-movflags", "+faststart",
		dst,
	}
}

func clipArgs(src string, in, duration float64, dst string) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(in),
		"-i", src,
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-map_metadata", "0",
		"-movflags", "+faststart",
		dst,
	}
}

func frameArgs(src string, at float64, dst string) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(at),
		"-i", src,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "png",
		dst,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func (i *Invoker) run(ctx context.Context, op, dst string, args []string) error {
	start := time.Now()
	err := i.exec(ctx, op, dst, args)
	metrics.TranscodeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "success"
	var te *TranscodeError
	if errors.As(err, &te) {
		result = te.Kind.String()
		removePartial(dst)
	}
	metrics.TranscodeTotal.WithLabelValues(op, result).Inc()
	return err
}

func (i *Invoker) exec(ctx context.Context, op, dst string, args []string) error {
	if err := filesystem.EnsureDir(filepath.Dir(dst)); err != nil {
		return &TranscodeError{Kind: SpawnFailed, Op: op, Detail: "create output directory: " + err.Error(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, i.binary, args...)
	cmd.WaitDelay = time.Second
	stderr := &tailWriter{limit: maxDetailBytes}
	cmd.Stderr = stderr

	logging.Debug("Running %s %s", i.binary, strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return &TranscodeError{Kind: SpawnFailed, Op: op, Detail: err.Error(), Err: err}
	}

	i.track(dst, cmd)
	defer i.untrack(dst)

	err := cmd.Wait()
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		detail := "ffmpeg did not finish within " + i.timeout.String()
		if errors.Is(ctxErr, context.Canceled) {
			detail = "ffmpeg interrupted: " + ctxErr.Error()
		}
		return &TranscodeError{Kind: Timeout, Op: op, Detail: detail, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = exitErr.Error()
		}
		return &TranscodeError{Kind: EngineFailed, Op: op, Detail: detail, Err: err}
	}
	return &TranscodeError{Kind: SpawnFailed, Op: op, Detail: err.Error(), Err: err}
}

func (i *Invoker) track(key string, cmd *exec.Cmd) {
	i.processMu.Lock()
	i.processes[key] = cmd
	i.processMu.Unlock()
	metrics.EngineProcessesRunning.Inc()
}

func (i *Invoker) untrack(key string) {
	i.processMu.Lock()
	delete(i.processes, key)
	i.processMu.Unlock()
	metrics.EngineProcessesRunning.Dec()
}

// Running returns the number of engine processes currently tracked.
func (i *Invoker) Running() int {
	i.processMu.Lock()
	defer i.processMu.Unlock()
	return len(i.processes)
}

// Cleanup stops all active engine processes.
func (i *Invoker) Cleanup() {
	i.processMu.Lock()
	defer i.processMu.Unlock()

	for dst, cmd := range i.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process writing %s", dst)
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logging.Warn("failed to kill ffmpeg process for %s: %v", dst, err)
			}
		}
	}
}

func removePartial(dst string) {
	removed, err := filesystem.RemoveIfExists(dst, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Warn("failed to remove partial output %s: %v", dst, err)
		return
	}
	if removed {
		logging.Debug("Removed partial output %s", dst)
	}
}

// tailWriter keeps the last limit bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	if len(w.buf) > 2*w.limit {
		w.buf = append(w.buf[:0], w.buf[len(w.buf)-w.limit:]...)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return tail(string(w.buf), w.limit)
}

// tail returns at most limit trailing bytes of s.
func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
