package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"clipper/internal/logging"
	"clipper/internal/metrics"
)

// ProbeResult is the metadata the pipelines need from a source file.
type ProbeResult struct {
	Width      int
	Height     int
	Duration   float64
	Framerate  float64
	VideoCodec string
	FormatName string
	HasAudio   bool
}

// Prober reads media metadata with ffprobe.
type Prober struct {
	binary  string
	timeout time.Duration
}

// NewProber returns a Prober that runs binary, or "ffprobe" from PATH when
// binary is empty. A positive timeout bounds each probe.
func NewProber(binary string, timeout time.Duration) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, timeout: timeout}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
}

type probeFormat struct {
	FormatName string      `json:"format_name"`
	Duration   json.Number `json:"duration"`
}

// Probe inspects sourcePath. The first video stream supplies geometry and
// frame rate; duration comes from the container format.
func (p *Prober) Probe(ctx context.Context, sourcePath string) (*ProbeResult, error) {
	start := time.Now()
	result, err := p.probe(ctx, sourcePath)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())

	label := "success"
	var pe *ProbeError
	if errors.As(err, &pe) {
		label = pe.Kind.String()
	}
	metrics.ProbeTotal.WithLabelValues(label).Inc()

	return result, err
}

func (p *Prober) probe(ctx context.Context, sourcePath string) (*ProbeResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		sourcePath,
	)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ProbeError{Kind: ProbeInvalid, Detail: "ffprobe did not finish: " + ctxErr.Error(), Err: ctxErr}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffprobe: " + err.Error()
		}
		return nil, &ProbeError{Kind: ProbeInvalid, Detail: tail(detail, maxDetailBytes), Err: err}
	}

	result, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	logging.Debug("Probed %s: %dx%d duration=%.3fs fps=%.3f codec=%s",
		sourcePath, result.Width, result.Height, result.Duration, result.Framerate, result.VideoCodec)
	return result, nil
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &ProbeError{Kind: ProbeInvalid, Detail: "malformed ffprobe output: " + err.Error(), Err: err}
	}

	result := &ProbeResult{FormatName: out.Format.FormatName}
	var video *probeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			result.HasAudio = true
		}
	}
	if video == nil {
		return nil, &ProbeError{Kind: ProbeNoVideoStream, Detail: "source has no video stream"}
	}

	if video.Width <= 0 || video.Height <= 0 {
		return nil, &ProbeError{Kind: ProbeInvalid, Detail: fmt.Sprintf("video stream has no usable dimensions (%dx%d)", video.Width, video.Height)}
	}

	duration, err := strconv.ParseFloat(string(out.Format.Duration), 64)
	if err != nil || math.IsNaN(duration) || duration <= 0 {
		return nil, &ProbeError{Kind: ProbeInvalid, Detail: fmt.Sprintf("format has no usable duration (%q)", string(out.Format.Duration))}
	}

	result.Width = video.Width
	result.Height = video.Height
	result.Duration = duration
	result.VideoCodec = video.CodecName
	result.Framerate = parseFrameRate(video.AvgFrameRate)
	if result.Framerate == 0 {
		result.Framerate = parseFrameRate(video.RFrameRate)
	}
	return result, nil
}

// parseFrameRate parses ffprobe's "num/den" rationals. Anything unusable is 0.
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil || f <= 0 || math.IsInf(f, 0) {
			return 0
		}
		return f
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	if f := n / d; f > 0 {
		return f
	}
	return 0
}
