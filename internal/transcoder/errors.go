package transcoder

import (
	"errors"
	"fmt"
)

var (
	ErrNoVideoStream   = errors.New("no video stream")
	ErrInvalidMetadata = errors.New("invalid media metadata")
	ErrInvalidRange    = errors.New("invalid clip range")
	ErrInvalidGeometry = errors.New("invalid source geometry")
	ErrEngineFailed    = errors.New("transcoding engine failed")
	ErrSpawnFailed     = errors.New("transcoding engine could not be started")
	ErrTimeout         = errors.New("transcoding engine timed out")
)

// ProbeErrorKind classifies probe failures.
type ProbeErrorKind int

const (
	// ProbeInvalid covers malformed or missing metadata and ffprobe failures.
	ProbeInvalid ProbeErrorKind = iota
	// ProbeNoVideoStream means the container has no video stream.
	ProbeNoVideoStream
)

func (k ProbeErrorKind) String() string {
	if k == ProbeNoVideoStream {
		return "no_video_stream"
	}
	return "invalid"
}

// ProbeError is returned by Prober.Probe.
type ProbeError struct {
	Kind   ProbeErrorKind
	Detail string
	Err    error
}

func (e *ProbeError) Error() string {
	sentinel := ErrInvalidMetadata
	if e.Kind == ProbeNoVideoStream {
		sentinel = ErrNoVideoStream
	}
	if e.Detail == "" {
		return "probe: " + sentinel.Error()
	}
	return fmt.Sprintf("probe: %s: %s", sentinel, e.Detail)
}

func (e *ProbeError) Is(target error) bool {
	switch target {
	case ErrNoVideoStream:
		return e.Kind == ProbeNoVideoStream
	case ErrInvalidMetadata:
		return e.Kind == ProbeInvalid
	}
	return false
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// DerivationError is returned when transform parameters cannot be derived.
// Reason is ErrInvalidRange or ErrInvalidGeometry.
type DerivationError struct {
	Reason error
	Detail string
}

func (e *DerivationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Detail
}

func (e *DerivationError) Unwrap() error {
	return e.Reason
}

// TranscodeErrorKind classifies engine failures.
type TranscodeErrorKind int

const (
	// EngineFailed means the engine ran and exited non-zero.
	EngineFailed TranscodeErrorKind = iota
	// SpawnFailed means the engine could not be started or its output
	// location could not be prepared.
	SpawnFailed
	// Timeout means the invocation's context expired before the engine exited.
	Timeout
)

func (k TranscodeErrorKind) String() string {
	switch k {
	case EngineFailed:
		return "engine_failed"
	case SpawnFailed:
		return "spawn_failed"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TranscodeError is returned by the Invoker. Detail carries the tail of the
// engine's stderr for EngineFailed.
type TranscodeError struct {
	Kind   TranscodeErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("%s transcode: %s", e.Op, e.sentinel())
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TranscodeError) sentinel() error {
	switch e.Kind {
	case SpawnFailed:
		return ErrSpawnFailed
	case Timeout:
		return ErrTimeout
	default:
		return ErrEngineFailed
	}
}

func (e *TranscodeError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}
