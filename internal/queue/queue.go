// Package queue carries job descriptors from submitters to dispatcher
// workers. Two backends are provided: a bounded in-memory channel and a
// Redis list that survives process restarts.
package queue

import (
	"context"
	"errors"
	"time"
)

// Kind names the pipeline a job runs.
type Kind string

const (
	KindProxy Kind = "proxy"
	KindClip  Kind = "clip"
)

var (
	// ErrClosed is returned by Push and Pop after Close.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by Push when a bounded queue had no room before the
	// context ended.
	ErrFull = errors.New("queue full")
)

// Job is a queued unit of work. It carries ids only; workers load the
// current record state when the job runs.
type Job struct {
	Kind        Kind      `json:"kind"`
	AssetID     string    `json:"asset_id"`
	ClipID      string    `json:"clip_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Key identifies the record a job owns while it runs. Proxy and clip jobs
// for the same asset have distinct keys.
func (j Job) Key() string {
	if j.Kind == KindClip {
		return "clip:" + j.ClipID
	}
	return "asset:" + j.AssetID
}

// Validate reports whether the descriptor names everything its pipeline needs.
func (j Job) Validate() error {
	switch j.Kind {
	case KindProxy:
		if j.AssetID == "" {
			return errors.New("proxy job requires an asset id")
		}
	case KindClip:
		if j.AssetID == "" || j.ClipID == "" {
			return errors.New("clip job requires asset and clip ids")
		}
	default:
		return errors.New("unknown job kind " + string(j.Kind))
	}
	return nil
}

// Queue is a FIFO of job descriptors shared by submitters and workers.
type Queue interface {
	// Push enqueues a job without waiting for a worker.
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available, ctx ends or the queue is closed.
	Pop(ctx context.Context) (Job, error)
	// Len reports the number of waiting jobs.
	Len(ctx context.Context) (int, error)
	Close() error
}
