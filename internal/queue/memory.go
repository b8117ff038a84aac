package queue

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMemorySize is the buffer used when NewMemory is given a non-positive size.
const DefaultMemorySize = 256

// Memory is a bounded in-process queue. Jobs still buffered at Close are dropped.
type Memory struct {
	jobs      chan Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates an in-memory queue holding up to size jobs.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Push enqueues job, waiting for room while the buffer is full. If ctx ends
// first the error wraps both ErrFull and the context error.
func (m *Memory) Push(ctx context.Context, job Job) error {
	select {
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case m.jobs <- job:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrFull, ctx.Err())
	}
}

func (m *Memory) Pop(ctx context.Context) (Job, error) {
	select {
	case <-m.done:
		return Job{}, ErrClosed
	default:
	}

	select {
	case job := <-m.jobs:
		return job, nil
	case <-m.done:
		return Job{}, ErrClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (m *Memory) Len(context.Context) (int, error) {
	return len(m.jobs), nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
