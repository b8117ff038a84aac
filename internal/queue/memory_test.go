package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryFIFO(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, Job{Kind: KindProxy, AssetID: id}); err != nil {
			t.Fatalf("Push(%s) error = %v", id, err)
		}
	}

	if n, _ := q.Len(ctx); n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if job.AssetID != want {
			t.Errorf("Pop() = %s, want %s", job.AssetID, want)
		}
	}
}

func TestMemoryFull(t *testing.T) {
	q := NewMemory(1)

	if err := q.Push(context.Background(), Job{Kind: KindProxy, AssetID: "a"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Push(ctx, Job{Kind: KindProxy, AssetID: "b"})
	if !errors.Is(err, ErrFull) {
		t.Errorf("Push() on full queue error = %v, want ErrFull", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Push() on full queue error = %v, want DeadlineExceeded", err)
	}
	if n, _ := q.Len(context.Background()); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestMemoryPushWaitsForRoom(t *testing.T) {
	q := NewMemory(1)
	ctx := context.Background()

	if err := q.Push(ctx, Job{Kind: KindProxy, AssetID: "a"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	pushErr := make(chan error, 1)
	go func() {
		pushErr <- q.Push(ctx, Job{Kind: KindProxy, AssetID: "b"})
	}()

	select {
	case err := <-pushErr:
		t.Fatalf("Push() returned %v while the queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	if job, err := q.Pop(ctx); err != nil || job.AssetID != "a" {
		t.Fatalf("Pop() = %v, %v, want a", job.AssetID, err)
	}

	select {
	case err := <-pushErr:
		if err != nil {
			t.Fatalf("Push() error = %v after room was made", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Push() did not return after room was made")
	}

	if job, err := q.Pop(ctx); err != nil || job.AssetID != "b" {
		t.Errorf("Pop() = %v, %v, want b", job.AssetID, err)
	}
}

func TestMemoryCloseReleasesBlockedPush(t *testing.T) {
	q := NewMemory(1)
	ctx := context.Background()

	if err := q.Push(ctx, Job{Kind: KindProxy, AssetID: "a"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	pushErr := make(chan error, 1)
	go func() {
		pushErr <- q.Push(ctx, Job{Kind: KindProxy, AssetID: "b"})
	}()

	time.Sleep(20 * time.Millisecond)
	_ = q.Close()

	select {
	case err := <-pushErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("blocked Push() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Push() did not return after Close()")
	}
}

func TestMemoryPopHonorsContext(t *testing.T) {
	q := NewMemory(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() error = %v, want DeadlineExceeded", err)
	}
}

func TestMemoryClose(t *testing.T) {
	q := NewMemory(1)
	ctx := context.Background()

	popErr := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		popErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Idempotent
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case err := <-popErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("blocked Pop() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop() did not return after Close()")
	}

	if err := q.Push(ctx, Job{Kind: KindProxy, AssetID: "a"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Push() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewMemoryDefaultSize(t *testing.T) {
	q := NewMemory(0)
	if cap(q.jobs) != DefaultMemorySize {
		t.Errorf("cap = %d, want %d", cap(q.jobs), DefaultMemorySize)
	}
}
