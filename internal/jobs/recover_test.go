package jobs

import (
	"context"
	"sort"
	"testing"

	"clipper/internal/database"
)

func TestRecover(t *testing.T) {
	h := newHarness(t, nil)
	h.uploadAsset(t, "uploading")
	h.uploadAsset(t, "processing")
	h.setAssetStatus(t, "processing", database.AssetProcessing)
	h.uploadAsset(t, "done")
	h.setAssetStatus(t, "done", database.AssetProcessing, database.AssetCompleted)
	h.createClip(t, "pending", "done", 0, 1)
	h.createClip(t, "finished", "done", 0, 1)
	if _, err := h.db.UpdateClip(context.Background(), "finished", func(c *database.Clip) error {
		c.Status = database.ClipCompleted
		return nil
	}); err != nil {
		t.Fatalf("UpdateClip() error = %v", err)
	}

	if err := h.dispatch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	interrupted := h.asset(t, "processing")
	if interrupted.Status != database.AssetFailed || interrupted.ErrorDetail != interruptedDetail {
		t.Errorf("interrupted asset = %s %q, want failed %q", interrupted.Status, interrupted.ErrorDetail, interruptedDetail)
	}
	if got := h.asset(t, "done").Status; got != database.AssetCompleted {
		t.Errorf("completed asset status = %s", got)
	}

	var keys []string
	for {
		n, _ := h.queue.Len(context.Background())
		if n == 0 {
			break
		}
		job, err := h.queue.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		keys = append(keys, job.Key())
	}
	sort.Strings(keys)
	want := []string{"asset:uploading", "clip:pending"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("resubmitted = %v, want %v", keys, want)
	}
}

func TestRecoverLeavesOwnedWorkAlone(t *testing.T) {
	h := newHarness(t, nil)
	h.uploadAsset(t, "a1")
	h.setAssetStatus(t, "a1", database.AssetProcessing)
	h.createClip(t, "c1", "a1", 0, 1)

	h.dispatch.beginWork("asset:a1")
	h.dispatch.beginWork("clip:c1")
	defer h.dispatch.finishWork("asset:a1")
	defer h.dispatch.finishWork("clip:c1")

	if err := h.dispatch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if got := h.asset(t, "a1").Status; got != database.AssetProcessing {
		t.Errorf("owned asset status = %s, want processing", got)
	}
	if n, _ := h.queue.Len(context.Background()); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestRecoverThenRunCompletesUploads(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RecoverPending = true })
	h.uploadAsset(t, "a1")

	h.dispatch.Start()

	waitFor(t, "recovered upload to complete", func() bool {
		return h.asset(t, "a1").Status == database.AssetCompleted
	})
}
