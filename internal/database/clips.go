package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clipper/internal/logging"
	"clipper/internal/metrics"
)

const clipColumns = `id, asset_id, name, in_point, out_point, clip_ref, thumbnail_ref,
	file_size, status, error_detail, created_at, updated_at`

func scanClip(row rowScanner) (*Clip, error) {
	var c Clip
	var status string
	var createdAt, updatedAt int64

	err := row.Scan(
		&c.ID, &c.AssetID, &c.Name, &c.InPoint, &c.OutPoint, &c.ClipRef, &c.ThumbnailRef,
		&c.FileSize, &status, &c.ErrorDetail, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = ClipStatus(status)
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return &c, nil
}

// CreateClip inserts a new clip. An empty ID is assigned a UUID, an empty
// status defaults to processing and a zero CreatedAt defaults to now.
// The owning asset is not checked; the clip job reports a missing asset.
func (d *Database) CreateClip(ctx context.Context, c *Clip) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_clip", start, err) }()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = ClipProcessing
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO clips (`+clipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AssetID, c.Name, c.InPoint, c.OutPoint, c.ClipRef, c.ThumbnailRef,
		c.FileSize, string(c.Status), c.ErrorDetail, unix(c.CreatedAt), unix(c.UpdatedAt),
	)
	return persistErr("create_clip", c.ID, err)
}

// GetClip returns the clip with the given id or ErrNotFound.
func (d *Database) GetClip(ctx context.Context, id string) (*Clip, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_clip", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var c *Clip
	c, err = scanClip(d.db.QueryRowContext(ctx, "SELECT "+clipColumns+" FROM clips WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get_clip", id, err)
	}
	return c, nil
}

// ListClipsForAsset returns every clip cut from assetID, oldest first.
func (d *Database) ListClipsForAsset(ctx context.Context, assetID string) ([]*Clip, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_clips_for_asset", start, err) }()

	var clips []*Clip
	clips, err = d.queryClips(ctx, "WHERE asset_id = ? ORDER BY created_at, id", assetID)
	return clips, persistErr("list_clips_for_asset", assetID, err)
}

// UpdateClip applies fn to the current clip inside one transaction, with the
// same Vanished and transition rules as UpdateAsset.
func (d *Database) UpdateClip(ctx context.Context, id string, fn func(*Clip) error) (Outcome, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_clip", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Applied, persistErr("update_clip", id, err)
	}
	defer rollback(tx)

	current, err := scanClip(tx.QueryRowContext(ctx, "SELECT "+clipColumns+" FROM clips WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		metrics.DBRecordsVanished.WithLabelValues("clip").Inc()
		logging.Debug("update_clip: clip=%s vanished", id)
		return Vanished, nil
	}
	if err != nil {
		return Applied, persistErr("update_clip", id, err)
	}

	next := *current
	if err = fn(&next); err != nil {
		return Applied, err
	}

	if next.Status != current.Status && !current.Status.CanTransition(next.Status) {
		err = fmt.Errorf("%w: clip %s %s -> %s", ErrInvalidTransition, id, current.Status, next.Status)
		return Applied, err
	}
	if next.Status == ClipFailed {
		if next.ErrorDetail == "" {
			next.ErrorDetail = "unknown error"
		}
	} else {
		next.ErrorDetail = ""
	}
	next.ID = current.ID
	next.AssetID = current.AssetID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now()

	res, err := tx.ExecContext(ctx, `
		UPDATE clips SET
			name = ?, in_point = ?, out_point = ?, clip_ref = ?, thumbnail_ref = ?,
			file_size = ?, status = ?, error_detail = ?, updated_at = ?
		WHERE id = ?`,
		next.Name, next.InPoint, next.OutPoint, next.ClipRef, next.ThumbnailRef,
		next.FileSize, string(next.Status), next.ErrorDetail, unix(next.UpdatedAt),
		id,
	)
	if err != nil {
		return Applied, persistErr("update_clip", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		metrics.DBRecordsVanished.WithLabelValues("clip").Inc()
		return Vanished, nil
	}

	if err = tx.Commit(); err != nil {
		return Applied, persistErr("update_clip", id, err)
	}
	return Applied, nil
}

// DeleteClip removes the clip record. Vanished means it was already gone.
func (d *Database) DeleteClip(ctx context.Context, id string) (Outcome, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_clip", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM clips WHERE id = ?", id)
	if err != nil {
		return Applied, persistErr("delete_clip", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Vanished, nil
	}
	return Applied, nil
}

// ListExpiredClips returns clips created strictly before cutoff, oldest first.
func (d *Database) ListExpiredClips(ctx context.Context, cutoff time.Time) ([]*Clip, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_expired_clips", start, err) }()

	var clips []*Clip
	clips, err = d.queryClips(ctx, "WHERE created_at < ? ORDER BY created_at", unix(cutoff))
	return clips, persistErr("list_expired_clips", "", err)
}

// ListClipsByStatus returns clips in any of the given statuses, oldest first.
func (d *Database) ListClipsByStatus(ctx context.Context, statuses ...ClipStatus) ([]*Clip, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_clips_by_status", start, err) }()

	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}

	var clips []*Clip
	clips, err = d.queryClips(ctx, "WHERE status IN ("+placeholders(len(statuses))+") ORDER BY created_at", args...)
	return clips, persistErr("list_clips_by_status", "", err)
}

func (d *Database) queryClips(ctx context.Context, where string, args ...any) ([]*Clip, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT "+clipColumns+" FROM clips "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}
