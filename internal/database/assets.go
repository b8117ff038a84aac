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

const assetColumns = `id, original_filename, original_ref, proxy_ref, file_size, status,
	width, height, source_width, source_height, duration, framerate, error_detail,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var a Asset
	var status string
	var createdAt, updatedAt int64

	err := row.Scan(
		&a.ID, &a.OriginalFilename, &a.OriginalRef, &a.ProxyRef, &a.FileSize, &status,
		&a.Width, &a.Height, &a.SourceWidth, &a.SourceHeight, &a.Duration, &a.Framerate,
		&a.ErrorDetail, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = AssetStatus(status)
	a.CreatedAt = fromUnix(createdAt)
	a.UpdatedAt = fromUnix(updatedAt)
	return &a, nil
}

// CreateAsset inserts a new asset. An empty ID is assigned a UUID, an empty
// status defaults to uploading and a zero CreatedAt defaults to now.
func (d *Database) CreateAsset(ctx context.Context, a *Asset) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_asset", start, err) }()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AssetUploading
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = a.CreatedAt

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OriginalFilename, a.OriginalRef, a.ProxyRef, a.FileSize, string(a.Status),
		a.Width, a.Height, a.SourceWidth, a.SourceHeight, a.Duration, a.Framerate,
		a.ErrorDetail, unix(a.CreatedAt), unix(a.UpdatedAt),
	)
	return persistErr("create_asset", a.ID, err)
}

// GetAsset returns the asset with the given id or ErrNotFound.
func (d *Database) GetAsset(ctx context.Context, id string) (*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_asset", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a *Asset
	a, err = scanAsset(d.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get_asset", id, err)
	}
	return a, nil
}

// UpdateAsset applies fn to the current asset inside one transaction.
//
// A missing record yields Vanished with a nil error. If fn returns an error
// nothing is written and that error is returned. A status change that the
// state machine forbids is rejected with ErrInvalidTransition. ErrorDetail is
// cleared unless the new status is failed.
func (d *Database) UpdateAsset(ctx context.Context, id string, fn func(*Asset) error) (Outcome, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_asset", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Applied, persistErr("update_asset", id, err)
	}
	defer rollback(tx)

	current, err := scanAsset(tx.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		metrics.DBRecordsVanished.WithLabelValues("asset").Inc()
		logging.Debug("update_asset: asset=%s vanished", id)
		return Vanished, nil
	}
	if err != nil {
		return Applied, persistErr("update_asset", id, err)
	}

	next := *current
	if err = fn(&next); err != nil {
		return Applied, err
	}

	if next.Status != current.Status && !current.Status.CanTransition(next.Status) {
		err = fmt.Errorf("%w: asset %s %s -> %s", ErrInvalidTransition, id, current.Status, next.Status)
		return Applied, err
	}
	if next.Status == AssetFailed {
		if next.ErrorDetail == "" {
			next.ErrorDetail = "unknown error"
		}
	} else {
		next.ErrorDetail = ""
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now()

	res, err := tx.ExecContext(ctx, `
		UPDATE assets SET
			original_filename = ?, original_ref = ?, proxy_ref = ?, file_size = ?, status = ?,
			width = ?, height = ?, source_width = ?, source_height = ?,
			duration = ?, framerate = ?, error_detail = ?, updated_at = ?
		WHERE id = ?`,
		next.OriginalFilename, next.OriginalRef, next.ProxyRef, next.FileSize, string(next.Status),
		next.Width, next.Height, next.SourceWidth, next.SourceHeight,
		next.Duration, next.Framerate, next.ErrorDetail, unix(next.UpdatedAt),
		id,
	)
	if err != nil {
		return Applied, persistErr("update_asset", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		metrics.DBRecordsVanished.WithLabelValues("asset").Inc()
		return Vanished, nil
	}

	if err = tx.Commit(); err != nil {
		return Applied, persistErr("update_asset", id, err)
	}
	return Applied, nil
}

// DeleteAsset removes the asset record. Vanished means it was already gone.
func (d *Database) DeleteAsset(ctx context.Context, id string) (Outcome, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_asset", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return Applied, persistErr("delete_asset", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Vanished, nil
	}
	return Applied, nil
}

// ListExpiredAssets returns assets created strictly before cutoff, oldest first.
func (d *Database) ListExpiredAssets(ctx context.Context, cutoff time.Time) ([]*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_expired_assets", start, err) }()

	var assets []*Asset
	assets, err = d.queryAssets(ctx, "WHERE created_at < ? ORDER BY created_at", unix(cutoff))
	return assets, persistErr("list_expired_assets", "", err)
}

// ListAssetsByStatus returns assets in any of the given statuses, oldest first.
func (d *Database) ListAssetsByStatus(ctx context.Context, statuses ...AssetStatus) ([]*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_assets_by_status", start, err) }()

	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}

	var assets []*Asset
	assets, err = d.queryAssets(ctx, "WHERE status IN ("+placeholders(len(statuses))+") ORDER BY created_at", args...)
	return assets, persistErr("list_assets_by_status", "", err)
}

func (d *Database) queryAssets(ctx context.Context, where string, args ...any) ([]*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT "+assetColumns+" FROM assets "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
