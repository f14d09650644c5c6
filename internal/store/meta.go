package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/starford/glide/internal/apperr"
)

// Keys in the sync_meta table.
const (
	MetaHydrated       = "hydrated"
	MetaLastFullSyncAt = "last_full_sync_at"
	MetaLastSyncAt     = "last_sync_at"

	// MetaPullSince is the updated_since watermark for incremental pulls.
	// It lags last_sync_at while remote changes are deferred.
	MetaPullSince = "pull_since"
)

// GetMeta returns the value for key and whether it was set.
func (db *DB) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Storage("store: get meta", err)
	}
	return v, true, nil
}

// SetMeta stores value under key.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	return db.Write(ctx, func(tx *sql.Tx) error {
		return SetMetaTx(tx, key, value)
	})
}

// SetMetaTx stores value under key inside tx.
func SetMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return apperr.Storage("store: set meta", err)
}

// DeleteMetaTx removes key inside tx.
func DeleteMetaTx(tx *sql.Tx, key string) error {
	_, err := tx.Exec(`DELETE FROM sync_meta WHERE key = ?`, key)
	return apperr.Storage("store: delete meta", err)
}

// Hydrated reports whether the initial full pull has completed.
func (db *DB) Hydrated(ctx context.Context) (bool, error) {
	v, ok, err := db.GetMeta(ctx, MetaHydrated)
	if err != nil || !ok {
		return false, err
	}
	return v == "1", nil
}

// MetaTime reads a timestamp stored with SetMetaTime. The zero time is
// returned when key is unset.
func (db *DB) MetaTime(ctx context.Context, key string) (time.Time, error) {
	v, ok, err := db.GetMeta(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, apperr.Storage("store: parse meta time", err)
	}
	return FromUnix(n), nil
}

// SetMetaTimeTx stores t under key inside tx.
func SetMetaTimeTx(tx *sql.Tx, key string, t time.Time) error {
	return SetMetaTx(tx, key, strconv.FormatInt(Unix(t), 10))
}
