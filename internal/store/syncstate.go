package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// sync_state keys.
const (
	keyLocalSeq     = "local_seq"
	keyCacheVersion = "cache_version"
)

// SetCheckpoint updates a sync checkpoint value.
func (db *DB) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value. Returns "" if unset.
func (db *DB) GetCheckpoint(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// NextLocalSeq increments and returns the monotonic local sequence counter.
// Used to assign ids to records that arrive without a server id; local ids
// are negative so they can never collide with server-assigned ones.
func (db *DB) NextLocalSeq() (int64, error) {
	cur, err := db.getCounter(keyLocalSeq)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := db.SetCheckpoint(keyLocalSeq, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return -next, nil
}

// CacheVersion returns the persisted cache version counter.
func (db *DB) CacheVersion() (int64, error) {
	return db.getCounter(keyCacheVersion)
}

// SetCacheVersion persists the cache version counter.
func (db *DB) SetCacheVersion(v int64) error {
	return db.SetCheckpoint(keyCacheVersion, strconv.FormatInt(v, 10))
}

func (db *DB) getCounter(key string) (int64, error) {
	raw, err := db.GetCheckpoint(key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s counter %q: %w", key, raw, err)
	}
	return v, nil
}
