// Package settings provides a short-TTL cached getter for mutable, hot-path
// tunables (cache TTLs, device timeouts, worker concurrency) that live in the
// runtime_settings table. This is deliberately separate from config.Config:
// the former is loaded once at process start and never mutated, while values
// read through Store may change between requests and are re-read from the
// database once the cached copy goes stale.
package settings

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/pkg/util"
)

// Well-known runtime_settings keys read by the engine.
const (
	KeyDefaultBlobTTL        = "default_blob_ttl"
	KeyCommandTTLPrefix      = "command_ttl."
	KeyWorkerConcurrency     = "worker_concurrency"
	KeySSHConnectTimeout     = "ssh_connect_timeout"
	KeySSHAuthTimeout        = "ssh_auth_timeout"
	KeySSHBannerTimeout      = "ssh_banner_timeout"
	KeySSHBlockingTimeout    = "ssh_blocking_timeout"
	KeySSHReadTimeout        = "ssh_read_timeout"
	KeySSHSessionTimeout     = "ssh_session_timeout"
	KeyAsyncDeviceLimit      = "async_device_limit"
)

// DefaultTTL is the cache lifetime applied to a Store when none is given.
const DefaultTTL = 30 * time.Second

type cachedValue struct {
	value     string
	fetchedAt time.Time
}

// Store reads runtime_settings rows through a short-lived in-memory cache so
// the hot path does not hit the database on every lookup, while still
// picking up operator edits within one TTL window.
type Store struct {
	db  *sqlx.DB
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]cachedValue
}

// New creates a Store backed by db. A ttl <= 0 uses DefaultTTL.
func New(db *sqlx.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl, cache: make(map[string]cachedValue)}
}

// Get returns the current value of key. ok is false if the key has never
// been set in runtime_settings.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	s.mu.RLock()
	cached, found := s.cache[key]
	s.mu.RUnlock()
	if found && time.Since(cached.fetchedAt) < s.ttl {
		return cached.value, true, nil
	}

	var v string
	err = s.db.GetContext(ctx, &v, `SELECT value FROM runtime_settings WHERE key = $1`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}

	s.mu.Lock()
	s.cache[key] = cachedValue{value: v, fetchedAt: time.Now()}
	s.mu.Unlock()

	return v, true, nil
}

// GetDuration returns key parsed as a time.Duration, or fallback if the key
// is unset or cannot be parsed.
func (s *Store) GetDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		util.WithField("key", key).Warnf("settings: invalid duration %q, using fallback", v)
		return fallback
	}
	return d
}

// GetInt returns key parsed as an int, or fallback if the key is unset or
// cannot be parsed.
func (s *Store) GetInt(ctx context.Context, key string, fallback int) int {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		util.WithField("key", key).Warnf("settings: invalid int %q, using fallback", v)
		return fallback
	}
	return n
}

// CommandTTL returns the per-command TTL override for command, or fallback
// if none is configured.
func (s *Store) CommandTTL(ctx context.Context, command string, fallback time.Duration) time.Duration {
	return s.GetDuration(ctx, KeyCommandTTLPrefix+command, fallback)
}

// Set writes key to runtime_settings and invalidates its cache entry so the
// next Get observes the new value immediately instead of waiting out the TTL.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// Invalidate clears the entire cache, forcing the next Get for any key to
// hit the database regardless of TTL.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]cachedValue)
	s.mu.Unlock()
}
