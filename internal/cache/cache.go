// Package cache persists pipeline results in LevelDB, keyed by a hash of the
// normalized query plus its options. Entries carry an absolute expiry; reads
// past expiry behave as misses and delete the stale record.
//
// Cache failures never fail a request: get degrades to a miss, set and delete
// log and return.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/haricheung/council/internal/types"
)

const keyPrefix = "query:"

// envelope wraps a stored result with its absolute expiry.
type envelope struct {
	ExpiresAt time.Time            `json:"expires_at"`
	Result    types.PipelineResult `json:"result"`
}

// Stats is the shape of GET /api/stats' cache section.
type Stats struct {
	Size      int    `json:"size"`
	Enabled   bool   `json:"enabled"`
	TTL       int    `json:"ttl"` // seconds
	Directory string `json:"directory"`
}

// Store is the LevelDB-backed response cache.
type Store struct {
	db      *leveldb.DB
	enabled bool
	ttl     time.Duration
	dir     string
	now     func() time.Time
}

// Open opens (or creates) the cache database at dir. When enabled is false
// or the database cannot be opened, the store still works as a no-op so the
// pipeline never depends on cache availability.
func Open(dir string, enabled bool, ttl time.Duration) *Store {
	s := &Store{enabled: enabled, ttl: ttl, dir: dir, now: time.Now}
	if !enabled {
		return s
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		slog.Warn("[CACHE] failed to open database, caching disabled", "dir", dir, "error", err)
		s.enabled = false
		return s
	}
	s.db = db
	slog.Info("[CACHE] initialized", "dir", dir, "ttl", ttl)
	return s
}

// Close releases the underlying database.
func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Key derives the deterministic cache key for a query and its options. The
// query is trimmed and lowercased; the options object is serialized with
// sorted keys so equal options always hash equally.
func Key(query string, opts types.QueryOptions) string {
	input := struct {
		Options types.QueryOptions `json:"options"`
		Query   string             `json:"query"`
	}{Options: opts, Query: strings.ToLower(strings.TrimSpace(query))}
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached result for the query, or ok=false on miss, expiry,
// disabled cache, or any read error.
func (s *Store) Get(query string, opts types.QueryOptions) (types.PipelineResult, bool) {
	if !s.enabled {
		return types.PipelineResult{}, false
	}
	key := Key(query, opts)
	data, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err != leveldb.ErrNotFound {
			slog.Warn("[CACHE] get failed", "error", err)
		}
		return types.PipelineResult{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("[CACHE] corrupt entry, dropping", "error", err)
		_ = s.db.Delete([]byte(key), nil)
		return types.PipelineResult{}, false
	}
	if s.now().After(env.ExpiresAt) {
		_ = s.db.Delete([]byte(key), nil)
		return types.PipelineResult{}, false
	}
	return env.Result, true
}

// Set stores a result under the query's key, stamping cached_at and resetting
// cache_hit so the stored copy reflects how it was produced, not served.
func (s *Store) Set(query string, opts types.QueryOptions, result types.PipelineResult) {
	if !s.enabled {
		return
	}
	result.Metadata.CacheHit = false
	result.Metadata.CachedAt = s.now().UTC().Format(time.RFC3339)

	env := envelope{ExpiresAt: s.now().Add(s.ttl), Result: result}
	data, err := json.Marshal(env)
	if err != nil {
		slog.Warn("[CACHE] marshal failed", "error", err)
		return
	}
	if err := s.db.Put([]byte(Key(query, opts)), data, nil); err != nil {
		slog.Warn("[CACHE] set failed", "error", err)
	}
}

// Delete removes one cached query.
func (s *Store) Delete(query string, opts types.QueryOptions) {
	if !s.enabled {
		return
	}
	if err := s.db.Delete([]byte(Key(query, opts)), nil); err != nil {
		slog.Warn("[CACHE] delete failed", "error", err)
	}
}

// Clear removes every cached response.
func (s *Store) Clear() error {
	if !s.enabled {
		return nil
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	slog.Info("[CACHE] cleared")
	return nil
}

// GetStats reports the cache size and configuration.
func (s *Store) GetStats() Stats {
	st := Stats{Enabled: s.enabled, TTL: int(s.ttl.Seconds()), Directory: s.dir}
	if !s.enabled {
		return st
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		st.Size++
	}
	return st
}
