package pricing

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const snapshotName = "price_cache"

// SnapshotStore persists price cache snapshots to the cache database so
// positions show a last-known ltp across restarts. The cache database is
// ephemeral by contract; losing a snapshot only means a cold start.
type SnapshotStore struct {
	cacheDB *sql.DB
	log     zerolog.Logger
}

// NewSnapshotStore creates a snapshot store backed by cache.db
func NewSnapshotStore(cacheDB *sql.DB, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		cacheDB: cacheDB,
		log:     log.With().Str("repo", "snapshot").Logger(),
	}
}

// Save serializes the cache and writes it as a single msgpack blob
func (s *SnapshotStore) Save(cache *Cache) error {
	data, err := cache.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to serialize price cache: %w", err)
	}

	_, err = s.cacheDB.Exec(`
		INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		snapshotName, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price cache snapshot: %w", err)
	}

	s.log.Info().Int("bytes", len(data)).Msg("Price cache snapshot saved")
	return nil
}

// Load restores the most recent snapshot into the cache. A missing
// snapshot is not an error; the cache simply starts cold.
func (s *SnapshotStore) Load(cache *Cache) error {
	var data []byte
	err := s.cacheDB.QueryRow(
		`SELECT data FROM snapshots WHERE name = ?`, snapshotName,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load price cache snapshot: %w", err)
	}

	if err := cache.Restore(data); err != nil {
		return fmt.Errorf("failed to restore price cache snapshot: %w", err)
	}
	return nil
}
