// Package boltstore persists pool records in a local bbolt file. It backs the
// registry's Store interface for deployments that need pools to survive
// restarts; the registry itself stays unaware of the file format.
package boltstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/defiswap/defiswap-core-go/amm"
)

var bucketPools = []byte("pools")

// Store is a bbolt-backed pool store. Safe for concurrent use; bbolt
// serializes writers internally.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPools)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating pools bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns every persisted pool.
func (s *Store) Load() ([]*amm.Pool, error) {
	var pools []*amm.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(key, value []byte) error {
			var pool amm.Pool
			if err := json.Unmarshal(value, &pool); err != nil {
				return fmt.Errorf("decoding pool %s: %w", key, err)
			}
			pools = append(pools, &pool)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

// Save writes a single pool record, replacing any previous version.
func (s *Store) Save(pool *amm.Pool) error {
	encoded, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("encoding pool %s: %w", pool.Key.String(), err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).Put([]byte(pool.Key.String()), encoded)
	})
}
