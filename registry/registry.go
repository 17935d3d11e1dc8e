package registry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defiswap/defiswap-core-go/amm"
)

var (
	// ErrNotFound is returned when a pair has no pool record.
	ErrNotFound = errors.New("pool not found")
	// ErrPersistFailed is returned by Update when the staged pool could not
	// be written to the store. The staged changes are discarded; a caller
	// whose fn performed external side effects must undo them on this error.
	ErrPersistFailed = errors.New("persisting pool failed")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Store abstracts how pool records are persisted. The registry works purely
// in memory when no Store is configured; a Store implementation decides
// whether records live in a file, a database, or anywhere else.
type Store interface {
	// Load returns every persisted pool. Called once at construction.
	Load() ([]*amm.Pool, error)
	// Save persists a single pool record. Called before each in-memory
	// commit; a failure aborts the enclosing operation.
	Save(pool *amm.Pool) error
}

// Config holds the configuration for a Registry.
type Config struct {
	Store  Store  // optional; nil keeps the registry memory-only
	Logger Logger // required
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// poolEntry pairs a pool record with its own lock. Operations on different
// pools proceed in parallel; operations on the same pool are serialized.
type poolEntry struct {
	mu   sync.RWMutex
	pool *amm.Pool
}

// Registry owns every pool record. Entries are created on first access and
// never removed: an emptied pool stays addressable and can be re-funded.
type Registry struct {
	mu      sync.RWMutex
	entries map[amm.PairKey]*poolEntry
	store   Store
	logger  Logger
}

// NewRegistry constructs a registry from a configuration, loading any
// persisted pools from the configured store.
func NewRegistry(cfg *Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		entries: make(map[amm.PairKey]*poolEntry),
		store:   cfg.Store,
		logger:  cfg.Logger,
	}

	if cfg.Store != nil {
		pools, err := cfg.Store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading pools from store: %w", err)
		}
		for _, pool := range pools {
			r.entries[pool.Key] = &poolEntry{pool: pool}
		}
		r.logger.Info("loaded pools from store", "count", len(pools))
	}

	return r, nil
}

// ResolvePair derives the canonical pair key for two asset identifiers.
// The key is order-insensitive: the byte-wise smaller address always becomes
// AssetA, so (a, b) and (b, a) address the same pool. Pure and total.
func ResolvePair(a, b common.Address) amm.PairKey {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return amm.PairKey{AssetA: a, AssetB: b}
	}
	return amm.PairKey{AssetA: b, AssetB: a}
}

// entry returns the entry for key, inserting a zero-initialized pool when
// create is set.
func (r *Registry) entry(key amm.PairKey, create bool) (*poolEntry, bool) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok || !create {
		return e, ok
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[key]; ok {
		return e, true
	}
	e = &poolEntry{pool: amm.NewPool(key)}
	r.entries[key] = e
	r.logger.Debug("created pool record", "pair", key.String())
	return e, true
}

// Update runs fn against the pool for key under the pool's write lock,
// lazily creating the record. fn receives a staged clone: returning an error
// discards every change, returning nil commits the clone (persisting it
// first when a store is configured; a store failure surfaces as
// ErrPersistFailed and discards the clone). No caller ever observes a
// partially updated pool.
func (r *Registry) Update(key amm.PairKey, fn func(pool *amm.Pool) error) error {
	e, _ := r.entry(key, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	staged := e.pool.Clone()
	if err := fn(staged); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Save(staged); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPersistFailed, key.String(), err)
		}
	}
	e.pool = staged
	return nil
}

// View runs fn against the pool for key under the pool's read lock. The pool
// passed to fn MUST NOT be modified or retained. Returns ErrNotFound when no
// record exists; a read never creates state.
func (r *Registry) View(key amm.PairKey, fn func(pool *amm.Pool) error) error {
	e, ok := r.entry(key, false)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key.String())
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.pool)
}

// GetOrCreate returns a copy of the pool for key, inserting a
// zero-initialized record on first reference. Never fails.
func (r *Registry) GetOrCreate(key amm.PairKey) *amm.Pool {
	e, _ := r.entry(key, true)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool.Clone()
}

// Get returns a copy of the pool for key, or ErrNotFound.
func (r *Registry) Get(key amm.PairKey) (*amm.Pool, error) {
	e, ok := r.entry(key, false)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key.String())
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool.Clone(), nil
}

// Len returns the number of pool records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a stable copy of every pool, ordered by pair key.
func (r *Registry) Snapshot() []*amm.Pool {
	r.mu.RLock()
	entries := make([]*poolEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	pools := make([]*amm.Pool, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		pools = append(pools, e.pool.Clone())
		e.mu.RUnlock()
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].Key.String() < pools[j].Key.String()
	})
	return pools
}
