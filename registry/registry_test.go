package registry

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defiswap/defiswap-core-go/amm"
)

var (
	assetA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assetB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	assetC = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(&Config{Logger: testLogger()})
	require.NoError(t, err)
	return r
}

func TestNewRegistryRequiresLogger(t *testing.T) {
	_, err := NewRegistry(&Config{})
	require.Error(t, err)
}

func TestResolvePairCanonicalOrder(t *testing.T) {
	key := ResolvePair(assetA, assetB)
	mirror := ResolvePair(assetB, assetA)

	assert.Equal(t, key, mirror, "mirror orderings must resolve to the same key")
	assert.Equal(t, assetA, key.AssetA)
	assert.Equal(t, assetB, key.AssetB)

	// Identical assets still produce a well-defined key; callers reject the
	// degenerate pair before using it.
	same := ResolvePair(assetA, assetA)
	assert.Equal(t, assetA, same.AssetA)
	assert.Equal(t, assetA, same.AssetB)
}

func TestGetBeforeCreateFails(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get(ResolvePair(assetA, assetB))
	assert.ErrorIs(t, err, ErrNotFound)

	err = r.View(ResolvePair(assetA, assetB), func(*amm.Pool) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, r.Len(), "a read must never create state")
}

func TestGetOrCreateIsLazyAndIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	key := ResolvePair(assetA, assetB)

	pool := r.GetOrCreate(key)
	require.NotNil(t, pool)
	assert.Zero(t, pool.ReserveA.Sign())
	assert.Zero(t, pool.ReserveB.Sign())
	assert.Zero(t, pool.TotalShares.Sign())
	assert.Equal(t, 1, r.Len())

	r.GetOrCreate(key)
	r.GetOrCreate(ResolvePair(assetB, assetA))
	assert.Equal(t, 1, r.Len(), "mirror orderings must share one record")
}

func TestUpdateCommitsOnSuccess(t *testing.T) {
	r := newTestRegistry(t)
	key := ResolvePair(assetA, assetB)

	err := r.Update(key, func(pool *amm.Pool) error {
		pool.ReserveA.SetInt64(100)
		pool.ReserveB.SetInt64(400)
		return nil
	})
	require.NoError(t, err)

	pool, err := r.Get(key)
	require.NoError(t, err)
	assert.EqualValues(t, 100, pool.ReserveA.Int64())
	assert.EqualValues(t, 400, pool.ReserveB.Int64())
}

func TestUpdateDiscardsOnError(t *testing.T) {
	r := newTestRegistry(t)
	key := ResolvePair(assetA, assetB)
	boom := errors.New("boom")

	require.NoError(t, r.Update(key, func(pool *amm.Pool) error {
		pool.ReserveA.SetInt64(100)
		return nil
	}))

	err := r.Update(key, func(pool *amm.Pool) error {
		pool.ReserveA.SetInt64(999)
		pool.ShareBalance[assetC] = big.NewInt(1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	pool, err := r.Get(key)
	require.NoError(t, err)
	assert.EqualValues(t, 100, pool.ReserveA.Int64(), "failed update must leave the pool untouched")
	assert.Empty(t, pool.ShareBalance)
}

func TestGetReturnsACopy(t *testing.T) {
	r := newTestRegistry(t)
	key := ResolvePair(assetA, assetB)

	require.NoError(t, r.Update(key, func(pool *amm.Pool) error {
		pool.ReserveA.SetInt64(50)
		return nil
	}))

	stolen, err := r.Get(key)
	require.NoError(t, err)
	stolen.ReserveA.SetInt64(123456)

	pool, err := r.Get(key)
	require.NoError(t, err)
	assert.EqualValues(t, 50, pool.ReserveA.Int64())
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	r := newTestRegistry(t)
	key := ResolvePair(assetA, assetB)
	const workers = 64

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = r.Update(key, func(pool *amm.Pool) error {
				pool.ReserveA.Add(pool.ReserveA, big.NewInt(1))
				return nil
			})
		}()
	}
	wg.Wait()

	pool, err := r.Get(key)
	require.NoError(t, err)
	assert.EqualValues(t, workers, pool.ReserveA.Int64())
}

func TestSnapshotIsOrderedAndDetached(t *testing.T) {
	r := newTestRegistry(t)
	keyAB := ResolvePair(assetA, assetB)
	keyAC := ResolvePair(assetA, assetC)
	r.GetOrCreate(keyAC)
	r.GetOrCreate(keyAB)

	pools := r.Snapshot()
	require.Len(t, pools, 2)
	assert.Equal(t, keyAB, pools[0].Key)
	assert.Equal(t, keyAC, pools[1].Key)

	pools[0].ReserveA.SetInt64(777)
	pool, err := r.Get(keyAB)
	require.NoError(t, err)
	assert.Zero(t, pool.ReserveA.Sign())
}

// failingStore rejects every save so commit ordering can be observed.
type failingStore struct{ err error }

func (s *failingStore) Load() ([]*amm.Pool, error) { return nil, nil }
func (s *failingStore) Save(pool *amm.Pool) error  { return s.err }

func TestStoreFailureAbortsCommit(t *testing.T) {
	storeErr := errors.New("disk full")
	r, err := NewRegistry(&Config{Logger: testLogger(), Store: &failingStore{err: storeErr}})
	require.NoError(t, err)

	key := ResolvePair(assetA, assetB)
	err = r.Update(key, func(pool *amm.Pool) error {
		pool.ReserveA.SetInt64(100)
		return nil
	})
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, err, ErrPersistFailed)

	pool, err := r.Get(key)
	require.NoError(t, err)
	assert.Zero(t, pool.ReserveA.Sign(), "store failure must discard the staged pool")
}
