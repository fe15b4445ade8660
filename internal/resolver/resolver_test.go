package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/internal/provider"
	"github.com/mediolano-app/mip-activity-aggregator/internal/storage"
)

// fakeVoyager records batch requests and serves canned metadata.
type fakeVoyager struct {
	batches [][]string
	result  map[string]provider.TxInfo
	err     error
}

func (f *fakeVoyager) BatchTransactions(ctx context.Context, hashes []string) (map[string]provider.TxInfo, error) {
	f.batches = append(f.batches, hashes)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]provider.TxInfo)
	for _, h := range hashes {
		if info, ok := f.result[h]; ok {
			out[h] = info
		}
	}
	return out, nil
}

// fakeStore is an in-memory Store for observing persistence behavior.
type fakeStore struct {
	entries map[string]models.TransactionMeta
	loadErr error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]models.TransactionMeta)}
}

func (f *fakeStore) Connect() error { return nil }
func (f *fakeStore) Close() error   { return nil }
func (f *fakeStore) Ping() error    { return nil }
func (f *fakeStore) Migrate() error { return nil }

func (f *fakeStore) Load(ctx context.Context) (map[string]models.TransactionMeta, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]models.TransactionMeta, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) PutMany(ctx context.Context, entries map[string]models.TransactionMeta) error {
	if f.putErr != nil {
		return f.putErr
	}
	for k, v := range entries {
		f.entries[k] = v
	}
	return nil
}

func (f *fakeStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) { return 0, nil }
func (f *fakeStore) Stats(ctx context.Context) (*storage.CacheStats, error)        { return nil, nil }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestHydrateDiscardsStaleEntries(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute

	store := newFakeStore()
	store.entries["0xfresh"] = models.TransactionMeta{
		TimestampISO: "2024-06-01T11:00:00Z",
		CachedAt:     now.Add(-ttl + time.Millisecond).UnixMilli(),
	}
	store.entries["0xstale"] = models.TransactionMeta{
		TimestampISO: "2024-06-01T10:00:00Z",
		CachedAt:     now.Add(-ttl - time.Millisecond).UnixMilli(),
	}

	r := New(store, &fakeVoyager{}, Config{TTL: ttl, Clock: fixedClock(now)})
	r.Hydrate(context.Background())

	_, ok := r.Meta("0xfresh")
	assert.True(t, ok, "entry inside the TTL must survive hydration")
	_, ok = r.Meta("0xstale")
	assert.False(t, ok, "entry past the TTL must be treated as absent")
}

func TestResolveCapsBatchAtLimitNewestFirst(t *testing.T) {
	voyager := &fakeVoyager{result: map[string]provider.TxInfo{}}
	r := New(nil, voyager, Config{BatchLimit: 100})

	// 150 distinct pending hashes, already ordered newest-block-first.
	hashes := make([]string, 150)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("0x%d", i)
	}

	require.NoError(t, r.Resolve(context.Background(), hashes))

	require.Len(t, voyager.batches, 1)
	batch := voyager.batches[0]
	require.Len(t, batch, 100)
	assert.Equal(t, "0x0", batch[0], "newest transactions are prioritized")
	assert.Equal(t, "0x99", batch[99])
}

func TestResolveSkipsFreshAndDeduplicates(t *testing.T) {
	now := time.Now()
	voyager := &fakeVoyager{result: map[string]provider.TxInfo{
		"0x2": {TimestampISO: "2024-01-01T00:00:00Z", Sender: "0xabc"},
	}}
	r := New(nil, voyager, Config{Clock: fixedClock(now)})

	// Pre-resolve 0x1 so it is fresh.
	r.meta["0x1"] = models.TransactionMeta{
		TimestampISO: "2024-01-01T00:00:00Z",
		CachedAt:     now.UnixMilli(),
	}

	require.NoError(t, r.Resolve(context.Background(), []string{"0x1", "0x2", "0x2", ""}))

	require.Len(t, voyager.batches, 1)
	assert.Equal(t, []string{"0x2"}, voyager.batches[0])

	meta, ok := r.Meta("0x2")
	require.True(t, ok)
	assert.Equal(t, "0xabc", meta.Sender)
}

func TestResolveNothingPendingSkipsNetwork(t *testing.T) {
	voyager := &fakeVoyager{}
	r := New(nil, voyager, Config{})

	require.NoError(t, r.Resolve(context.Background(), nil))
	assert.Empty(t, voyager.batches)
}

func TestResolveFailureLeavesHashesUnresolved(t *testing.T) {
	voyager := &fakeVoyager{err: errors.New("explorer down")}
	store := newFakeStore()
	r := New(store, voyager, Config{})

	err := r.Resolve(context.Background(), []string{"0x1"})
	require.Error(t, err)

	_, ok := r.Meta("0x1")
	assert.False(t, ok)
	assert.Empty(t, store.entries, "nothing is persisted on batch failure")
	assert.False(t, r.IsBatchLoading())

	// The next pass retries the same hash.
	voyager.err = nil
	voyager.result = map[string]provider.TxInfo{"0x1": {TimestampISO: "2024-01-01T00:00:00Z"}}
	require.NoError(t, r.Resolve(context.Background(), []string{"0x1"}))
	_, ok = r.Meta("0x1")
	assert.True(t, ok)
}

func TestResolvePersistsStampedEntries(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	voyager := &fakeVoyager{result: map[string]provider.TxInfo{
		"0x1": {TimestampISO: "2024-01-01T00:00:00Z", Sender: "0xabc"},
	}}
	store := newFakeStore()
	r := New(store, voyager, Config{Clock: fixedClock(now)})

	require.NoError(t, r.Resolve(context.Background(), []string{"0x1"}))

	entry, ok := store.entries["0x1"]
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), entry.CachedAt)
	assert.Equal(t, "0xabc", entry.Sender)
}

func TestResolvePersistFailureIsSwallowed(t *testing.T) {
	voyager := &fakeVoyager{result: map[string]provider.TxInfo{
		"0x1": {TimestampISO: "2024-01-01T00:00:00Z"},
	}}
	store := newFakeStore()
	store.putErr = errors.New("disk full")
	r := New(store, voyager, Config{})

	require.NoError(t, r.Resolve(context.Background(), []string{"0x1"}))

	_, ok := r.Meta("0x1")
	assert.True(t, ok, "in-memory state is updated even when persistence fails")
}

func TestMetaTTLBoundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute
	r := New(nil, &fakeVoyager{}, Config{TTL: ttl, Clock: fixedClock(now)})

	r.meta["0xjust"] = models.TransactionMeta{
		TimestampISO: "2024-06-01T11:45:00Z",
		CachedAt:     now.Add(-ttl + time.Millisecond).UnixMilli(),
	}
	r.meta["0xpast"] = models.TransactionMeta{
		TimestampISO: "2024-06-01T11:44:00Z",
		CachedAt:     now.Add(-ttl - time.Millisecond).UnixMilli(),
	}

	_, ok := r.Meta("0xjust")
	assert.True(t, ok, "cachedAt = now - (TTL - 1ms) is fresh")
	_, ok = r.Meta("0xpast")
	assert.False(t, ok, "cachedAt = now - (TTL + 1ms) is stale")
}

func TestHydrateLoadFailureStartsEmpty(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("corrupt database")
	r := New(store, &fakeVoyager{}, Config{})

	r.Hydrate(context.Background())
	_, ok := r.Meta("0xanything")
	assert.False(t, ok)
}
