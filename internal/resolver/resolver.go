// Package resolver resolves transaction hashes to wall-clock timestamps and
// signer addresses through the Voyager batch endpoint, backed by a durable
// TTL cache so repeated aggregation passes stay cheap.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/metrics"
	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/internal/provider"
	"github.com/mediolano-app/mip-activity-aggregator/internal/storage"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// DefaultBatchLimit caps how many hashes one metadata batch may carry.
const DefaultBatchLimit = 100

// Config holds resolver tuning knobs. Clock is injectable for tests.
type Config struct {
	TTL        time.Duration
	BatchLimit int
	Clock      func() time.Time
}

// Resolver owns the in-memory metadata map and the durable cache. The cache
// is an optimization: every failure path degrades to "unresolved", never to
// a failed aggregation.
type Resolver struct {
	store  storage.Store
	client provider.VoyagerClient
	logger *logrus.Logger

	ttl        time.Duration
	batchLimit int
	clock      func() time.Time

	metricsManager *metrics.Manager

	mu            sync.Mutex
	meta          map[string]models.TransactionMeta
	batchInFlight bool
}

// New creates a resolver. store may be nil for a memory-only resolver.
func New(store storage.Store, client provider.VoyagerClient, cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = models.TxMetaTTL
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Resolver{
		store:      store,
		client:     client,
		logger:     utils.GetLogger(),
		ttl:        cfg.TTL,
		batchLimit: cfg.BatchLimit,
		clock:      cfg.Clock,
		meta:       make(map[string]models.TransactionMeta),
	}
}

// SetMetricsManager attaches the metrics manager
func (r *Resolver) SetMetricsManager(m *metrics.Manager) {
	r.metricsManager = m
}

// Hydrate loads the durable cache into memory, discarding stale entries.
// A read failure degrades to an empty cache.
func (r *Resolver) Hydrate(ctx context.Context) {
	if r.store == nil {
		return
	}

	entries, err := r.store.Load(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Cache hydration failed, starting empty")
		return
	}

	now := r.clock()
	loaded := 0

	r.mu.Lock()
	for hash, meta := range entries {
		if !r.fresh(meta, now) {
			continue
		}
		r.meta[hash] = meta
		loaded++
	}
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"loaded":    loaded,
		"discarded": len(entries) - loaded,
	}).Debug("Transaction metadata cache hydrated")
}

// Resolve fetches metadata for the unresolved subset of the given hashes.
// hashes must be ordered newest-block-first: when more than the batch limit
// are pending, the most recent transactions win. Only one batch is in flight
// at a time; a call that finds one running returns immediately.
func (r *Resolver) Resolve(ctx context.Context, hashes []string) error {
	now := r.clock()

	r.mu.Lock()
	if r.batchInFlight {
		r.mu.Unlock()
		return nil
	}

	hits := 0
	pending := make([]string, 0, len(hashes))
	seen := make(map[string]struct{}, len(hashes))
	for _, hash := range hashes {
		if hash == "" {
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		if meta, ok := r.meta[hash]; ok && r.fresh(meta, now) {
			hits++
			continue
		}
		pending = append(pending, hash)
		if len(pending) >= r.batchLimit {
			break
		}
	}

	if r.metricsManager != nil {
		r.metricsManager.Prometheus().RecordCacheHits(hits)
		r.metricsManager.Prometheus().RecordCacheMisses(len(pending))
	}

	if len(pending) == 0 {
		r.mu.Unlock()
		return nil
	}
	r.batchInFlight = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.batchInFlight = false
		r.mu.Unlock()
	}()

	batchStart := time.Now()
	resolved, err := r.client.BatchTransactions(ctx, pending)
	if r.metricsManager != nil {
		r.metricsManager.Prometheus().RecordMetadataBatch(err == nil, time.Since(batchStart))
	}
	if err != nil {
		r.logger.WithError(err).WithField("pending", len(pending)).
			Warn("Transaction metadata batch failed")
		return err
	}

	stamped := make(map[string]models.TransactionMeta, len(resolved))
	cachedAt := r.clock().UnixMilli()
	for hash, info := range resolved {
		stamped[hash] = models.TransactionMeta{
			TimestampISO: info.TimestampISO,
			Sender:       info.Sender,
			CachedAt:     cachedAt,
		}
	}

	r.mu.Lock()
	for hash, meta := range stamped {
		r.meta[hash] = meta
	}
	r.mu.Unlock()

	// Best-effort persistence; the in-memory state is already updated.
	if r.store != nil && len(stamped) > 0 {
		if err := r.store.PutMany(ctx, stamped); err != nil {
			r.logger.WithError(err).Warn("Failed to persist transaction metadata")
		}
	}

	return nil
}

// Meta returns the fresh metadata for a hash, if resolved.
func (r *Resolver) Meta(hash string) (models.TransactionMeta, bool) {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.meta[hash]
	if !ok || !r.fresh(meta, now) {
		return models.TransactionMeta{}, false
	}
	return meta, true
}

// IsBatchLoading reports whether a batch fetch is in flight.
func (r *Resolver) IsBatchLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchInFlight
}

func (r *Resolver) fresh(meta models.TransactionMeta, now time.Time) bool {
	return now.UnixMilli()-meta.CachedAt <= r.ttl.Milliseconds()
}
