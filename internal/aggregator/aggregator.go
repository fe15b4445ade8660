// Package aggregator coordinates the seven contract event streams, the
// transaction metadata resolver and the classifier into a single filtered,
// stably-ordered activity feed for one subject address.
package aggregator

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/classifier"
	"github.com/mediolano-app/mip-activity-aggregator/internal/metrics"
	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/internal/resolver"
	"github.com/mediolano-app/mip-activity-aggregator/internal/stream"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// Config constructs an aggregator for one subject address. The subject is an
// explicit parameter, never ambient state, so feeds for different addresses
// can coexist.
type Config struct {
	SubjectAddress    string
	PageSize          int
	FactoryAddress    string
	TokenAddress      string
	FactoryStartBlock uint64
	TokenStartBlock   uint64
	Clock             func() time.Time
}

// Feed is one computed snapshot of the activity feed.
type Feed struct {
	Activities []models.ActivityItem `json:"activities"`
	Loading    bool                  `json:"loading"`
	Error      string                `json:"error,omitempty"`
}

// Stats summarizes aggregator progress for the stats endpoint.
type Stats struct {
	SubjectAddress string         `json:"subject_address"`
	Streams        []stream.Stats `json:"streams"`
	EventsLoaded   int            `json:"events_loaded"`
	AnyNextPage    bool           `json:"any_next_page"`
}

// Aggregator owns a fixed set of independent stream state machines and
// recomputes the unified feed from whatever subset has resolved so far.
type Aggregator struct {
	streams  []*stream.Stream
	resolver *resolver.Resolver
	subject  string
	clock    func() time.Time
	logger   *logrus.Logger

	metricsManager *metrics.Manager
	closed         atomic.Bool
}

// New creates an aggregator with its seven streams in declaration order:
// the five factory events, then the two token events. Error precedence
// follows this order.
func New(source stream.Source, res *resolver.Resolver, cfg Config) *Aggregator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	streams := make([]*stream.Stream, 0, len(models.FactoryEventNames)+len(models.TokenEventNames))
	for _, name := range models.FactoryEventNames {
		streams = append(streams, stream.New(source, stream.Spec{
			ContractAddress: cfg.FactoryAddress,
			EventName:       name,
			FromBlock:       cfg.FactoryStartBlock,
			PageSize:        cfg.PageSize,
		}))
	}
	for _, name := range models.TokenEventNames {
		streams = append(streams, stream.New(source, stream.Spec{
			ContractAddress: cfg.TokenAddress,
			EventName:       name,
			FromBlock:       cfg.TokenStartBlock,
			PageSize:        cfg.PageSize,
		}))
	}

	return &Aggregator{
		streams:  streams,
		resolver: res,
		subject:  utils.ToCanonicalAddress(cfg.SubjectAddress),
		clock:    cfg.Clock,
		logger:   utils.GetLogger(),
	}
}

// SetMetricsManager attaches the metrics manager
func (a *Aggregator) SetMetricsManager(m *metrics.Manager) {
	a.metricsManager = m
}

// Refresh discards all loaded pages and refetches the first page of every
// stream in parallel, followed by one metadata resolution pass.
func (a *Aggregator) Refresh(ctx context.Context) error {
	if a.closed.Load() {
		return nil
	}
	for _, s := range a.streams {
		s.Reset()
	}
	return a.LoadMore(ctx)
}

// LoadMore advances every stream that still has a next page, awaiting all
// fetches in parallel, then runs one metadata resolution pass. When no
// stream has a next page it performs no network activity at all.
func (a *Aggregator) LoadMore(ctx context.Context) error {
	if a.closed.Load() {
		return nil
	}

	targets := make([]*stream.Stream, 0, len(a.streams))
	for _, s := range a.streams {
		if s.HasNextPage() {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *stream.Stream) {
			defer wg.Done()
			err := s.FetchNextPage(ctx)
			if a.metricsManager != nil {
				spec := s.Spec()
				a.metricsManager.Prometheus().RecordStreamFetch(spec.EventName, err == nil)
			}
		}(s)
	}
	wg.Wait()

	// Results fetched after teardown are ignored: the feed is already gone.
	if a.closed.Load() {
		return nil
	}

	a.resolvePending(ctx)
	return nil
}

// resolvePending runs one metadata resolution pass over the distinct
// transaction hashes of all loaded events, newest block first.
func (a *Aggregator) resolvePending(ctx context.Context) {
	if a.resolver == nil {
		return
	}
	if err := a.resolver.Resolve(ctx, a.txHashesNewestFirst()); err != nil {
		a.logger.WithError(err).Warn("Metadata resolution pass failed")
	}
}

// txHashesNewestFirst returns the distinct transaction hashes across all
// loaded events ordered by descending block number, so the batch cap always
// favors the most recent transactions.
func (a *Aggregator) txHashesNewestFirst() []string {
	type hashBlock struct {
		hash  string
		block uint64
	}

	seen := make(map[string]struct{})
	ordered := make([]hashBlock, 0)
	for _, s := range a.streams {
		for _, ev := range s.Events() {
			if ev.TxHash == "" {
				continue
			}
			if _, dup := seen[ev.TxHash]; dup {
				continue
			}
			seen[ev.TxHash] = struct{}{}
			ordered = append(ordered, hashBlock{hash: ev.TxHash, block: ev.BlockNumber})
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].block > ordered[j].block
	})

	hashes := make([]string, len(ordered))
	for i, hb := range ordered {
		hashes[i] = hb.hash
	}
	return hashes
}

// Feed recomputes the unified activity feed from the current stream and
// resolver state. It is pure: no network, no mutation, safe to call on
// every state change.
func (a *Aggregator) Feed() Feed {
	feed := Feed{
		Activities: []models.ActivityItem{},
		Loading:    a.Loading(),
	}
	if err := a.Err(); err != nil {
		feed.Error = err.Error()
	}

	// A feed requires a subject; without one the well-defined result is
	// empty, not an error.
	if a.closed.Load() || a.subject == "" || a.subject == "0x0" {
		return feed
	}

	now := a.clock()
	dedup := make(map[string]struct{})

	for _, s := range a.streams {
		for _, ev := range s.Events() {
			// The same event fetched twice across overlapping pages
			// collapses; distinct event types in one transaction do not.
			key := ev.EventName + "|" + ev.TxHash + "|" + strconv.FormatUint(ev.BlockNumber, 10)
			if _, dup := dedup[key]; dup {
				continue
			}
			dedup[key] = struct{}{}

			var meta models.TransactionMeta
			if a.resolver != nil {
				meta, _ = a.resolver.Meta(ev.TxHash)
			}

			item := classifier.Classify(ev, a.subject, meta, now)
			if !a.involvesSubject(item, meta) {
				continue
			}
			feed.Activities = append(feed.Activities, item)
		}
	}

	sortActivities(feed.Activities)
	return feed
}

// involvesSubject keeps records where the subject is sender, receiver, or
// the transaction signer.
func (a *Aggregator) involvesSubject(item models.ActivityItem, meta models.TransactionMeta) bool {
	return utils.SameAddress(item.FromAddress, a.subject) ||
		utils.SameAddress(item.ToAddress, a.subject) ||
		utils.SameAddress(meta.Sender, a.subject)
}

// sortActivities orders by parsed timestamp descending; unparsable
// timestamps sort as epoch zero. Ties break by descending block number.
func sortActivities(items []models.ActivityItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ti := parseTimestamp(items[i].Timestamp)
		tj := parseTimestamp(items[j].Timestamp)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].Metadata.BlockNumber > items[j].Metadata.BlockNumber
	})
}

func parseTimestamp(ts string) time.Time {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Unix(0, 0)
	}
	return parsed
}

// Loading is true while any stream fetch or metadata batch is in flight.
func (a *Aggregator) Loading() bool {
	for _, s := range a.streams {
		if s.IsFetching() {
			return true
		}
	}
	return a.resolver != nil && a.resolver.IsBatchLoading()
}

// Err surfaces the first stream error in declaration order, if any.
func (a *Aggregator) Err() error {
	for _, s := range a.streams {
		if err := s.Err(); err != nil {
			return err
		}
	}
	return nil
}

// HasNextPage reports whether any stream can still advance.
func (a *Aggregator) HasNextPage() bool {
	for _, s := range a.streams {
		if s.HasNextPage() {
			return true
		}
	}
	return false
}

// Stats returns a snapshot of per-stream progress.
func (a *Aggregator) Stats() Stats {
	stats := Stats{
		SubjectAddress: a.subject,
		Streams:        make([]stream.Stats, 0, len(a.streams)),
	}
	for _, s := range a.streams {
		st := s.Stats()
		stats.Streams = append(stats.Streams, st)
		stats.EventsLoaded += st.EventsLoaded
		if st.HasNextPage {
			stats.AnyNextPage = true
		}
	}
	return stats
}

// Close tears the aggregator down. In-flight fetches may complete but their
// results are never surfaced through Feed again.
func (a *Aggregator) Close() {
	a.closed.Store(true)
}
