package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/internal/provider"
	"github.com/mediolano-app/mip-activity-aggregator/internal/resolver"
	"github.com/mediolano-app/mip-activity-aggregator/internal/stream"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	factoryAddr = "0xfac"
	tokenAddr   = "0xt0c"
)

// fakeSource serves scripted pages per (contract, event) pair and counts
// every network call it receives.
type fakeSource struct {
	mu    sync.Mutex
	pages map[string][]stream.Page
	errs  map[string]error
	calls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages: make(map[string][]stream.Page),
		errs:  make(map[string]error),
	}
}

func key(contract, event string) string { return contract + "|" + event }

func (f *fakeSource) push(contract, event string, page stream.Page) {
	f.pages[key(contract, event)] = append(f.pages[key(contract, event)], page)
}

func (f *fakeSource) FetchPage(ctx context.Context, q stream.PageQuery) (stream.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	k := key(q.ContractAddress, q.EventName)
	if err := f.errs[k]; err != nil {
		return stream.Page{}, err
	}
	queue := f.pages[k]
	if len(queue) == 0 {
		return stream.Page{}, nil
	}
	page := queue[0]
	f.pages[k] = queue[1:]
	return page, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubVoyager records resolution batches and serves canned metadata.
type stubVoyager struct {
	mu      sync.Mutex
	batches [][]string
	result  map[string]provider.TxInfo
}

func (s *stubVoyager) BatchTransactions(ctx context.Context, hashes []string) (map[string]provider.TxInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, hashes)
	out := make(map[string]provider.TxInfo)
	for _, h := range hashes {
		if info, ok := s.result[h]; ok {
			out[h] = info
		}
	}
	return out, nil
}

func (s *stubVoyager) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newAggregator(source *fakeSource, voyager *stubVoyager, subject string) *Aggregator {
	res := resolver.New(nil, voyager, resolver.Config{
		Clock: func() time.Time { return testNow },
	})
	return New(source, res, Config{
		SubjectAddress: subject,
		PageSize:       10,
		FactoryAddress: factoryAddr,
		TokenAddress:   tokenAddr,
		Clock:          func() time.Time { return testNow },
	})
}

func transferEvent(from, to, hash string, block uint64) models.RawLogEvent {
	return models.RawLogEvent{
		ContractAddress: tokenAddr,
		EventName:       models.EventTransfer,
		Keys:            []string{"0xselector", from, to},
		Data:            []string{"0x7"},
		TxHash:          hash,
		BlockNumber:     block,
	}
}

func TestLoadMoreEndToEndMint(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{transferEvent("0x0", "0xabc", "0x1", 100)},
	})
	voyager := &stubVoyager{result: map[string]provider.TxInfo{
		"0x1": {TimestampISO: "2024-01-01T00:00:00Z", Sender: "0xdef"},
	}}

	agg := newAggregator(source, voyager, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))

	feed := agg.Feed()
	require.Len(t, feed.Activities, 1)
	item := feed.Activities[0]
	assert.Equal(t, models.ActivityMint, item.Type)
	assert.Equal(t, "0x1_100", item.ID)
	assert.Equal(t, "7", item.AssetID)
	assert.Equal(t, "2024-01-01T00:00:00Z", item.Timestamp)
	assert.Equal(t, "Starknet", item.Network)
	assert.False(t, feed.Loading)
	assert.Empty(t, feed.Error)
}

func TestFeedDeduplicatesByEventNameHashAndBlock(t *testing.T) {
	source := newFakeSource()
	// The same transfer appears on two overlapping pages.
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events:       []models.RawLogEvent{transferEvent("0xabc", "0xbbb", "0x1", 100)},
		Continuation: "page2",
	})
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{transferEvent("0xabc", "0xbbb", "0x1", 100)},
	})
	// A different event type in the same transaction must survive.
	source.push(tokenAddr, models.EventApproval, stream.Page{
		Events: []models.RawLogEvent{{
			ContractAddress: tokenAddr,
			EventName:       models.EventApproval,
			Data:            []string{"0xabc", "0xoperator", "0x7"},
			TxHash:          "0x1",
			BlockNumber:     100,
		}},
	})

	agg := newAggregator(source, &stubVoyager{}, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))
	require.NoError(t, agg.LoadMore(context.Background()))

	feed := agg.Feed()
	require.Len(t, feed.Activities, 2)

	types := []models.ActivityType{feed.Activities[0].Type, feed.Activities[1].Type}
	assert.Contains(t, types, models.ActivityTransferOut)
	assert.Contains(t, types, models.ActivityApproval)
}

func TestFeedFiltersBySubjectIncludingSender(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{
			transferEvent("0xabc", "0xbbb", "0x1", 100), // subject is sender
			transferEvent("0xccc", "0xabc", "0x2", 101), // subject is receiver
			transferEvent("0xccc", "0xddd", "0x3", 102), // subject signed the tx
			transferEvent("0xccc", "0xddd", "0x4", 103), // unrelated
		},
	})
	voyager := &stubVoyager{result: map[string]provider.TxInfo{
		"0x3": {TimestampISO: "2024-01-01T00:00:00Z", Sender: "0xabc"},
	}}

	agg := newAggregator(source, voyager, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))

	feed := agg.Feed()
	require.Len(t, feed.Activities, 3)
	for _, item := range feed.Activities {
		assert.NotEqual(t, "0x4_103", item.ID, "unrelated activity must be filtered out")
	}
}

func TestFeedEmptySubjectYieldsEmptyFeed(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{transferEvent("0x0", "0xabc", "0x1", 100)},
	})

	agg := newAggregator(source, &stubVoyager{}, "")
	require.NoError(t, agg.LoadMore(context.Background()))

	assert.Empty(t, agg.Feed().Activities)
}

func TestFeedSortsByTimestampThenBlock(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{
			transferEvent("0xabc", "0xb", "0xold", 50),
			transferEvent("0xabc", "0xb", "0xnew", 60),
			transferEvent("0xabc", "0xb", "0xbad", 999), // unparsable timestamp
			transferEvent("0xabc", "0xb", "0xtie", 70),  // same timestamp as 0xold
		},
	})
	voyager := &stubVoyager{result: map[string]provider.TxInfo{
		"0xold": {TimestampISO: "2024-01-01T00:00:00Z"},
		"0xnew": {TimestampISO: "2024-01-02T00:00:00Z"},
		"0xbad": {TimestampISO: "sometime"},
		"0xtie": {TimestampISO: "2024-01-01T00:00:00Z"},
	}}

	agg := newAggregator(source, voyager, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))

	feed := agg.Feed()
	require.Len(t, feed.Activities, 4)
	assert.Equal(t, "0xnew", feed.Activities[0].Hash)
	assert.Equal(t, "0xtie", feed.Activities[1].Hash, "timestamp ties break by higher block")
	assert.Equal(t, "0xold", feed.Activities[2].Hash)
	assert.Equal(t, "0xbad", feed.Activities[3].Hash, "unparsable timestamps sort as epoch zero")
}

func TestLoadMoreIsNoOpWhenExhausted(t *testing.T) {
	source := newFakeSource()
	voyager := &stubVoyager{}
	agg := newAggregator(source, voyager, "0xabc")

	// First pass exhausts all seven streams (empty pages, no continuation).
	require.NoError(t, agg.LoadMore(context.Background()))
	calls := source.callCount()
	assert.Equal(t, 7, calls)
	assert.False(t, agg.HasNextPage())

	// Further passes touch neither the chain nor the explorer.
	require.NoError(t, agg.LoadMore(context.Background()))
	require.NoError(t, agg.LoadMore(context.Background()))
	assert.Equal(t, calls, source.callCount())
	assert.Zero(t, voyager.batchCount())
}

func TestStreamErrorIsIsolated(t *testing.T) {
	source := newFakeSource()
	source.errs[key(tokenAddr, models.EventTransfer)] = errors.New("rpc unavailable")
	source.push(factoryAddr, models.EventCollectionCreated, stream.Page{
		Events: []models.RawLogEvent{{
			ContractAddress: factoryAddr,
			EventName:       models.EventCollectionCreated,
			Data:            []string{"0xabc", "0xcoll"},
			TxHash:          "0x9",
			BlockNumber:     200,
		}},
	})

	agg := newAggregator(source, &stubVoyager{}, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))

	feed := agg.Feed()
	require.Len(t, feed.Activities, 1, "healthy streams keep serving")
	assert.Equal(t, models.ActivityCollectionCreate, feed.Activities[0].Type)
	assert.Contains(t, feed.Error, "rpc unavailable")
}

func TestResolutionBatchIsNewestBlockFirst(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{
			transferEvent("0xabc", "0xb", "0xa", 100),
			transferEvent("0xabc", "0xb", "0xc", 300),
			transferEvent("0xabc", "0xb", "0xb", 200),
		},
	})
	voyager := &stubVoyager{}

	agg := newAggregator(source, voyager, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))

	require.Equal(t, 1, voyager.batchCount())
	assert.Equal(t, []string{"0xc", "0xb", "0xa"}, voyager.batches[0])
}

func TestCloseDropsFeedAndStopsFetching(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events:       []models.RawLogEvent{transferEvent("0x0", "0xabc", "0x1", 100)},
		Continuation: "more",
	})

	agg := newAggregator(source, &stubVoyager{}, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))
	require.NotEmpty(t, agg.Feed().Activities)

	agg.Close()
	calls := source.callCount()

	assert.Empty(t, agg.Feed().Activities)
	require.NoError(t, agg.LoadMore(context.Background()))
	assert.Equal(t, calls, source.callCount())
}

func TestRefreshDiscardsLoadedPagesAndRefetches(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{transferEvent("0x0", "0xabc", "0x1", 100)},
	})

	agg := newAggregator(source, &stubVoyager{}, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))
	require.Len(t, agg.Feed().Activities, 1)
	require.False(t, agg.HasNextPage())

	// The refetched chain state no longer carries the event.
	require.NoError(t, agg.Refresh(context.Background()))
	assert.Empty(t, agg.Feed().Activities)

	// Refresh fetched a fresh first page on all seven streams.
	assert.Equal(t, 14, source.callCount())
}

func TestStatsAggregateAcrossStreams(t *testing.T) {
	source := newFakeSource()
	source.push(tokenAddr, models.EventTransfer, stream.Page{
		Events: []models.RawLogEvent{
			transferEvent("0xabc", "0xb", "0x1", 100),
			transferEvent("0xabc", "0xb", "0x2", 101),
		},
		Continuation: "more",
	})

	agg := newAggregator(source, &stubVoyager{}, "0xabc")
	require.NoError(t, agg.LoadMore(context.Background()))

	stats := agg.Stats()
	assert.Equal(t, "0xabc", stats.SubjectAddress)
	assert.Len(t, stats.Streams, 7)
	assert.Equal(t, 2, stats.EventsLoaded)
	assert.True(t, stats.AnyNextPage)
}
