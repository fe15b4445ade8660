package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
)

// fakeSource serves a fixed sequence of pages, recording every query.
type fakeSource struct {
	pages   []Page
	queries []PageQuery
	err     error
}

func (f *fakeSource) FetchPage(ctx context.Context, q PageQuery) (Page, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return Page{}, f.err
	}
	idx := len(f.queries) - 1
	if idx >= len(f.pages) {
		return Page{}, nil
	}
	return f.pages[idx], nil
}

func makeEvents(n int, prefix string) []models.RawLogEvent {
	events := make([]models.RawLogEvent, n)
	for i := range events {
		events[i] = models.RawLogEvent{
			EventName:   models.EventTransfer,
			TxHash:      fmt.Sprintf("%s%d", prefix, i),
			BlockNumber: uint64(100 + i),
		}
	}
	return events
}

func TestStreamAppendsPagesInOrder(t *testing.T) {
	source := &fakeSource{
		pages: []Page{
			{Events: makeEvents(2, "0xa"), Continuation: "tok1"},
			{Events: makeEvents(3, "0xb"), Continuation: ""},
		},
	}
	s := New(source, Spec{ContractAddress: "0x1", EventName: models.EventTransfer, PageSize: 10})

	assert.True(t, s.HasNextPage(), "fresh stream has a first page")
	assert.Empty(t, s.Events())

	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Len(t, s.Events(), 2)
	assert.True(t, s.HasNextPage())

	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Len(t, s.Events(), 5)
	assert.False(t, s.HasNextPage(), "empty continuation token exhausts the stream")

	// Second fetch carried the continuation token from the first
	require.Len(t, source.queries, 2)
	assert.Equal(t, "", source.queries[0].Continuation)
	assert.Equal(t, "tok1", source.queries[1].Continuation)
}

func TestStreamExhaustedFetchIsNoop(t *testing.T) {
	source := &fakeSource{pages: []Page{{Events: makeEvents(1, "0xa")}}}
	s := New(source, Spec{ContractAddress: "0x1", EventName: models.EventTransfer})

	require.NoError(t, s.FetchNextPage(context.Background()))
	require.False(t, s.HasNextPage())

	// No further network activity once exhausted
	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Len(t, source.queries, 1)
	assert.Len(t, s.Events(), 1)
}

func TestStreamErrorIsTerminalAndIsolated(t *testing.T) {
	source := &fakeSource{err: errors.New("rpc unavailable")}
	s := New(source, Spec{ContractAddress: "0x1", EventName: models.EventApproval})

	err := s.FetchNextPage(context.Background())
	require.Error(t, err)
	assert.Error(t, s.Err())
	assert.False(t, s.HasNextPage())

	// Errored is terminal: further fetches do not hit the source
	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Len(t, source.queries, 1)
}

func TestStreamResetRestoresFirstPage(t *testing.T) {
	source := &fakeSource{pages: []Page{
		{Events: makeEvents(2, "0xa")},
		{Events: makeEvents(1, "0xb"), Continuation: "t"},
	}}
	s := New(source, Spec{ContractAddress: "0x1", EventName: models.EventTransfer})

	require.NoError(t, s.FetchNextPage(context.Background()))
	require.False(t, s.HasNextPage())

	s.Reset()
	assert.Empty(t, s.Events())
	assert.True(t, s.HasNextPage(), "reset stream has a first page again")

	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Len(t, s.Events(), 1)
	assert.Equal(t, "", source.queries[1].Continuation, "reset clears the continuation token")
}

func TestStreamResetClearsTerminalError(t *testing.T) {
	source := &fakeSource{err: errors.New("rpc unavailable")}
	s := New(source, Spec{ContractAddress: "0x1", EventName: models.EventTransfer})

	require.Error(t, s.FetchNextPage(context.Background()))
	require.False(t, s.HasNextPage())

	s.Reset()
	source.err = nil
	source.pages = []Page{{}, {Events: makeEvents(1, "0xa")}}

	assert.NoError(t, s.Err())
	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Len(t, s.Events(), 1)
}

func TestStreamStats(t *testing.T) {
	source := &fakeSource{pages: []Page{{Events: makeEvents(4, "0xa"), Continuation: "t"}}}
	s := New(source, Spec{ContractAddress: "0x1", EventName: models.EventTokenMinted})

	require.NoError(t, s.FetchNextPage(context.Background()))

	stats := s.Stats()
	assert.Equal(t, StateIdle, stats.State)
	assert.Equal(t, 1, stats.PagesFetched)
	assert.Equal(t, 4, stats.EventsLoaded)
	assert.True(t, stats.HasNextPage)
	assert.Empty(t, stats.Error)
}
