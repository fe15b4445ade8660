// Package stream models one independently-paginated Starknet event stream
// per (contract, event) pair. Pages are fetched strictly in order and
// appended to an in-memory window; a stream failure is terminal for that
// stream but never affects its siblings.
package stream

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// State is the lifecycle state of a stream.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateErrored  State = "errored"
)

// PageQuery identifies one page request for a (contract, event) stream.
type PageQuery struct {
	ContractAddress string
	EventName       string
	FromBlock       uint64
	PageSize        int
	Continuation    string
}

// Page is one fetched page of raw events. A non-empty Continuation token
// means more pages are available.
type Page struct {
	Events       []models.RawLogEvent
	Continuation string
}

// Source is the log-query capability a stream fetches pages from.
type Source interface {
	FetchPage(ctx context.Context, q PageQuery) (Page, error)
}

// Spec pins a stream to one (contract, event) pair.
type Spec struct {
	ContractAddress string
	EventName       string
	FromBlock       uint64
	PageSize        int
}

// Stats is a snapshot of one stream's progress.
type Stats struct {
	ContractAddress string `json:"contract_address"`
	EventName       string `json:"event_name"`
	State           State  `json:"state"`
	PagesFetched    int    `json:"pages_fetched"`
	EventsLoaded    int    `json:"events_loaded"`
	HasNextPage     bool   `json:"has_next_page"`
	Error           string `json:"error,omitempty"`
}

// Stream is one paginated event stream.
type Stream struct {
	source Source
	spec   Spec
	logger *logrus.Logger

	mu           sync.Mutex
	state        State
	gen          uint64
	events       []models.RawLogEvent
	continuation string
	pagesFetched int
	exhausted    bool
	err          error
}

// New creates a stream in the idle state with no pages loaded.
func New(source Source, spec Spec) *Stream {
	return &Stream{
		source: source,
		spec:   spec,
		logger: utils.GetLogger(),
		state:  StateIdle,
	}
}

// FetchNextPage fetches and appends the next page. It is a no-op when the
// stream is exhausted, errored, or already fetching (page N+1 is never
// requested before page N resolves).
func (s *Stream) FetchNextPage(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateFetching || s.state == StateErrored || s.exhausted {
		s.mu.Unlock()
		return nil
	}
	s.state = StateFetching
	gen := s.gen
	query := PageQuery{
		ContractAddress: s.spec.ContractAddress,
		EventName:       s.spec.EventName,
		FromBlock:       s.spec.FromBlock,
		PageSize:        s.spec.PageSize,
		Continuation:    s.continuation,
	}
	s.mu.Unlock()

	page, err := s.source.FetchPage(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The stream was reset while this fetch was in flight; drop the result.
	if s.gen != gen {
		return nil
	}

	if err != nil {
		s.state = StateErrored
		s.err = err
		s.logger.WithFields(logrus.Fields{
			"contract": s.spec.ContractAddress,
			"event":    s.spec.EventName,
		}).WithError(err).Warn("Event stream fetch failed")
		return err
	}

	s.events = append(s.events, page.Events...)
	s.continuation = page.Continuation
	s.pagesFetched++
	s.exhausted = page.Continuation == ""
	s.state = StateIdle

	s.logger.WithFields(logrus.Fields{
		"contract": s.spec.ContractAddress,
		"event":    s.spec.EventName,
		"page":     s.pagesFetched,
		"events":   len(page.Events),
		"has_next": !s.exhausted,
	}).Debug("Event stream page fetched")

	return nil
}

// Reset returns the stream to its initial state: no pages, no error, first
// page available again. A fetch already in flight is discarded when it lands.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = StateIdle
	s.events = nil
	s.continuation = ""
	s.pagesFetched = 0
	s.exhausted = false
	s.err = nil
}

// Events returns a copy of all currently-loaded events.
func (s *Stream) Events() []models.RawLogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RawLogEvent, len(s.events))
	copy(out, s.events)
	return out
}

// HasNextPage reports whether another page can be fetched. A stream that has
// never fetched still has a first page; an errored stream has none.
func (s *Stream) HasNextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateErrored {
		return false
	}
	return !s.exhausted
}

// IsFetching reports whether a page fetch is in flight.
func (s *Stream) IsFetching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateFetching
}

// Err returns the terminal stream error, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Spec returns the stream's (contract, event) identity.
func (s *Stream) Spec() Spec {
	return s.spec
}

// Stats returns a snapshot of the stream's progress.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ContractAddress: s.spec.ContractAddress,
		EventName:       s.spec.EventName,
		State:           s.state,
		PagesFetched:    s.pagesFetched,
		EventsLoaded:    len(s.events),
		HasNextPage:     s.state != StateErrored && !s.exhausted,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}
