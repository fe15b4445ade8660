// Package provider holds the outbound data-source clients: the Starknet
// JSON-RPC event source and the Voyager explorer proxy used for batched
// transaction metadata resolution.
package provider

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/config"
	"github.com/mediolano-app/mip-activity-aggregator/internal/connection"
	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/internal/stream"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// eventsFilter mirrors the starknet_getEvents filter parameter.
type eventsFilter struct {
	FromBlock         blockID    `json:"from_block"`
	ToBlock           string     `json:"to_block"`
	Address           string     `json:"address"`
	Keys              [][]string `json:"keys,omitempty"`
	ChunkSize         int        `json:"chunk_size"`
	ContinuationToken string     `json:"continuation_token,omitempty"`
}

type blockID struct {
	BlockNumber uint64 `json:"block_number"`
}

type emittedEvent struct {
	FromAddress     string   `json:"from_address"`
	Keys            []string `json:"keys"`
	Data            []string `json:"data"`
	BlockNumber     uint64   `json:"block_number"`
	TransactionHash string   `json:"transaction_hash"`
}

type eventsPage struct {
	Events            []emittedEvent `json:"events"`
	ContinuationToken string         `json:"continuation_token"`
}

// StarknetSource implements stream.Source on top of starknet_getEvents.
// Events are filtered server-side by contract address and event selector
// (sn_keccak of the event name as the first key).
type StarknetSource struct {
	conn    connection.Manager
	timeout time.Duration
	logger  *logrus.Logger
}

// NewStarknetSource creates an event source bound to a connection manager.
func NewStarknetSource(conn connection.Manager, cfg *config.StarknetConfig) *StarknetSource {
	return &StarknetSource{
		conn:    conn,
		timeout: cfg.RequestTimeout,
		logger:  utils.GetLogger(),
	}
}

// FetchPage fetches one page of events for a (contract, event) pair.
func (s *StarknetSource) FetchPage(ctx context.Context, q stream.PageQuery) (stream.Page, error) {
	client, err := s.conn.GetClient(ctx)
	if err != nil {
		return stream.Page{}, err
	}

	filter := eventsFilter{
		FromBlock:         blockID{BlockNumber: q.FromBlock},
		ToBlock:           "latest",
		Address:           q.ContractAddress,
		Keys:              [][]string{{utils.EventSelector(q.EventName)}},
		ChunkSize:         q.PageSize,
		ContinuationToken: q.Continuation,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var page eventsPage
	if err := client.CallContext(callCtx, &page, "starknet_getEvents", filter); err != nil {
		return stream.Page{}, utils.NewAppError(utils.ErrCodeBlockchain,
			"starknet_getEvents failed", err.Error())
	}

	events := make([]models.RawLogEvent, 0, len(page.Events))
	for _, ev := range page.Events {
		events = append(events, models.RawLogEvent{
			ContractAddress: ev.FromAddress,
			EventName:       q.EventName,
			Data:            ev.Data,
			Keys:            ev.Keys,
			TxHash:          ev.TransactionHash,
			BlockNumber:     ev.BlockNumber,
		})
	}

	return stream.Page{
		Events:       events,
		Continuation: page.ContinuationToken,
	}, nil
}
