package models

// ContractRole identifies which of the two monitored contracts emitted an
// event stream.
type ContractRole string

const (
	// RoleCollectionFactory is the collection factory contract.
	RoleCollectionFactory ContractRole = "collection_factory"
	// RoleIPToken is the MIP token contract.
	RoleIPToken ContractRole = "ip_token"
)

// Event names emitted by the monitored contracts.
const (
	EventCollectionCreated    = "CollectionCreated"
	EventTokenMinted          = "TokenMinted"
	EventTokenMintedBatch     = "TokenMintedBatch"
	EventTokenBurned          = "TokenBurned"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventTransfer             = "Transfer"
	EventApproval             = "Approval"
)

// FactoryEventNames are the events monitored on the collection factory.
var FactoryEventNames = []string{
	EventCollectionCreated,
	EventTokenMinted,
	EventTokenMintedBatch,
	EventTokenBurned,
	EventOwnershipTransferred,
}

// TokenEventNames are the events monitored on the MIP token contract.
var TokenEventNames = []string{
	EventTransfer,
	EventApproval,
}

// RawLogEvent is one entry from an event stream. Data and Keys carry felt
// fields as strings; their layout is fixed per event name.
type RawLogEvent struct {
	ContractAddress string   `json:"contract_address"`
	EventName       string   `json:"event_name"`
	Data            []string `json:"data"`
	Keys            []string `json:"keys"`
	TxHash          string   `json:"tx_hash"`
	BlockNumber     uint64   `json:"block_number"`
}

// StreamKey returns the (contract, event) identity of the stream an event
// belongs to.
func (e RawLogEvent) StreamKey() string {
	return e.ContractAddress + "/" + e.EventName
}
