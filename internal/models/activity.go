package models

// ActivityType is the semantic classification of a chain event.
type ActivityType string

const (
	ActivityMint             ActivityType = "mint"
	ActivityMintBatch        ActivityType = "mint_batch"
	ActivityBurn             ActivityType = "burn"
	ActivityBurnBatch        ActivityType = "burn_batch"
	ActivityTransferIn       ActivityType = "transfer_in"
	ActivityTransferOut      ActivityType = "transfer_out"
	ActivityCollectionCreate ActivityType = "collection_create"
	ActivityApproval         ActivityType = "approval"
)

// ActivityStatusCompleted is the status of every chain-confirmed event.
const ActivityStatusCompleted = "completed"

// NetworkLabel is the constant chain label attached to every activity.
const NetworkLabel = "Starknet"

// ActivityItem is the classified, user-facing unit of the activity feed.
// It is derived on every aggregation pass and never stored.
type ActivityItem struct {
	ID          string           `json:"id"`
	Type        ActivityType     `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	AssetID     string           `json:"asset_id,omitempty"`
	FromAddress string           `json:"from_address,omitempty"`
	ToAddress   string           `json:"to_address,omitempty"`
	Timestamp   string           `json:"timestamp"`
	Status      string           `json:"status"`
	Network     string           `json:"network"`
	Hash        string           `json:"hash"`
	Metadata    ActivityMetadata `json:"metadata"`
}

// ActivityMetadata carries the chain coordinates of the underlying event.
type ActivityMetadata struct {
	BlockNumber     uint64 `json:"block_number"`
	ContractAddress string `json:"contract_address"`
}
