package models

// DecodedEvent is the closed set of per-event decoded payloads. Exactly one
// variant exists per monitored event name; the decoder dispatcher produces
// them so positional field indexing stays in one place.
type DecodedEvent interface {
	decodedEvent()
}

// TransferData is the decoded token Transfer payload. Addresses come from
// the indexed keys, not the data payload.
type TransferData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"token_id,omitempty"`
}

// ApprovalData is the decoded token Approval payload.
type ApprovalData struct {
	Owner    string `json:"owner"`
	Approved string `json:"approved"`
	TokenID  string `json:"token_id,omitempty"`
}

// CollectionCreatedData is the decoded factory CollectionCreated payload.
type CollectionCreatedData struct {
	Creator    string `json:"creator"`
	Collection string `json:"collection"`
}

// TokenMintedData is the decoded factory TokenMinted payload.
type TokenMintedData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"token_id,omitempty"`
}

// TokenMintedBatchData is the decoded factory TokenMintedBatch payload.
// A batch mint carries no single token id.
type TokenMintedBatchData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TokenBurnedData is the decoded factory TokenBurned payload.
type TokenBurnedData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"token_id,omitempty"`
}

// OwnershipTransferredData is the decoded factory OwnershipTransferred
// payload.
type OwnershipTransferredData struct {
	PreviousOwner string `json:"previous_owner"`
	NewOwner      string `json:"new_owner"`
}

// UnknownEventData wraps an event whose name is outside the monitored set.
type UnknownEventData struct {
	EventName string `json:"event_name"`
}

func (TransferData) decodedEvent()             {}
func (ApprovalData) decodedEvent()             {}
func (CollectionCreatedData) decodedEvent()    {}
func (TokenMintedData) decodedEvent()          {}
func (TokenMintedBatchData) decodedEvent()     {}
func (TokenBurnedData) decodedEvent()          {}
func (OwnershipTransferredData) decodedEvent() {}
func (UnknownEventData) decodedEvent()         {}
