// Package decoder converts raw felt fields from Starknet log entries into
// canonical addresses, token identifiers and per-event typed payloads.
// Every function here is pure and total: malformed input degrades to a
// best-effort string fallback, never an error or panic.
package decoder

import (
	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// ExtractTokenID returns the token identifier carried by an event's data
// payload. TokenMinted-style events carry (from, to, tokenId, ...) so the id
// sits at index 2; shorter payloads carry the id first.
func ExtractTokenID(data []string) string {
	switch {
	case len(data) > 2:
		return utils.ToTokenID(data[2])
	case len(data) > 0:
		return utils.ToTokenID(data[0])
	default:
		return ""
	}
}

// ExtractTransferAddresses returns the (from, to) pair from an unindexed
// data payload. Factory events place addresses at positions 0 and 1.
func ExtractTransferAddresses(data []string) (from, to string) {
	if len(data) > 0 {
		from = utils.ToCanonicalAddress(data[0])
	}
	if len(data) > 1 {
		to = utils.ToCanonicalAddress(data[1])
	}
	return from, to
}

// ExtractTransferAddressesFromKeys returns the (from, to) pair for the token
// Transfer event, which indexes sender and receiver as filterable keys:
// keys[0] is the event selector, keys[1] the sender, keys[2] the receiver.
func ExtractTransferAddressesFromKeys(ev models.RawLogEvent) (from, to string) {
	if len(ev.Keys) > 1 {
		from = utils.ToCanonicalAddress(ev.Keys[1])
	}
	if len(ev.Keys) > 2 {
		to = utils.ToCanonicalAddress(ev.Keys[2])
	}
	return from, to
}

// Decode dispatches a raw event to its per-event typed payload. Unmonitored
// event names decode to UnknownEventData rather than an error.
func Decode(ev models.RawLogEvent) models.DecodedEvent {
	switch ev.EventName {
	case models.EventTransfer:
		from, to := ExtractTransferAddressesFromKeys(ev)
		return models.TransferData{
			From:    from,
			To:      to,
			TokenID: ExtractTokenID(ev.Data),
		}
	case models.EventApproval:
		owner, approved := ExtractTransferAddresses(ev.Data)
		return models.ApprovalData{
			Owner:    owner,
			Approved: approved,
			TokenID:  ExtractTokenID(ev.Data),
		}
	case models.EventCollectionCreated:
		creator, collection := ExtractTransferAddresses(ev.Data)
		return models.CollectionCreatedData{
			Creator:    creator,
			Collection: collection,
		}
	case models.EventTokenMinted:
		from, to := ExtractTransferAddresses(ev.Data)
		return models.TokenMintedData{
			From:    from,
			To:      to,
			TokenID: ExtractTokenID(ev.Data),
		}
	case models.EventTokenMintedBatch:
		from, to := ExtractTransferAddresses(ev.Data)
		return models.TokenMintedBatchData{From: from, To: to}
	case models.EventTokenBurned:
		from, to := ExtractTransferAddresses(ev.Data)
		return models.TokenBurnedData{
			From:    from,
			To:      to,
			TokenID: ExtractTokenID(ev.Data),
		}
	case models.EventOwnershipTransferred:
		prev, next := ExtractTransferAddresses(ev.Data)
		return models.OwnershipTransferredData{
			PreviousOwner: prev,
			NewOwner:      next,
		}
	default:
		return models.UnknownEventData{EventName: ev.EventName}
	}
}
