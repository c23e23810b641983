package lease

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"leasenet/core/types"
)

const (
	EventTypeListed         = "lease.listed"
	EventTypeLeaseStarted   = "lease.started"
	EventTypeRewardsClaimed = "lease.rewards_claimed"
	EventTypeUnstaked       = "lease.unstaked"
	EventTypeRefunded       = "lease.refunded"
	EventTypeWhitelisted    = "lease.collection_whitelisted"
)

// NewListedEvent returns the canonical event payload for a newly escrowed
// listing.
func NewListedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListed, l) }

// NewLeaseStartedEvent returns the canonical event payload for a freshly
// started lease segment.
func NewLeaseStartedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeLeaseStarted, l) }

// NewRewardsClaimedEvent returns the event payload for a reward payout.
func NewRewardsClaimedEvent(l *Listing, paid *big.Int) *types.Event {
	evt := newListingEvent(EventTypeRewardsClaimed, l)
	if paid != nil {
		evt.Attributes["paid"] = paid.String()
	}
	return evt
}

// NewUnstakedEvent returns the event payload emitted when a listing is removed
// and its asset returned to the owner.
func NewUnstakedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeUnstaked, l) }

// NewRefundedEvent returns the event payload for an administrative refund.
func NewRefundedEvent(l *Listing, recipient [20]byte) *types.Event {
	evt := newListingEvent(EventTypeRefunded, l)
	evt.Attributes["recipient"] = hex.EncodeToString(recipient[:])
	return evt
}

// NewWhitelistedEvent returns the event payload for a new wrapped-collection
// whitelist entry.
func NewWhitelistedEvent(original, wrapped [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeWhitelisted,
		Attributes: map[string]string{
			"original": hex.EncodeToString(original[:]),
			"wrapped":  hex.EncodeToString(wrapped[:]),
		},
	}
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(sanitized.Collection[:])
	attrs["assetId"] = strconv.FormatUint(sanitized.AssetID, 10)
	attrs["owner"] = hex.EncodeToString(sanitized.Owner[:])
	attrs["price"] = sanitized.Price.String()
	attrs["minTime"] = strconv.FormatInt(sanitized.MinTime, 10)
	attrs["maxTime"] = strconv.FormatInt(sanitized.MaxTime, 10)
	attrs["deadline"] = strconv.FormatInt(sanitized.Deadline, 10)
	if sanitized.Borrower != ([20]byte{}) {
		attrs["borrower"] = hex.EncodeToString(sanitized.Borrower[:])
		attrs["originNetwork"] = sanitized.OriginNetwork
		attrs["expires"] = strconv.FormatInt(sanitized.Expires, 10)
		attrs["startedAt"] = strconv.FormatInt(sanitized.StartedAt, 10)
	}
	attrs["latestReward"] = sanitized.LatestReward.String()
	attrs["totalRewards"] = sanitized.TotalRewards.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
