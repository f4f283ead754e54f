// Package events defines the notification records emitted by the pricing
// engine and the collateral ledger, plus a WAL-backed journal for audit.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names one kind of notification.
type Type string

const (
	TypePriceReported       Type = "price_reported"
	TypeFeedWeightChanged   Type = "feed_weight_changed"
	TypeBlendWeightsChanged Type = "blend_weights_changed"
	TypeTwapIntervalChanged Type = "twap_interval_changed"
	TypeReporterChanged     Type = "reporter_changed"
	TypeBindingChanged      Type = "binding_changed"
	TypeMarketListed        Type = "market_listed"
	TypeListingChanged      Type = "listing_changed"
	TypeThresholdChanged    Type = "threshold_changed"
	TypeDeposited           Type = "deposited"
	TypeRedeemed            Type = "redeemed"
	TypeLiquidated          Type = "liquidated"
	TypeOrderAdjusted       Type = "order_adjusted"
)

// Event is one immutable notification record.
type Event struct {
	ID    string            `json:"id"`
	Type  Type              `json:"type"`
	At    time.Time         `json:"at"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// New stamps a fresh event with a unique id and the current time.
func New(t Type, attrs map[string]string) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  t,
		At:    time.Now().UTC(),
		Attrs: attrs,
	}
}
