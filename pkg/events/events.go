package events

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies one normalized marketplace event type.
type Kind string

const (
	// KindCollectionRegistered is emitted when a creator registers a new
	// collection with the marketplace registry.
	KindCollectionRegistered Kind = "collection_registered"

	// KindItemListed is emitted when an item from a registered collection
	// is listed for sale.
	KindItemListed Kind = "item_listed"

	// KindItemSold is emitted when a listed item is bought.
	KindItemSold Kind = "item_sold"
)

// IsValid checks if the Kind is one of the known marketplace event kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindCollectionRegistered, KindItemListed, KindItemSold:
		return true
	default:
		return false
	}
}

// DomainEvent is one decoded marketplace log. Immutable once decoded.
// (TxHash, LogIndex) is the natural dedup key.
type DomainEvent struct {
	Kind        Kind           `json:"kind"`
	Emitter     common.Address `json:"emitter"`
	Collection  common.Address `json:"collection"`
	Creator     common.Address `json:"creator,omitempty"` // collection_registered only
	Buyer       common.Address `json:"buyer,omitempty"`   // item_sold only
	TokenID     *big.Int       `json:"token_id,omitempty"`
	PriceWei    *big.Int       `json:"price_wei,omitempty"`
	BlockNumber uint64         `json:"block_number"`
	TxHash      common.Hash    `json:"tx_hash"`
	LogIndex    uint           `json:"log_index"`
}

// StreamEvent is one normalized push-feed event. Payload keys are
// feed-defined; Kind reuses the marketplace vocabulary where the feed
// overlaps with it and carries the raw event name otherwise.
type StreamEvent struct {
	Topic      string         `json:"topic"`
	Kind       Kind           `json:"kind"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Event is anything the bus can carry.
type Event interface {
	// EventKind returns the event's kind for subscription filtering.
	EventKind() Kind
}

// EventKind returns the event's kind.
func (e DomainEvent) EventKind() Kind { return e.Kind }

// EventKind returns the event's kind.
func (e StreamEvent) EventKind() Kind { return e.Kind }

// Processor handles one decoded event at a time. Implementations must treat
// a re-delivered event as success.
type Processor interface {
	Process(ctx context.Context, event DomainEvent) error
}
