package records

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Collection is one registered marketplace collection. Enrichment fields
// (name, symbol) may be empty when the lookup failed at ingestion time;
// a later upsert with real values fills them in.
// Uses meddler tags for automatic struct-to-db mapping.
type Collection struct {
	Address         common.Address `meddler:"address,address" json:"address"`
	Creator         common.Address `meddler:"creator,address" json:"creator"`
	Name            string         `meddler:"name" json:"name"`
	Symbol          string         `meddler:"symbol" json:"symbol"`
	RegisteredBlock uint64         `meddler:"registered_block" json:"registered_block"`
	RegisteredTx    common.Hash    `meddler:"registered_tx,hash" json:"registered_tx"`
	ListedCount     uint64         `meddler:"listed_count" json:"listed_count"`
	SaleCount       uint64         `meddler:"sale_count" json:"sale_count"`
	LastPriceWei    *big.Int       `meddler:"last_price_wei,bigint" json:"last_price_wei,omitempty"`
	LastSaleAt      time.Time      `meddler:"last_sale_at,utctimez" json:"last_sale_at"`
	UpdatedAt       time.Time      `meddler:"updated_at,utctime" json:"updated_at"`
}

// Sale is one recorded marketplace sale, deduplicated on (tx_hash, log_index).
// A zero BlockTime means the block timestamp lookup failed at ingestion time.
type Sale struct {
	ID          int64          `meddler:"id,pk" json:"-"`
	TxHash      common.Hash    `meddler:"tx_hash,hash" json:"tx_hash"`
	LogIndex    uint           `meddler:"log_index" json:"log_index"`
	Collection  common.Address `meddler:"collection,address" json:"collection"`
	TokenID     *big.Int       `meddler:"token_id,bigint" json:"token_id"`
	Buyer       common.Address `meddler:"buyer,address" json:"buyer"`
	PriceWei    *big.Int       `meddler:"price_wei,bigint" json:"price_wei"`
	BlockNumber uint64         `meddler:"block_number" json:"block_number"`
	BlockTime   time.Time      `meddler:"block_time,utctimez" json:"block_time"`
}

// Stats summarizes the record store for the status surface.
type Stats struct {
	Collections uint64 `json:"collections"`
	Sales       uint64 `json:"sales"`
}

// Store persists collections and sales derived from marketplace events.
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertCollection inserts the collection or merges it into an existing
	// row. Present values beat placeholders: empty name/symbol and the zero
	// creator address never overwrite previously stored real values.
	UpsertCollection(c *Collection) error

	// MarkListed bumps the listing counter for the collection, creating a
	// placeholder row when the collection has not been registered yet.
	MarkListed(collection common.Address) error

	// RecordSale inserts the sale and updates the owning collection's sale
	// counters in one transaction. Returns false when the sale was already
	// recorded; duplicates leave all counters untouched.
	RecordSale(ctx context.Context, sale *Sale) (bool, error)

	// GetCollection returns the collection row, or ErrNotFound.
	GetCollection(address common.Address) (*Collection, error)

	// ListAddresses returns all tracked collection addresses in ascending order.
	ListAddresses() ([]common.Address, error)

	// ListCreators returns the distinct non-placeholder creator addresses
	// in ascending order.
	ListCreators() ([]common.Address, error)

	// SalesForCollection returns the collection's sales in chain order.
	SalesForCollection(collection common.Address) ([]*Sale, error)

	// Stats returns row counts for the status surface.
	Stats() (*Stats, error)
}
