package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	internalcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/db"
	"github.com/veltran/marketsync/internal/logger"
	pkgrecords "github.com/veltran/marketsync/pkg/records"
)

// Compile-time check to ensure Store implements pkgrecords.Store interface.
var _ pkgrecords.Store = (*Store)(nil)

// Type aliases for the public record types.
type (
	Collection = pkgrecords.Collection
	Sale       = pkgrecords.Sale
	Stats      = pkgrecords.Stats
)

// ErrNotFound is an alias for the public sentinel.
var ErrNotFound = pkgrecords.ErrNotFound

// Placeholder values written when only part of an event's context is known.
var (
	zeroAddressHex = common.Address{}.Hex()
	zeroHashHex    = common.Hash{}.Hex()
)

// Store implements the record store on SQLite.
type Store struct {
	db          *sql.DB
	log         *logger.Logger
	maintenance db.Maintenance
}

// NewStore creates a new SQLite-backed record store.
func NewStore(sqlDB *sql.DB, log *logger.Logger, maintenance db.Maintenance) *Store {
	return &Store{
		db:          sqlDB,
		log:         log.WithComponent(internalcommon.ComponentRecords),
		maintenance: maintenance,
	}
}

// UpsertCollection inserts or merges the collection row. The merge keeps
// whichever side holds a real value: empty name/symbol and the zero creator
// never overwrite stored values, while real values always win.
func (s *Store) UpsertCollection(c *Collection) error {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	const query = `
		INSERT INTO collections (
			address, creator, name, symbol,
			registered_block, registered_tx,
			listed_count, sale_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)
		ON CONFLICT(address) DO UPDATE SET
			creator          = COALESCE(NULLIF(excluded.creator, ?), collections.creator),
			name             = COALESCE(NULLIF(excluded.name, ''), collections.name),
			symbol           = COALESCE(NULLIF(excluded.symbol, ''), collections.symbol),
			registered_block = CASE WHEN collections.registered_block = 0
				THEN excluded.registered_block ELSE collections.registered_block END,
			registered_tx    = COALESCE(NULLIF(excluded.registered_tx, ?), collections.registered_tx),
			updated_at       = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		c.Address.Hex(), c.Creator.Hex(), c.Name, c.Symbol,
		c.RegisteredBlock, c.RegisteredTx.Hex(), time.Now().UTC(),
		zeroAddressHex, zeroHashHex,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert collection %s: %w", c.Address.Hex(), err)
	}

	CollectionUpsertsInc()

	s.log.Debugf("upserted collection: address=%s, name=%q, symbol=%q", c.Address.Hex(), c.Name, c.Symbol)

	return nil
}

// MarkListed bumps the listing counter for the collection. Listings can
// arrive for collections whose registration predates the scan start, so an
// unknown collection gets a placeholder row instead of an error.
func (s *Store) MarkListed(collection common.Address) error {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	const query = `
		INSERT INTO collections (
			address, creator, name, symbol,
			registered_block, registered_tx,
			listed_count, sale_count, updated_at
		) VALUES (?, ?, '', '', 0, ?, 1, 0, ?)
		ON CONFLICT(address) DO UPDATE SET
			listed_count = collections.listed_count + 1,
			updated_at   = excluded.updated_at
	`

	_, err := s.db.Exec(query, collection.Hex(), zeroAddressHex, zeroHashHex, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark collection %s as listed: %w", collection.Hex(), err)
	}

	ListingsInc()

	return nil
}

// RecordSale inserts the sale and bumps the owning collection's counters in
// one transaction. Re-scanned ranges replay the same logs, so a duplicate
// (tx_hash, log_index) pair returns false and changes nothing.
func (s *Store) RecordSale(ctx context.Context, sale *Sale) (bool, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	const insertQuery = `
		INSERT INTO sales (
			tx_hash, log_index, collection, token_id,
			buyer, price_wei, block_number, block_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash, log_index) DO NOTHING
	`

	result, err := tx.Exec(insertQuery,
		sale.TxHash.Hex(), sale.LogIndex, sale.Collection.Hex(), bigIntText(sale.TokenID),
		sale.Buyer.Hex(), bigIntText(sale.PriceWei), sale.BlockNumber, utcOrNil(sale.BlockTime),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert sale %s/%d: %w", sale.TxHash.Hex(), sale.LogIndex, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted == 0 {
		SaleDuplicatesInc()
		return false, nil
	}

	// A NULL block_time must not erase a previously known last_sale_at,
	// hence the COALESCE on the update side.
	const collectionQuery = `
		INSERT INTO collections (
			address, creator, name, symbol,
			registered_block, registered_tx,
			listed_count, sale_count, last_price_wei, last_sale_at, updated_at
		) VALUES (?, ?, '', '', 0, ?, 0, 1, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			sale_count     = collections.sale_count + 1,
			last_price_wei = excluded.last_price_wei,
			last_sale_at   = COALESCE(excluded.last_sale_at, collections.last_sale_at),
			updated_at     = excluded.updated_at
	`

	_, err = tx.Exec(collectionQuery,
		sale.Collection.Hex(), zeroAddressHex, zeroHashHex,
		bigIntText(sale.PriceWei), utcOrNil(sale.BlockTime), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update collection %s after sale: %w", sale.Collection.Hex(), err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	SalesRecordedInc()

	s.log.Debugf("recorded sale: collection=%s, token=%s, tx=%s, logIndex=%d",
		sale.Collection.Hex(), bigIntText(sale.TokenID), sale.TxHash.Hex(), sale.LogIndex)

	return true, nil
}

// GetCollection returns the collection row, or ErrNotFound.
func (s *Store) GetCollection(address common.Address) (*Collection, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	var c Collection
	err := meddler.QueryRow(s.db, &c, `SELECT * FROM collections WHERE address = ?`, address.Hex())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get collection %s: %w", address.Hex(), err)
	}

	return &c, nil
}

// ListAddresses returns all tracked collection addresses in ascending order.
func (s *Store) ListAddresses() ([]common.Address, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	return s.queryAddresses(`SELECT address FROM collections ORDER BY address ASC`)
}

// ListCreators returns the distinct creator addresses in ascending order.
// Placeholder rows created by listings and sales carry the zero creator and
// are excluded.
func (s *Store) ListCreators() ([]common.Address, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	return s.queryAddresses(`SELECT DISTINCT creator FROM collections WHERE creator != ? ORDER BY creator ASC`, zeroAddressHex)
}

// SalesForCollection returns the collection's sales in chain order.
func (s *Store) SalesForCollection(collection common.Address) ([]*Sale, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	var sales []*Sale
	const query = `SELECT * FROM sales WHERE collection = ? ORDER BY block_number ASC, log_index ASC`
	if err := meddler.QueryAll(s.db, &sales, query, collection.Hex()); err != nil {
		return nil, fmt.Errorf("failed to query sales for collection %s: %w", collection.Hex(), err)
	}

	return sales, nil
}

// Stats returns row counts for the status surface.
func (s *Store) Stats() (*Stats, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	var stats Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM collections`).Scan(&stats.Collections); err != nil {
		return nil, fmt.Errorf("failed to count collections: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sales`).Scan(&stats.Sales); err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}

	CollectionsTrackedLog(stats.Collections)
	SalesTrackedLog(stats.Sales)

	return &stats, nil
}

func (s *Store) queryAddresses(query string, args ...any) ([]common.Address, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Errorf("failed to close rows: %v", err)
		}
	}()

	addresses := []common.Address{}
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, common.HexToAddress(hex))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate addresses: %w", err)
	}

	return addresses, nil
}

// bigIntText renders a wei or token-id value for a TEXT column. The schema
// declares these columns NOT NULL, so nil falls back to zero.
func bigIntText(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// utcOrNil maps the zero time to a NULL column, matching the utctimez
// meddler used on the read side.
func utcOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
