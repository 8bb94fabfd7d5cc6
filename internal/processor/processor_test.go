package processor

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltran/marketsync/internal/db"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/internal/migrations"
	recordstore "github.com/veltran/marketsync/internal/records"
	"github.com/veltran/marketsync/pkg/events"
	"github.com/veltran/marketsync/pkg/records"
	pkgrpc "github.com/veltran/marketsync/pkg/rpc"
)

var (
	testCollection = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCreator    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testBuyer      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testTxHash     = common.HexToHash("0xaaaa00112233445566778899aabbccddeeff00112233445566778899aabbccdd")
)

var _ pkgrpc.EthClient = (*fakeChainClient)(nil)

// fakeChainClient answers metadata eth_calls and header lookups.
type fakeChainClient struct {
	mu          sync.Mutex
	name        string
	symbol      string
	callErr     error
	headerTime  uint64
	headerErr   error
	headerCalls int
}

func (c *fakeChainClient) Close() {}

func (c *fakeChainClient) GetLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeChainClient) GetBlockHeader(_ context.Context, blockNum uint64) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerCalls++
	if c.headerErr != nil {
		return nil, c.headerErr
	}
	return &types.Header{Number: new(big.Int).SetUint64(blockNum), Time: c.headerTime}, nil
}

func (c *fakeChainClient) GetLatestBlockHeader(context.Context) (*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeChainClient) GetFinalizedBlockHeader(context.Context) (*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeChainClient) GetSafeBlockHeader(context.Context) (*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeChainClient) BatchGetBlockHeaders(context.Context, []uint64) ([]*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeChainClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callErr != nil {
		return nil, c.callErr
	}

	switch {
	case bytes.Equal(msg.Data, metadataABI.Methods["name"].ID):
		return metadataABI.Methods["name"].Outputs.Pack(c.name)
	case bytes.Equal(msg.Data, metadataABI.Methods["symbol"].ID):
		return metadataABI.Methods["symbol"].Outputs.Pack(c.symbol)
	default:
		return nil, errors.New("unexpected contract call")
	}
}

var _ records.Store = (*failingStore)(nil)

// failingStore fails every operation with a fixed error.
type failingStore struct{ err error }

func (s *failingStore) UpsertCollection(*records.Collection) error { return s.err }
func (s *failingStore) MarkListed(common.Address) error            { return s.err }
func (s *failingStore) RecordSale(context.Context, *records.Sale) (bool, error) {
	return false, s.err
}
func (s *failingStore) GetCollection(common.Address) (*records.Collection, error) {
	return nil, s.err
}
func (s *failingStore) ListAddresses() ([]common.Address, error) { return nil, s.err }
func (s *failingStore) ListCreators() ([]common.Address, error)  { return nil, s.err }
func (s *failingStore) SalesForCollection(common.Address) ([]*records.Sale, error) {
	return nil, s.err
}
func (s *failingStore) Stats() (*records.Stats, error) { return nil, s.err }

func newTestStore(t *testing.T) records.Store {
	t.Helper()

	tmpDB := t.TempDir() + "/test_processor.db"
	require.NoError(t, migrations.RunMigrations(tmpDB))

	sqlDB, err := db.NewSQLiteDB(tmpDB)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log, err := logger.NewLogger("info", true)
	require.NoError(t, err)

	return recordstore.NewStore(sqlDB, log, &db.NoOpMaintenance{})
}

func newTestProcessor(t *testing.T, store records.Store, client *fakeChainClient) *Processor {
	t.Helper()

	log, err := logger.NewLogger("info", true)
	require.NoError(t, err)

	proc, err := New(store, client, log)
	require.NoError(t, err)
	return proc
}

func registeredEvent() events.DomainEvent {
	return events.DomainEvent{
		Kind:        events.KindCollectionRegistered,
		Collection:  testCollection,
		Creator:     testCreator,
		BlockNumber: 10050,
		TxHash:      testTxHash,
		LogIndex:    0,
	}
}

func soldEvent(logIndex uint) events.DomainEvent {
	return events.DomainEvent{
		Kind:        events.KindItemSold,
		Collection:  testCollection,
		Buyer:       testBuyer,
		TokenID:     big.NewInt(7),
		PriceWei:    big.NewInt(1500000),
		BlockNumber: 10070,
		TxHash:      testTxHash,
		LogIndex:    logIndex,
	}
}

func TestProcessCollectionRegistered(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	client := &fakeChainClient{name: "Bored Cats", symbol: "BCAT"}
	proc := newTestProcessor(t, store, client)

	require.NoError(t, proc.Process(t.Context(), registeredEvent()))

	collection, err := store.GetCollection(testCollection)
	require.NoError(t, err)

	assert.Equal(t, "Bored Cats", collection.Name)
	assert.Equal(t, "BCAT", collection.Symbol)
	assert.Equal(t, testCreator, collection.Creator)
	assert.Equal(t, uint64(10050), collection.RegisteredBlock)
	assert.Equal(t, testTxHash, collection.RegisteredTx)
}

func TestProcessCollectionRegisteredMetadataFailure(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	client := &fakeChainClient{callErr: errors.New("execution reverted")}
	proc := newTestProcessor(t, store, client)

	require.NoError(t, proc.Process(t.Context(), registeredEvent()))

	collection, err := store.GetCollection(testCollection)
	require.NoError(t, err)

	assert.Empty(t, collection.Name)
	assert.Empty(t, collection.Symbol)
	assert.Equal(t, testCreator, collection.Creator)
}

func TestProcessItemListed(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	proc := newTestProcessor(t, store, &fakeChainClient{})

	ev := events.DomainEvent{
		Kind:        events.KindItemListed,
		Collection:  testCollection,
		TokenID:     big.NewInt(7),
		PriceWei:    big.NewInt(1500000),
		BlockNumber: 10060,
		TxHash:      testTxHash,
		LogIndex:    1,
	}
	require.NoError(t, proc.Process(t.Context(), ev))

	collection, err := store.GetCollection(testCollection)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), collection.ListedCount)
}

func TestProcessItemSold(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	blockTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeChainClient{headerTime: uint64(blockTime.Unix())}
	proc := newTestProcessor(t, store, client)

	require.NoError(t, proc.Process(t.Context(), soldEvent(2)))

	collection, err := store.GetCollection(testCollection)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), collection.SaleCount)
	assert.Equal(t, big.NewInt(1500000), collection.LastPriceWei)
	assert.True(t, collection.LastSaleAt.Equal(blockTime))

	sales, err := store.SalesForCollection(testCollection)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, testBuyer, sales[0].Buyer)
	assert.Equal(t, big.NewInt(7), sales[0].TokenID)
	assert.True(t, sales[0].BlockTime.Equal(blockTime))

	// Replaying the same sale is a no-op.
	require.NoError(t, proc.Process(t.Context(), soldEvent(2)))

	collection, err = store.GetCollection(testCollection)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), collection.SaleCount)
}

func TestProcessItemSoldHeaderFailure(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	client := &fakeChainClient{headerErr: errors.New("connection reset")}
	proc := newTestProcessor(t, store, client)

	require.NoError(t, proc.Process(t.Context(), soldEvent(0)))

	sales, err := store.SalesForCollection(testCollection)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].BlockTime.IsZero())
}

func TestProcessItemSoldCachesBlockTime(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	client := &fakeChainClient{headerTime: 1714564800}
	proc := newTestProcessor(t, store, client)

	require.NoError(t, proc.Process(t.Context(), soldEvent(0)))
	require.NoError(t, proc.Process(t.Context(), soldEvent(1)))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 1, client.headerCalls)
}

func TestProcessStorageErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("database is locked")
	proc := newTestProcessor(t, &failingStore{err: boom}, &fakeChainClient{})

	err := proc.Process(t.Context(), registeredEvent())
	require.ErrorIs(t, err, boom)

	err = proc.Process(t.Context(), events.DomainEvent{Kind: events.KindItemListed, Collection: testCollection})
	require.ErrorIs(t, err, boom)

	err = proc.Process(t.Context(), soldEvent(0))
	require.ErrorIs(t, err, boom)
}

func TestProcessUnknownKind(t *testing.T) {
	t.Parallel()

	proc := newTestProcessor(t, newTestStore(t), &fakeChainClient{})

	err := proc.Process(t.Context(), events.DomainEvent{Kind: events.Kind("price_updated")})
	require.ErrorContains(t, err, "unsupported event kind")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	log, err := logger.NewLogger("info", true)
	require.NoError(t, err)

	store := &failingStore{}
	client := &fakeChainClient{}

	_, err = New(nil, client, log)
	require.ErrorContains(t, err, "record store is required")

	_, err = New(store, nil, log)
	require.ErrorContains(t, err, "RPC client is required")

	_, err = New(store, client, nil)
	require.ErrorContains(t, err, "logger is required")
}
