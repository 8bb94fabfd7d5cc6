package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"

	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/pkg/events"
	"github.com/veltran/marketsync/pkg/records"
	pkgrpc "github.com/veltran/marketsync/pkg/rpc"
)

// Compile-time check to ensure Processor implements the events.Processor interface.
var _ events.Processor = (*Processor)(nil)

// Collection metadata getters, the ERC-721 metadata extension subset.
const metadataABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

var metadataABI = mustMetadataABI()

func mustMetadataABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(metadataABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid metadata ABI: %v", err))
	}
	return parsed
}

const blockTimeCacheSize = 4096

// Processor turns decoded marketplace events into record mutations. It
// enriches registrations with on-chain collection metadata and sales with
// their block timestamp; enrichment failures degrade to placeholders and the
// mutation still lands. Only storage errors fail Process.
type Processor struct {
	store records.Store
	rpc   pkgrpc.EthClient
	log   *logger.Logger

	timeMu     sync.Mutex
	blockTimes map[uint64]time.Time
}

// New creates a Processor writing through the given record store.
func New(store records.Store, rpcClient pkgrpc.EthClient, log *logger.Logger) (*Processor, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if rpcClient == nil {
		return nil, errors.New("RPC client is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	return &Processor{
		store:      store,
		rpc:        rpcClient,
		log:        log.WithComponent(mcommon.ComponentProcessor),
		blockTimes: make(map[uint64]time.Time),
	}, nil
}

// Process applies one event to the record store.
func (p *Processor) Process(ctx context.Context, ev events.DomainEvent) error {
	switch ev.Kind {
	case events.KindCollectionRegistered:
		return p.handleCollectionRegistered(ctx, ev)
	case events.KindItemListed:
		return p.handleItemListed(ev)
	case events.KindItemSold:
		return p.handleItemSold(ctx, ev)
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind)
	}
}

func (p *Processor) handleCollectionRegistered(ctx context.Context, ev events.DomainEvent) error {
	name := p.callStringMethod(ctx, ev.Collection, "name")
	symbol := p.callStringMethod(ctx, ev.Collection, "symbol")

	collection := &records.Collection{
		Address:         ev.Collection,
		Creator:         ev.Creator,
		Name:            name,
		Symbol:          symbol,
		RegisteredBlock: ev.BlockNumber,
		RegisteredTx:    ev.TxHash,
	}

	if err := p.store.UpsertCollection(collection); err != nil {
		return fmt.Errorf("failed to upsert collection %s: %w", ev.Collection.Hex(), err)
	}

	p.log.Infow("collection registered",
		"collection", ev.Collection.Hex(),
		"creator", ev.Creator.Hex(),
		"name", name,
		"symbol", symbol,
		"block", ev.BlockNumber,
	)

	return nil
}

func (p *Processor) handleItemListed(ev events.DomainEvent) error {
	if err := p.store.MarkListed(ev.Collection); err != nil {
		return fmt.Errorf("failed to record listing for collection %s: %w", ev.Collection.Hex(), err)
	}

	p.log.Debugw("item listed",
		"collection", ev.Collection.Hex(),
		"token_id", ev.TokenID,
		"price_wei", ev.PriceWei,
		"block", ev.BlockNumber,
	)

	return nil
}

func (p *Processor) handleItemSold(ctx context.Context, ev events.DomainEvent) error {
	sale := &records.Sale{
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Collection:  ev.Collection,
		TokenID:     ev.TokenID,
		Buyer:       ev.Buyer,
		PriceWei:    ev.PriceWei,
		BlockNumber: ev.BlockNumber,
		BlockTime:   p.blockTime(ctx, ev.BlockNumber),
	}

	inserted, err := p.store.RecordSale(ctx, sale)
	if err != nil {
		return fmt.Errorf("failed to record sale %s/%d: %w", ev.TxHash.Hex(), ev.LogIndex, err)
	}
	if !inserted {
		p.log.Debugw("duplicate sale ignored", "tx", ev.TxHash.Hex(), "log_index", ev.LogIndex)
		return nil
	}

	p.log.Infow("item sold",
		"collection", ev.Collection.Hex(),
		"token_id", ev.TokenID,
		"buyer", ev.Buyer.Hex(),
		"price_wei", ev.PriceWei,
		"block", ev.BlockNumber,
	)

	return nil
}

// callStringMethod eth_calls a no-argument string getter, returning the
// empty string when the contract does not answer it cleanly.
func (p *Processor) callStringMethod(ctx context.Context, contract ethcommon.Address, method string) string {
	input, err := metadataABI.Pack(method)
	if err != nil {
		EnrichmentFailuresInc(method)
		p.log.Warnf("failed to pack %s() call: %v", method, err)
		return ""
	}

	output, err := p.rpc.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input})
	if err != nil {
		EnrichmentFailuresInc(method)
		p.log.Warnw("metadata call failed",
			"contract", contract.Hex(),
			"method", method,
			"error", err,
		)
		return ""
	}

	values, err := metadataABI.Unpack(method, output)
	if err != nil || len(values) != 1 {
		EnrichmentFailuresInc(method)
		p.log.Warnw("failed to decode metadata result",
			"contract", contract.Hex(),
			"method", method,
			"error", err,
		)
		return ""
	}

	value, ok := values[0].(string)
	if !ok {
		EnrichmentFailuresInc(method)
		p.log.Warnw("unexpected metadata result type", "contract", contract.Hex(), "method", method)
		return ""
	}

	return value
}

// blockTime resolves a block's timestamp, zero when the header lookup fails.
func (p *Processor) blockTime(ctx context.Context, blockNumber uint64) time.Time {
	p.timeMu.Lock()
	cached, ok := p.blockTimes[blockNumber]
	p.timeMu.Unlock()
	if ok {
		return cached
	}

	header, err := p.rpc.GetBlockHeader(ctx, blockNumber)
	if err != nil {
		EnrichmentFailuresInc("block_time")
		p.log.Warnw("failed to fetch block header, sale keeps no timestamp",
			"block", blockNumber,
			"error", err,
		)
		return time.Time{}
	}

	ts := time.Unix(int64(header.Time), 0).UTC()

	p.timeMu.Lock()
	if len(p.blockTimes) >= blockTimeCacheSize {
		// Full reset keeps the map bounded.
		clear(p.blockTimes)
	}
	p.blockTimes[blockNumber] = ts
	p.timeMu.Unlock()

	return ts
}
