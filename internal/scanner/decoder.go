package scanner

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/veltran/marketsync/pkg/events"
)

const (
	// CollectionRegistered and ItemListed carry the signature plus two
	// indexed params; ItemSold adds the indexed buyer.
	registeredTopicsCount = 3
	listedTopicsCount     = 3
	soldTopicsCount       = 4

	// Non-indexed payload for listings and sales is a single uint256 price.
	priceDataSize = 32
)

// Marketplace event signature hashes.
var (
	// CollectionRegistered(address indexed collection, address indexed creator)
	CollectionRegisteredTopic = crypto.Keccak256Hash([]byte("CollectionRegistered(address,address)"))

	// ItemListed(address indexed collection, uint256 indexed tokenId, uint256 price)
	ItemListedTopic = crypto.Keccak256Hash([]byte("ItemListed(address,uint256,uint256)"))

	// ItemSold(address indexed collection, uint256 indexed tokenId, address indexed buyer, uint256 price)
	ItemSoldTopic = crypto.Keccak256Hash([]byte("ItemSold(address,uint256,address,uint256)"))
)

// MarketplaceTopics returns the topic filter matching all marketplace events.
func MarketplaceTopics() []common.Hash {
	return []common.Hash{CollectionRegisteredTopic, ItemListedTopic, ItemSoldTopic}
}

// DecodeLog decodes one marketplace log into a DomainEvent.
func DecodeLog(log *types.Log) (events.DomainEvent, error) {
	if len(log.Topics) == 0 {
		return events.DomainEvent{}, fmt.Errorf("log has no topics")
	}

	switch log.Topics[0] {
	case CollectionRegisteredTopic:
		return parseCollectionRegistered(log)
	case ItemListedTopic:
		return parseItemListed(log)
	case ItemSoldTopic:
		return parseItemSold(log)
	default:
		return events.DomainEvent{}, fmt.Errorf("unknown event topic %s", log.Topics[0].Hex())
	}
}

func parseCollectionRegistered(log *types.Log) (events.DomainEvent, error) {
	if len(log.Topics) != registeredTopicsCount {
		return events.DomainEvent{}, fmt.Errorf("invalid CollectionRegistered event: expected %d topics, got %d",
			registeredTopicsCount, len(log.Topics))
	}

	return events.DomainEvent{
		Kind:        events.KindCollectionRegistered,
		Emitter:     log.Address,
		Collection:  common.BytesToAddress(log.Topics[1].Bytes()),
		Creator:     common.BytesToAddress(log.Topics[2].Bytes()),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}

func parseItemListed(log *types.Log) (events.DomainEvent, error) {
	if len(log.Topics) != listedTopicsCount {
		return events.DomainEvent{}, fmt.Errorf("invalid ItemListed event: expected %d topics, got %d",
			listedTopicsCount, len(log.Topics))
	}
	if len(log.Data) != priceDataSize {
		return events.DomainEvent{}, fmt.Errorf("invalid ItemListed event: expected %d bytes of data, got %d",
			priceDataSize, len(log.Data))
	}

	return events.DomainEvent{
		Kind:        events.KindItemListed,
		Emitter:     log.Address,
		Collection:  common.BytesToAddress(log.Topics[1].Bytes()),
		TokenID:     new(big.Int).SetBytes(log.Topics[2].Bytes()),
		PriceWei:    new(big.Int).SetBytes(log.Data),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}

func parseItemSold(log *types.Log) (events.DomainEvent, error) {
	if len(log.Topics) != soldTopicsCount {
		return events.DomainEvent{}, fmt.Errorf("invalid ItemSold event: expected %d topics, got %d",
			soldTopicsCount, len(log.Topics))
	}
	if len(log.Data) != priceDataSize {
		return events.DomainEvent{}, fmt.Errorf("invalid ItemSold event: expected %d bytes of data, got %d",
			priceDataSize, len(log.Data))
	}

	return events.DomainEvent{
		Kind:        events.KindItemSold,
		Emitter:     log.Address,
		Collection:  common.BytesToAddress(log.Topics[1].Bytes()),
		TokenID:     new(big.Int).SetBytes(log.Topics[2].Bytes()),
		Buyer:       common.BytesToAddress(log.Topics[3].Bytes()),
		PriceWei:    new(big.Int).SetBytes(log.Data),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}
