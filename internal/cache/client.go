package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veltran/marketsync/pkg/config"
)

// MarketSnapshot is one collection's market-state entry: the partner pull
// API's view merged with the durable sale count.
type MarketSnapshot struct {
	Collection    common.Address `json:"collection"`
	FloorPriceWei *big.Int       `json:"floor_price_wei"`
	ListedCount   uint64         `json:"listed_count"`
	VolumeWei     *big.Int       `json:"volume_wei"`
	SaleCount     uint64         `json:"sale_count"`
}

// RewardSnapshot is one creator's reward-state entry from the rewards API.
type RewardSnapshot struct {
	Creator    common.Address `json:"creator"`
	PendingWei *big.Int       `json:"pending_wei"`
	ClaimedWei *big.Int       `json:"claimed_wei"`
}

// Wire shapes; wei amounts arrive as decimal strings.
type marketResponse struct {
	FloorPriceWei string `json:"floor_price_wei"`
	ListedCount   uint64 `json:"listed_count"`
	VolumeWei     string `json:"volume_wei"`
}

type rewardsResponse struct {
	PendingWei string `json:"pending_wei"`
	ClaimedWei string `json:"claimed_wei"`
}

// pullClient is the shared HTTP layer for the snapshot pull APIs.
type pullClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newPullClient(cfg config.CacheDomainConfig) pullClient {
	return pullClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.RequestTimeout.Duration},
	}
}

func (c *pullClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// MarketClient pulls per-collection market snapshots.
type MarketClient struct {
	pullClient
}

// NewMarketClient creates a client for the market snapshot API.
func NewMarketClient(cfg config.CacheDomainConfig) *MarketClient {
	return &MarketClient{pullClient: newPullClient(cfg)}
}

// CollectionSnapshot fetches the market snapshot for one collection.
func (c *MarketClient) CollectionSnapshot(ctx context.Context, collection common.Address) (MarketSnapshot, error) {
	var payload marketResponse
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, strings.ToLower(collection.Hex()))
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return MarketSnapshot{}, err
	}

	return MarketSnapshot{
		Collection:    collection,
		FloorPriceWei: parseWei(payload.FloorPriceWei),
		ListedCount:   payload.ListedCount,
		VolumeWei:     parseWei(payload.VolumeWei),
	}, nil
}

// RewardsClient pulls per-creator reward snapshots.
type RewardsClient struct {
	pullClient
}

// NewRewardsClient creates a client for the rewards snapshot API.
func NewRewardsClient(cfg config.CacheDomainConfig) *RewardsClient {
	return &RewardsClient{pullClient: newPullClient(cfg)}
}

// CreatorRewards fetches the reward snapshot for one creator.
func (c *RewardsClient) CreatorRewards(ctx context.Context, creator common.Address) (RewardSnapshot, error) {
	var payload rewardsResponse
	url := fmt.Sprintf("%s/creators/%s/rewards", c.baseURL, strings.ToLower(creator.Hex()))
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return RewardSnapshot{}, err
	}

	return RewardSnapshot{
		Creator:    creator,
		PendingWei: parseWei(payload.PendingWei),
		ClaimedWei: parseWei(payload.ClaimedWei),
	}, nil
}

// parseWei reads a decimal wei amount, nil when absent or malformed.
func parseWei(value string) *big.Int {
	if value == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil
	}
	return n
}
