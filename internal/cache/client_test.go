package cache

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/pkg/config"
)

var (
	testCollection = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCreator    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func domainConfig(baseURL string) config.CacheDomainConfig {
	return config.CacheDomainConfig{
		BaseURL:         baseURL,
		APIKey:          "secret-key",
		RefreshInterval: mcommon.NewDuration(time.Hour),
		MinInterval:     mcommon.NewDuration(0),
		ChunkSize:       10,
		ChunkDelay:      mcommon.NewDuration(0),
		Concurrency:     4,
		RequestTimeout:  mcommon.NewDuration(5 * time.Second),
	}
}

func TestMarketClientParsesSnapshot(t *testing.T) {
	var gotPath, gotKey, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"floor_price_wei":"1500000","listed_count":12,"volume_wei":"34500000"}`))
	}))
	defer srv.Close()

	client := NewMarketClient(domainConfig(srv.URL))

	snap, err := client.CollectionSnapshot(t.Context(), testCollection)
	require.NoError(t, err)

	assert.Equal(t, "/collections/0x1111111111111111111111111111111111111111", gotPath)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "application/json", gotAccept)

	assert.Equal(t, testCollection, snap.Collection)
	assert.Equal(t, big.NewInt(1500000), snap.FloorPriceWei)
	assert.Equal(t, uint64(12), snap.ListedCount)
	assert.Equal(t, big.NewInt(34500000), snap.VolumeWei)
	assert.Zero(t, snap.SaleCount)
}

func TestMarketClientOmitsMissingAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"listed_count":3}`))
	}))
	defer srv.Close()

	client := NewMarketClient(domainConfig(srv.URL))

	snap, err := client.CollectionSnapshot(t.Context(), testCollection)
	require.NoError(t, err)

	assert.Nil(t, snap.FloorPriceWei)
	assert.Nil(t, snap.VolumeWei)
	assert.Equal(t, uint64(3), snap.ListedCount)
}

func TestRewardsClientParsesSnapshot(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pending_wei":"777000","claimed_wei":"120000"}`))
	}))
	defer srv.Close()

	client := NewRewardsClient(domainConfig(srv.URL))

	snap, err := client.CreatorRewards(t.Context(), testCreator)
	require.NoError(t, err)

	assert.Equal(t, "/creators/0x2222222222222222222222222222222222222222/rewards", gotPath)
	assert.Equal(t, testCreator, snap.Creator)
	assert.Equal(t, big.NewInt(777000), snap.PendingWei)
	assert.Equal(t, big.NewInt(120000), snap.ClaimedWei)
}

func TestClientRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewMarketClient(domainConfig(srv.URL))

	_, err := client.CollectionSnapshot(t.Context(), testCollection)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestClientRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"floor_price_wei":`))
	}))
	defer srv.Close()

	client := NewMarketClient(domainConfig(srv.URL))

	_, err := client.CollectionSnapshot(t.Context(), testCollection)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestParseWei(t *testing.T) {
	assert.Nil(t, parseWei(""))
	assert.Nil(t, parseWei("not-a-number"))
	assert.Equal(t, big.NewInt(42), parseWei("42"))
}
