package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/pkg/config"
)

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromYAML("../../config.example.yaml")
	if err != nil {
		t.Fatalf("failed to load YAML config: %v", err)
	}

	validateConfig(t, cfg, "YAML")
}

func TestLoadFromJSON(t *testing.T) {
	cfg, err := LoadFromJSON("../../config.example.json")
	if err != nil {
		t.Fatalf("failed to load JSON config: %v", err)
	}

	validateConfig(t, cfg, "JSON")
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFromTOML("../../config.example.toml")
	if err != nil {
		t.Fatalf("failed to load TOML config: %v", err)
	}

	validateConfig(t, cfg, "TOML")
}

func TestLoadFromFile_AutoDetect(t *testing.T) {
	for _, path := range []string{
		"../../config.example.yaml",
		"../../config.example.json",
		"../../config.example.toml",
	} {
		cfg, err := LoadFromFile(path)
		require.NoError(t, err, "auto-load %s", path)
		validateConfig(t, cfg, path)
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.Contains(t, err.Error(), "unsupported config file format")
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.NotEmpty(t, cfg.Chain.RPCURL, "[%s] chain.rpc_url should not be empty", format)

	// Scanner section with defaults applied
	require.NotZero(t, cfg.Scanner.BatchSize, "[%s] scanner.batch_size should not be zero", format)
	require.NotZero(t, cfg.Scanner.PollInterval.Duration, "[%s] scanner.poll_interval should have a default", format)
	require.Equal(t, "latest", cfg.Scanner.Finality, "[%s] scanner.finality", format)
	require.NotEmpty(t, cfg.Scanner.Sources, "[%s] there should be at least one scan source", format)

	for i, src := range cfg.Scanner.Sources {
		require.NotEmpty(t, src.ID, "[%s] sources[%d].id should not be empty", format, i)
		require.NotEmpty(t, src.Address, "[%s] sources[%d].address should not be empty", format, i)

		height, err := src.StartHeight()
		require.NoError(t, err, "[%s] sources[%d].start_block should parse", format, i)
		require.Equal(t, uint64(17500000), height, "[%s] sources[%d] start height", format, i)
	}

	// Stream section with defaults applied
	require.True(t, cfg.Stream.IsConfigured(), "[%s] stream should be configured", format)
	require.Equal(t, 30*time.Second, cfg.Stream.HeartbeatInterval.Duration, "[%s] heartbeat interval", format)
	require.NotZero(t, cfg.Stream.Reconnect.BaseDelay.Duration, "[%s] reconnect.base_delay default", format)
	require.NotZero(t, cfg.Stream.Reconnect.LongRetryInterval.Duration, "[%s] reconnect.long_retry_interval default", format)
	require.NotEmpty(t, cfg.Stream.Topics, "[%s] stream.topics should not be empty", format)

	// Cache domains
	require.True(t, cfg.Cache.Market.IsConfigured(), "[%s] cache.market should be configured", format)
	require.True(t, cfg.Cache.Rewards.IsConfigured(), "[%s] cache.rewards should be configured", format)
	require.NotZero(t, cfg.Cache.Rewards.ChunkSize, "[%s] cache.rewards.chunk_size default", format)
	require.NotZero(t, cfg.Cache.Rewards.Concurrency, "[%s] cache.rewards.concurrency default", format)

	// Database section with defaults applied
	require.NotEmpty(t, cfg.Database.Path, "[%s] database.path should not be empty", format)
	require.NotEmpty(t, cfg.Database.JournalMode, "[%s] database.journal_mode should have default value", format)
	require.NotEmpty(t, cfg.Database.Synchronous, "[%s] database.synchronous should have default value", format)
}

func TestConfigDefaults(t *testing.T) {
	cfg := &config.Config{
		Chain: config.ChainConfig{
			RPCURL: "https://test.example.com",
		},
		Database: config.DatabaseConfig{
			Path: "./test.db",
		},
	}

	cfg.ApplyDefaults()

	if cfg.Scanner.BatchSize != 10000 {
		t.Errorf("expected default batch_size=10000, got %d", cfg.Scanner.BatchSize)
	}

	if cfg.Scanner.PollInterval.Duration != 15*time.Second {
		t.Errorf("expected default poll_interval=15s, got %v", cfg.Scanner.PollInterval.Duration)
	}

	if cfg.Scanner.RetryDelay.Duration != 3*time.Second {
		t.Errorf("expected default retry_delay=3s, got %v", cfg.Scanner.RetryDelay.Duration)
	}

	if cfg.Database.JournalMode != "WAL" {
		t.Errorf("expected default journal_mode=WAL, got %s", cfg.Database.JournalMode)
	}

	if cfg.Database.Synchronous != "NORMAL" {
		t.Errorf("expected default synchronous=NORMAL, got %s", cfg.Database.Synchronous)
	}

	if cfg.Database.BusyTimeout != 5000 {
		t.Errorf("expected default busy_timeout=5000, got %d", cfg.Database.BusyTimeout)
	}

	if cfg.Database.MaxOpenConnections != 25 {
		t.Errorf("expected default max_open_connections=25, got %d", cfg.Database.MaxOpenConnections)
	}
}

func TestStreamDefaults(t *testing.T) {
	cfg := &config.Config{
		Stream: &config.StreamConfig{
			URL: "wss://feed.example.com/socket",
		},
		Database: config.DatabaseConfig{Path: "./test.db"},
	}

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	require.Equal(t, 30*time.Second, cfg.Stream.HeartbeatInterval.Duration)
	require.Equal(t, time.Second, cfg.Stream.Reconnect.BaseDelay.Duration)
	require.Equal(t, 60*time.Second, cfg.Stream.Reconnect.MaxDelay.Duration)
	require.Equal(t, 10, cfg.Stream.Reconnect.MaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.Stream.Reconnect.LongRetryInterval.Duration)
}

func TestConfigValidation(t *testing.T) {
	validSource := config.SourceConfig{
		ID:         "marketplace",
		Address:    "0x7a3bc1e5d4f2a9917c53f8c1b0ae426655a1de15",
		StartBlock: "100",
	}

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &config.Config{
				Chain:    config.ChainConfig{RPCURL: "https://test.example.com"},
				Scanner:  config.ScannerConfig{Sources: []config.SourceConfig{validSource}},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: false,
		},
		{
			// A missing RPC URL degrades the scanner instead of failing
			// validation, so the config itself stays valid.
			name: "missing rpc_url is not a validation error",
			cfg: &config.Config{
				Scanner:  config.ScannerConfig{Sources: []config.SourceConfig{validSource}},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: &config.Config{
				Chain: config.ChainConfig{RPCURL: "https://test.example.com"},
			},
			wantErr: true,
		},
		{
			name: "duplicate source ids",
			cfg: &config.Config{
				Chain:    config.ChainConfig{RPCURL: "https://test.example.com"},
				Scanner:  config.ScannerConfig{Sources: []config.SourceConfig{validSource, validSource}},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: true,
		},
		{
			name: "invalid source address",
			cfg: &config.Config{
				Chain: config.ChainConfig{RPCURL: "https://test.example.com"},
				Scanner: config.ScannerConfig{Sources: []config.SourceConfig{
					{ID: "bad", Address: "0x1234"},
				}},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: true,
		},
		{
			name: "invalid source start block",
			cfg: &config.Config{
				Chain: config.ChainConfig{RPCURL: "https://test.example.com"},
				Scanner: config.ScannerConfig{Sources: []config.SourceConfig{
					{ID: "bad", Address: "0x7a3bc1e5d4f2a9917c53f8c1b0ae426655a1de15", StartBlock: "abc"},
				}},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: true,
		},
		{
			name: "invalid finality",
			cfg: &config.Config{
				Chain:    config.ChainConfig{RPCURL: "https://test.example.com"},
				Scanner:  config.ScannerConfig{Finality: "pending", Sources: []config.SourceConfig{validSource}},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: true,
		},
		{
			name: "stream url with http scheme",
			cfg: &config.Config{
				Stream:   &config.StreamConfig{URL: "https://feed.example.com"},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: true,
		},
		{
			name: "cache min_interval above refresh_interval",
			cfg: &config.Config{
				Cache: &config.CacheConfig{
					Market: &config.CacheDomainConfig{
						BaseURL:         "https://api.example.com/v1/markets",
						RefreshInterval: mustDuration("30s"),
						MinInterval:     mustDuration("1m"),
					},
				},
				Database: config.DatabaseConfig{Path: "./test.db"},
			},
			wantErr: true,
		},
		{
			name: "invalid journal mode",
			cfg: &config.Config{
				Database: config.DatabaseConfig{Path: "./test.db", JournalMode: "BOGUS"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func mustDuration(s string) common.Duration {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return common.NewDuration(parsed)
}
