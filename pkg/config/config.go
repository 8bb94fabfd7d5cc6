package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
)

// Config is the complete marketsync configuration.
type Config struct {
	// Chain contains the ledger RPC endpoint configuration
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// Scanner contains the log scanner configuration and its sources
	Scanner ScannerConfig `yaml:"scanner" json:"scanner" toml:"scanner"`

	// Stream contains the partner push-feed configuration
	Stream *StreamConfig `yaml:"stream,omitempty" json:"stream,omitempty" toml:"stream,omitempty"`

	// Cache contains the snapshot refresher configuration
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty" toml:"cache,omitempty"`

	// Database contains SQLite storage configuration
	Database DatabaseConfig `yaml:"database" json:"database" toml:"database"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig points the scanner and the enrichment reads at a ledger RPC
// endpoint. An empty RPCURL disables chain ingestion instead of failing
// validation; the affected components report not_configured.
type ChainConfig struct {
	// RPCURL is the JSON-RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// IsConfigured reports whether a chain endpoint was provided.
func (c *ChainConfig) IsConfigured() bool {
	return c.RPCURL != ""
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.Retry != nil {
		c.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff mcommon.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff mcommon.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = mcommon.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = mcommon.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// ScannerConfig drives the checkpointed block-range scanner.
type ScannerConfig struct {
	// BatchSize is the block range per get-logs call
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// PollInterval is how often each source checks for new blocks once caught up
	PollInterval mcommon.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// RetryDelay is the fixed wait before retrying a failed batch fetch
	RetryDelay mcommon.Duration `yaml:"retry_delay" json:"retry_delay" toml:"retry_delay"`

	// MaxBatchRetries is how many same-size retries a batch gets before the
	// range is halved
	MaxBatchRetries int `yaml:"max_batch_retries" json:"max_batch_retries" toml:"max_batch_retries"`

	// Confirmations is subtracted from the observed head before batching,
	// keeping the scanner clear of re-organized tail blocks (0 = scan to head)
	Confirmations uint64 `yaml:"confirmations" json:"confirmations" toml:"confirmations"`

	// Finality selects the head anchor: "latest", "safe", or "finalized".
	// Confirmations are subtracted from whichever anchor is chosen.
	Finality string `yaml:"finality" json:"finality" toml:"finality"`

	// Sources lists the contracts to scan, each with its own checkpoint
	Sources []SourceConfig `yaml:"sources" json:"sources" toml:"sources"`
}

// ApplyDefaults sets default values for optional scanner configuration fields.
func (s *ScannerConfig) ApplyDefaults() {
	if s.BatchSize == 0 {
		s.BatchSize = 10000
	}
	if s.PollInterval.Duration == 0 {
		s.PollInterval = mcommon.NewDuration(15 * time.Second) //nolint:mnd
	}
	if s.RetryDelay.Duration == 0 {
		s.RetryDelay = mcommon.NewDuration(3 * time.Second) //nolint:mnd
	}
	if s.MaxBatchRetries == 0 {
		s.MaxBatchRetries = 3
	}
	if s.Finality == "" {
		s.Finality = "latest"
	}
}

// SourceConfig identifies one scanned contract. ID keys the checkpoint row,
// so renaming it restarts the source from its start block.
type SourceConfig struct {
	// ID is the unique checkpoint key for this source
	ID string `yaml:"id" json:"id" toml:"id"`

	// Address is the emitter contract address
	Address string `yaml:"address" json:"address" toml:"address"`

	// StartBlock is the genesis height for a source without a checkpoint,
	// decimal or 0x-prefixed hex
	StartBlock string `yaml:"start_block" json:"start_block" toml:"start_block"`
}

// StartHeight parses StartBlock. An empty value parses to zero.
func (s *SourceConfig) StartHeight() (uint64, error) {
	if s.StartBlock == "" {
		return 0, nil
	}
	return mcommon.ParseUint64orHex(&s.StartBlock)
}

// StreamConfig configures the partner push-feed connector. An empty URL
// disables the connector instead of failing validation.
type StreamConfig struct {
	// URL is the WebSocket endpoint (ws:// or wss://)
	URL string `yaml:"url" json:"url" toml:"url"`

	// APIKey is sent as a bearer token on the handshake when present
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" toml:"api_key,omitempty"`

	// Topics are joined on every (re)connect
	Topics []string `yaml:"topics,omitempty" json:"topics,omitempty" toml:"topics,omitempty"`

	// HeartbeatInterval is how often a heartbeat frame is sent while connected
	HeartbeatInterval mcommon.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval" toml:"heartbeat_interval"`

	// Reconnect tunes the backoff between connection attempts
	Reconnect ReconnectConfig `yaml:"reconnect" json:"reconnect" toml:"reconnect"`
}

// IsConfigured reports whether a feed endpoint was provided.
func (s *StreamConfig) IsConfigured() bool {
	return s != nil && s.URL != ""
}

// ApplyDefaults sets default values for optional stream configuration fields.
func (s *StreamConfig) ApplyDefaults() {
	if s.HeartbeatInterval.Duration == 0 {
		s.HeartbeatInterval = mcommon.NewDuration(30 * time.Second) //nolint:mnd
	}
	s.Reconnect.ApplyDefaults()
}

// Validate checks stream configuration consistency.
func (s *StreamConfig) Validate() error {
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("url: scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	return s.Reconnect.Validate()
}

// ReconnectConfig shapes the reconnect delay: min(base * 2^attempts, max),
// jittered, then a long fixed interval once attempts exceed MaxAttempts.
type ReconnectConfig struct {
	// BaseDelay seeds the exponential backoff
	BaseDelay mcommon.Duration `yaml:"base_delay" json:"base_delay" toml:"base_delay"`

	// MaxDelay caps the exponential backoff
	MaxDelay mcommon.Duration `yaml:"max_delay" json:"max_delay" toml:"max_delay"`

	// MaxAttempts bounds exponential growth; past it the connector retries
	// on LongRetryInterval instead of giving up
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// LongRetryInterval is the slow self-healing retry cadence
	LongRetryInterval mcommon.Duration `yaml:"long_retry_interval" json:"long_retry_interval" toml:"long_retry_interval"`
}

// ApplyDefaults sets default values for optional reconnect configuration fields.
func (r *ReconnectConfig) ApplyDefaults() {
	if r.BaseDelay.Duration == 0 {
		r.BaseDelay = mcommon.NewDuration(1 * time.Second)
	}
	if r.MaxDelay.Duration == 0 {
		r.MaxDelay = mcommon.NewDuration(60 * time.Second) //nolint:mnd
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 10
	}
	if r.LongRetryInterval.Duration == 0 {
		r.LongRetryInterval = mcommon.NewDuration(5 * time.Minute) //nolint:mnd
	}
}

// Validate checks reconnect configuration consistency.
func (r *ReconnectConfig) Validate() error {
	if r.MaxDelay.Duration < r.BaseDelay.Duration {
		return fmt.Errorf("reconnect.max_delay must be >= reconnect.base_delay")
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must be >= 0")
	}
	return nil
}

// CacheConfig holds the two snapshot refresh domains. Either domain may be
// absent or unconfigured; the other keeps running.
type CacheConfig struct {
	// Market configures per-collection market snapshot refreshes
	Market *CacheDomainConfig `yaml:"market,omitempty" json:"market,omitempty" toml:"market,omitempty"`

	// Rewards configures per-creator reward snapshot refreshes
	Rewards *CacheDomainConfig `yaml:"rewards,omitempty" json:"rewards,omitempty" toml:"rewards,omitempty"`
}

// ApplyDefaults sets default values for both cache domains.
func (c *CacheConfig) ApplyDefaults() {
	if c.Market != nil {
		c.Market.ApplyDefaults(60*time.Second, 30*time.Second) //nolint:mnd
	}
	if c.Rewards != nil {
		c.Rewards.ApplyDefaults(5*time.Minute, time.Minute) //nolint:mnd
	}
}

// Validate checks both cache domains.
func (c *CacheConfig) Validate() error {
	if c.Market != nil {
		if err := c.Market.Validate(); err != nil {
			return fmt.Errorf("market: %w", err)
		}
	}
	if c.Rewards != nil {
		if err := c.Rewards.Validate(); err != nil {
			return fmt.Errorf("rewards: %w", err)
		}
	}
	return nil
}

// CacheDomainConfig tunes one refresh domain. An empty BaseURL disables the
// domain instead of failing validation.
type CacheDomainConfig struct {
	// BaseURL is the pull API endpoint for this domain
	BaseURL string `yaml:"base_url" json:"base_url" toml:"base_url"`

	// APIKey is sent on pull requests when present
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" toml:"api_key,omitempty"`

	// RefreshInterval is the scheduled sweep cadence
	RefreshInterval mcommon.Duration `yaml:"refresh_interval" json:"refresh_interval" toml:"refresh_interval"`

	// MinInterval debounces triggers arriving too soon after a completed sweep
	MinInterval mcommon.Duration `yaml:"min_interval" json:"min_interval" toml:"min_interval"`

	// ChunkSize is how many subjects are fetched per worker wave
	ChunkSize int `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`

	// ChunkDelay is the pause between waves, respecting upstream rate limits
	ChunkDelay mcommon.Duration `yaml:"chunk_delay" json:"chunk_delay" toml:"chunk_delay"`

	// Concurrency bounds parallel fetches within a wave
	Concurrency int `yaml:"concurrency" json:"concurrency" toml:"concurrency"`

	// RequestTimeout bounds a single pull request
	RequestTimeout mcommon.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`
}

// IsConfigured reports whether a pull endpoint was provided.
func (c *CacheDomainConfig) IsConfigured() bool {
	return c != nil && c.BaseURL != ""
}

// ApplyDefaults sets default values for optional domain fields.
func (c *CacheDomainConfig) ApplyDefaults(refreshInterval, minInterval time.Duration) {
	if c.RefreshInterval.Duration == 0 {
		c.RefreshInterval = mcommon.NewDuration(refreshInterval)
	}
	if c.MinInterval.Duration == 0 {
		c.MinInterval = mcommon.NewDuration(minInterval)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 10
	}
	if c.ChunkDelay.Duration == 0 {
		c.ChunkDelay = mcommon.NewDuration(200 * time.Millisecond) //nolint:mnd
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = mcommon.NewDuration(10 * time.Second) //nolint:mnd
	}
}

// Validate checks domain configuration consistency.
func (c *CacheDomainConfig) Validate() error {
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be >= 0")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0")
	}
	if c.MinInterval.Duration > c.RefreshInterval.Duration {
		return fmt.Errorf("min_interval must be <= refresh_interval")
	}
	return nil
}

// DatabaseConfig represents SQLite storage configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MmapSizeMB maps the database file into memory up to this many megabytes
	MmapSizeMB uint64 `yaml:"mmap_size_mb" json:"mmap_size_mb" toml:"mmap_size_mb"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// MmapSizeMB defaults to 0 (disabled)
	// EnableForeignKeys defaults to false (zero value)
}

// Validate checks database configuration consistency.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}

	validJournal := []string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}
	if d.JournalMode != "" && !slices.Contains(validJournal, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	validSync := []string{"FULL", "NORMAL", "OFF"}
	if d.Synchronous != "" && !slices.Contains(validSync, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval mcommon.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = mcommon.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
	// Enabled defaults to false (zero value)
	// VacuumOnStartup defaults to false (zero value)
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("wal_checkpoint_mode must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - scanner: Block-range log scanning
	//   - processor: Event enrichment and upserts
	//   - checkpoint: Checkpoint persistence
	//   - stream: Push-feed connector
	//   - cache-refresher: Snapshot refreshes
	//   - event-bus: In-process fan-out
	//   - records: Durable record store
	//   - rpc: Ledger RPC client
	//   - metrics: Metrics HTTP server
	//   - db-maintenance: Database maintenance
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[mcommon.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := mcommon.AllComponents[mcommon.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[mcommon.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return mcommon.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return mcommon.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Chain.ApplyDefaults()
	c.Scanner.ApplyDefaults()

	if c.Stream != nil {
		c.Stream.ApplyDefaults()
	}
	if c.Cache != nil {
		c.Cache.ApplyDefaults()
	}

	c.Database.ApplyDefaults()

	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks configuration consistency. Missing external endpoints
// (chain RPC, feed URL, pull APIs) are not errors; the owning component
// starts disabled and says so in its status.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Scanner.Finality != "latest" && c.Scanner.Finality != "safe" && c.Scanner.Finality != "finalized" {
		return fmt.Errorf("scanner.finality must be one of: 'latest', 'safe', or 'finalized'")
	}

	sourceIDs := make(map[string]bool)
	for i, src := range c.Scanner.Sources {
		if src.ID == "" {
			return fmt.Errorf("scanner.sources[%d]: id is required", i)
		}
		if sourceIDs[src.ID] {
			return fmt.Errorf("scanner.sources[%d]: duplicate source id '%s'", i, src.ID)
		}
		sourceIDs[src.ID] = true

		if src.Address == "" {
			return fmt.Errorf("scanner.sources[%d] (%s): address is required", i, src.ID)
		}
		if !common.IsHexAddress(src.Address) {
			return fmt.Errorf("scanner.sources[%d] (%s): invalid address '%s'", i, src.ID, src.Address)
		}
		if _, err := src.StartHeight(); err != nil {
			return fmt.Errorf("scanner.sources[%d] (%s): invalid start_block: %w", i, src.ID, err)
		}
	}

	if c.Stream != nil {
		if err := c.Stream.Validate(); err != nil {
			return fmt.Errorf("stream: %w", err)
		}
	}

	if c.Cache != nil {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}

	if c.Maintenance != nil {
		if err := c.Maintenance.Validate(); err != nil {
			return fmt.Errorf("maintenance: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
