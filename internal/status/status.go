package status

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/veltran/marketsync/internal/cache"
	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/internal/metrics"
	"github.com/veltran/marketsync/internal/scanner"
	"github.com/veltran/marketsync/internal/stream"
	"github.com/veltran/marketsync/pkg/records"
)

// Component states reported on the status surface. A component that could
// not be configured keeps running as a no-op and reports not_configured.
const (
	StateOK            = "ok"
	StateNotConfigured = "not_configured"
	StateError         = "error"
)

// Snapshot is the process status document served at /status.
type Snapshot struct {
	Stream     stream.Status                     `json:"stream"`
	Caches     map[cache.Kind]cache.DomainStatus `json:"caches"`
	Scanner    []scanner.SourceStatus            `json:"scanner"`
	Records    *records.Stats                    `json:"records,omitempty"`
	Components map[string]string                 `json:"components"`
}

// Registry aggregates component states and live status providers into one
// snapshot. Providers are read lazily on every snapshot so the document is
// always current.
type Registry struct {
	log *logger.Logger

	mu         sync.RWMutex
	components map[string]string
	streamFn   func() stream.Status
	scannerFn  func() []scanner.SourceStatus
	cachesFn   func() map[cache.Kind]cache.DomainStatus
	recordsFn  func() (*records.Stats, error)
}

// NewRegistry creates an empty status registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:        log.WithComponent(mcommon.ComponentMetrics),
		components: make(map[string]string),
	}
}

// SetComponent records a component's state and mirrors it to the component
// health gauge.
func (r *Registry) SetComponent(name, state string) {
	r.mu.Lock()
	r.components[name] = state
	r.mu.Unlock()

	metrics.ComponentHealthSet(name, state == StateOK)
}

// ProvideStream installs the stream status provider.
func (r *Registry) ProvideStream(fn func() stream.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamFn = fn
}

// ProvideScanner installs the scanner status provider.
func (r *Registry) ProvideScanner(fn func() []scanner.SourceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scannerFn = fn
}

// ProvideCaches installs the cache status provider.
func (r *Registry) ProvideCaches(fn func() map[cache.Kind]cache.DomainStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cachesFn = fn
}

// ProvideRecords installs the record store stats provider.
func (r *Registry) ProvideRecords(fn func() (*records.Stats, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordsFn = fn
}

// Snapshot assembles the current status document.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	components := make(map[string]string, len(r.components))
	for name, state := range r.components {
		components[name] = state
	}
	streamFn := r.streamFn
	scannerFn := r.scannerFn
	cachesFn := r.cachesFn
	recordsFn := r.recordsFn
	r.mu.RUnlock()

	snap := Snapshot{
		Caches:     map[cache.Kind]cache.DomainStatus{},
		Components: components,
	}
	if streamFn != nil {
		snap.Stream = streamFn()
	}
	if scannerFn != nil {
		snap.Scanner = scannerFn()
	}
	if cachesFn != nil {
		snap.Caches = cachesFn()
	}
	if recordsFn != nil {
		stats, err := recordsFn()
		if err != nil {
			r.log.Warnw("failed to read record stats", "error", err)
		} else {
			snap.Records = stats
		}
	}
	return snap
}

// Handler serves the snapshot as JSON.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.Snapshot()); err != nil {
			r.log.Warnw("failed to encode status snapshot", "error", err)
		}
	})
}
