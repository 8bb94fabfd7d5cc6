package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/veltran/marketsync/internal/bus"
	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/pkg/config"
	"github.com/veltran/marketsync/pkg/events"
	"github.com/veltran/marketsync/pkg/records"
)

// Kind names a refresh domain.
type Kind string

const (
	// KindMarket is the per-collection market snapshot domain.
	KindMarket Kind = "market"

	// KindRewards is the per-creator reward snapshot domain.
	KindRewards Kind = "rewards"
)

// triggerBuffer sizes the bus subscription feeding event-driven refreshes.
const triggerBuffer = 64

// Skip reasons for the sweep-skipped metric.
const (
	skipInFlight  = "in_flight"
	skipDebounced = "debounced"
)

// Entry is one cached snapshot, keyed by its subject address.
type Entry[T any] struct {
	Key        string    `json:"key"`
	Value      T         `json:"value"`
	ComputedAt time.Time `json:"computed_at"`
}

// DomainStatus describes one refresh domain for the status surface.
type DomainStatus struct {
	Disabled      bool      `json:"disabled"`
	LastRefreshAt time.Time `json:"last_refresh_at"`
	AgeSeconds    float64   `json:"age_seconds"`
	Entries       int       `json:"entries"`
}

// domainRunner is the kind-independent view of a refresh domain.
type domainRunner interface {
	run(ctx context.Context) bool
	status() DomainStatus
	interval() time.Duration
}

// domain holds one refresh domain's snapshot map and sweep state. The
// in-flight flag is the single-flight guard; it never gates the other domain.
type domain[T any] struct {
	name string
	cfg  config.CacheDomainConfig
	log  *logger.Logger

	subjects func() ([]common.Address, error)
	fetch    func(ctx context.Context, subject common.Address) (T, error)

	inFlight atomic.Bool

	mu            sync.RWMutex
	entries       map[string]Entry[T]
	lastRefreshAt time.Time
}

func newDomain[T any](
	name string,
	cfg config.CacheDomainConfig,
	log *logger.Logger,
	subjects func() ([]common.Address, error),
	fetch func(ctx context.Context, subject common.Address) (T, error),
) *domain[T] {
	// Zero values would stall a wave forever.
	cfg.ChunkSize = max(cfg.ChunkSize, 1)
	cfg.Concurrency = max(cfg.Concurrency, 1)

	return &domain[T]{
		name:     name,
		cfg:      cfg,
		log:      log,
		subjects: subjects,
		fetch:    fetch,
		entries:  make(map[string]Entry[T]),
	}
}

// run executes one sweep over the domain's subject set. It returns false when
// the trigger was dropped (overlapping sweep, debounce window), the subject
// enumeration failed, or shutdown cut the sweep short. lastRefreshAt advances
// only on a completed sweep.
func (d *domain[T]) run(ctx context.Context) bool {
	if !d.inFlight.CompareAndSwap(false, true) {
		SweepsSkippedInc(d.name, skipInFlight)
		d.log.Debugf("%s refresh already in flight, trigger dropped", d.name)
		return false
	}
	defer d.inFlight.Store(false)

	d.mu.RLock()
	last := d.lastRefreshAt
	d.mu.RUnlock()

	if !last.IsZero() && time.Since(last) < d.cfg.MinInterval.Duration {
		SweepsSkippedInc(d.name, skipDebounced)
		d.log.Debugf("%s refresh debounced, last sweep %s ago",
			d.name, time.Since(last).Round(time.Millisecond))
		return false
	}

	start := time.Now()

	subjects, err := d.subjects()
	if err != nil {
		SweepFailuresInc(d.name)
		d.log.Errorw("failed to enumerate refresh subjects", "domain", d.name, "error", err)
		return false
	}

	// Pulls already in flight finish on a detached context; cancellation
	// lands between waves.
	fetchCtx := context.WithoutCancel(ctx)

	var failed atomic.Int64
	for offset := 0; offset < len(subjects); offset += d.cfg.ChunkSize {
		if offset > 0 {
			select {
			case <-ctx.Done():
				d.log.Warnw("refresh sweep interrupted", "domain", d.name)
				return false
			case <-time.After(d.cfg.ChunkDelay.Duration):
			}
		}

		var g errgroup.Group
		g.SetLimit(d.cfg.Concurrency)
		for _, subject := range subjects[offset:min(offset+d.cfg.ChunkSize, len(subjects))] {
			g.Go(func() error {
				if !d.refreshSubject(fetchCtx, subject) {
					failed.Add(1)
				}
				return nil
			})
		}
		// Workers never return errors; a failed subject keeps its prior entry.
		_ = g.Wait()

		if ctx.Err() != nil {
			d.log.Warnw("refresh sweep interrupted", "domain", d.name)
			return false
		}
	}

	d.mu.Lock()
	d.lastRefreshAt = time.Now().UTC()
	entries := len(d.entries)
	d.mu.Unlock()

	SweepsInc(d.name)
	SweepDurationObserve(d.name, time.Since(start))
	EntriesLog(d.name, entries)
	LastRefreshLog(d.name)

	d.log.Infow("refresh sweep complete",
		"domain", d.name,
		"subjects", len(subjects),
		"failed", failed.Load(),
		"entries", entries,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return true
}

// refreshSubject pulls one subject and stores the result. On failure the
// subject's prior entry stays as is.
func (d *domain[T]) refreshSubject(ctx context.Context, subject common.Address) bool {
	value, err := d.fetch(ctx, subject)
	if err != nil {
		FetchFailuresInc(d.name)
		d.log.Warnw("subject refresh failed, keeping prior entry",
			"domain", d.name, "subject", subject.Hex(), "error", err)
		return false
	}

	d.mu.Lock()
	d.entries[subject.Hex()] = Entry[T]{
		Key:        subject.Hex(),
		Value:      value,
		ComputedAt: time.Now().UTC(),
	}
	d.mu.Unlock()
	return true
}

func (d *domain[T]) entry(subject common.Address) (Entry[T], bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[subject.Hex()]
	return e, ok
}

func (d *domain[T]) status() DomainStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := DomainStatus{
		LastRefreshAt: d.lastRefreshAt,
		Entries:       len(d.entries),
	}
	if !d.lastRefreshAt.IsZero() {
		st.AgeSeconds = time.Since(d.lastRefreshAt).Seconds()
	}
	return st
}

func (d *domain[T]) interval() time.Duration {
	return d.cfg.RefreshInterval.Duration
}

// Refresher keeps the market and rewards snapshot maps warm. Each domain
// sweeps on its own schedule; marketplace events trigger an extra market
// sweep through the bus. An unconfigured domain stays disabled and reports
// that through Status.
type Refresher struct {
	log *logger.Logger
	bus *bus.Bus

	market  *domain[MarketSnapshot]
	rewards *domain[RewardSnapshot]
	runners map[Kind]domainRunner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the refresher. Domains without a configured pull endpoint are
// left disabled; a nil cache config disables both.
func New(cfg *config.CacheConfig, store records.Store, eventBus *bus.Bus, log *logger.Logger) (*Refresher, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if eventBus == nil {
		return nil, errors.New("event bus is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	r := &Refresher{
		log:     log.WithComponent(mcommon.ComponentCache),
		bus:     eventBus,
		runners: make(map[Kind]domainRunner),
	}

	if cfg != nil && cfg.Market.IsConfigured() {
		client := NewMarketClient(*cfg.Market)
		r.market = newDomain(string(KindMarket), *cfg.Market, r.log,
			store.ListAddresses,
			func(ctx context.Context, collection common.Address) (MarketSnapshot, error) {
				snap, err := client.CollectionSnapshot(ctx, collection)
				if err != nil {
					return MarketSnapshot{}, err
				}
				row, err := store.GetCollection(collection)
				if err != nil {
					return MarketSnapshot{}, fmt.Errorf("failed to load collection row: %w", err)
				}
				snap.SaleCount = row.SaleCount
				return snap, nil
			})
		r.runners[KindMarket] = r.market
	}

	if cfg != nil && cfg.Rewards.IsConfigured() {
		client := NewRewardsClient(*cfg.Rewards)
		r.rewards = newDomain(string(KindRewards), *cfg.Rewards, r.log,
			store.ListCreators, client.CreatorRewards)
		r.runners[KindRewards] = r.rewards
	}

	return r, nil
}

// Start launches the scheduled sweep loops and the event trigger loop.
// With no domains configured it is a no-op.
func (r *Refresher) Start(ctx context.Context) error {
	if len(r.runners) == 0 {
		r.log.Infow("no cache domains configured, refresher idle")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, runner := range r.runners {
		r.wg.Go(func() {
			r.runSchedule(runCtx, runner)
		})
	}
	if r.market != nil {
		r.wg.Go(func() {
			r.runTriggers(runCtx)
		})
	}

	r.log.Infow("cache refresher started", "domains", len(r.runners))
	return nil
}

// Stop cancels the loops and waits for them to drain.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Refresh triggers one sweep of the given domain. Overlap and debounce
// drops are silent no-ops; an unconfigured domain is skipped. Only an
// unknown kind is an error.
func (r *Refresher) Refresh(ctx context.Context, kind Kind) error {
	if kind != KindMarket && kind != KindRewards {
		return fmt.Errorf("unknown cache kind %q", kind)
	}

	runner, ok := r.runners[kind]
	if !ok {
		r.log.Debugf("cache domain %s is not configured, refresh skipped", kind)
		return nil
	}

	runner.run(ctx)
	return nil
}

// RefreshAll triggers one sweep of every configured domain.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, runner := range r.runners {
		runner.run(ctx)
	}
}

// Status reports both domains for the status surface, disabled ones included.
func (r *Refresher) Status() map[Kind]DomainStatus {
	out := make(map[Kind]DomainStatus, 2)
	for _, kind := range []Kind{KindMarket, KindRewards} {
		if runner, ok := r.runners[kind]; ok {
			out[kind] = runner.status()
		} else {
			out[kind] = DomainStatus{Disabled: true}
		}
	}
	return out
}

// Market returns the cached snapshot for a collection.
func (r *Refresher) Market(collection common.Address) (Entry[MarketSnapshot], bool) {
	if r.market == nil {
		return Entry[MarketSnapshot]{}, false
	}
	return r.market.entry(collection)
}

// Rewards returns the cached snapshot for a creator.
func (r *Refresher) Rewards(creator common.Address) (Entry[RewardSnapshot], bool) {
	if r.rewards == nil {
		return Entry[RewardSnapshot]{}, false
	}
	return r.rewards.entry(creator)
}

// runSchedule primes the domain once at startup, then sweeps on its cadence.
func (r *Refresher) runSchedule(ctx context.Context, runner domainRunner) {
	runner.run(ctx)

	ticker := time.NewTicker(runner.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runner.run(ctx)
		}
	}
}

// runTriggers feeds marketplace events into extra market sweeps. The
// single-flight guard and the debounce window absorb event floods.
func (r *Refresher) runTriggers(ctx context.Context) {
	sub := r.bus.Subscribe(triggerBuffer,
		events.KindCollectionRegistered, events.KindItemListed, events.KindItemSold)
	defer r.bus.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			r.log.Debugf("market refresh triggered by %s event", ev.EventKind())
			r.market.run(ctx)
		}
	}
}
