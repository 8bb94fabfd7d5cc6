package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/veltran/marketsync/internal/bus"
	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	irpc "github.com/veltran/marketsync/internal/rpc"
	itypes "github.com/veltran/marketsync/internal/types"
	"github.com/veltran/marketsync/pkg/checkpoint"
	"github.com/veltran/marketsync/pkg/config"
	"github.com/veltran/marketsync/pkg/events"
	pkgrpc "github.com/veltran/marketsync/pkg/rpc"
)

// Compile-time check to ensure Scanner implements the Service interface.
var _ Service = (*Scanner)(nil)

// Service is the scanner surface the daemon drives.
type Service interface {
	// Start launches the per-source scan loops.
	Start(ctx context.Context) error

	// Stop cancels the loops and waits for in-flight batches to finish.
	Stop()

	// Status reports per-source scan progress for the status surface.
	Status() []SourceStatus
}

// NoOpScanner is used when no chain endpoint is configured.
type NoOpScanner struct{}

func (NoOpScanner) Start(context.Context) error { return nil }
func (NoOpScanner) Stop()                       {}
func (NoOpScanner) Status() []SourceStatus      { return nil }

// SourceStatus is one source's scan progress snapshot.
type SourceStatus struct {
	ID           string            `json:"id"`
	Address      ethcommon.Address `json:"address"`
	LastPosition uint64            `json:"last_position"`
	HeadTarget   uint64            `json:"head_target"`
	LastScanAt   time.Time         `json:"last_scan_at"`
	LastError    string            `json:"last_error,omitempty"`
}

// ScanResult summarizes one scan pass over a source. FromBlock > ToBlock
// means the source was already caught up and nothing was fetched.
type ScanResult struct {
	SourceID  string
	FromBlock uint64
	ToBlock   uint64
	Batches   int
	Events    int
	Skipped   int
}

// source is one configured emitter contract with its parsed fields.
type source struct {
	cfg     config.SourceConfig
	address ethcommon.Address
	start   uint64
}

// Scanner drives the per-source checkpointed batch scans. Sources scan
// concurrently with each other; batches within a source are strictly
// sequential.
type Scanner struct {
	cfg         config.ScannerConfig
	finality    itypes.BlockFinality
	rpc         pkgrpc.EthClient
	checkpoints checkpoint.Store
	processor   events.Processor
	bus         *bus.Bus
	log         *logger.Logger

	sources []*source

	statusMu sync.RWMutex
	status   map[string]*SourceStatus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scanner over the configured sources.
func New(
	cfg config.ScannerConfig,
	rpcClient pkgrpc.EthClient,
	checkpoints checkpoint.Store,
	processor events.Processor,
	eventBus *bus.Bus,
	log *logger.Logger,
) (*Scanner, error) {
	if rpcClient == nil {
		return nil, errors.New("RPC client is required")
	}
	if checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if processor == nil {
		return nil, errors.New("event processor is required")
	}
	if eventBus == nil {
		return nil, errors.New("event bus is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	finality, err := itypes.ParseBlockFinality(cfg.Finality)
	if err != nil {
		return nil, fmt.Errorf("invalid finality configuration: %w", err)
	}

	s := &Scanner{
		cfg:         cfg,
		finality:    finality,
		rpc:         rpcClient,
		checkpoints: checkpoints,
		processor:   processor,
		bus:         eventBus,
		log:         log.WithComponent(mcommon.ComponentScanner),
		sources:     make([]*source, 0, len(cfg.Sources)),
		status:      make(map[string]*SourceStatus, len(cfg.Sources)),
	}

	for _, srcCfg := range cfg.Sources {
		start, err := srcCfg.StartHeight()
		if err != nil {
			return nil, fmt.Errorf("source %s: invalid start block: %w", srcCfg.ID, err)
		}

		src := &source{
			cfg:     srcCfg,
			address: ethcommon.HexToAddress(srcCfg.Address),
			start:   start,
		}
		s.sources = append(s.sources, src)
		s.status[srcCfg.ID] = &SourceStatus{ID: srcCfg.ID, Address: src.address, LastPosition: start}
	}

	return s, nil
}

// Start launches one scan loop per source.
func (s *Scanner) Start(ctx context.Context) error {
	s.seedStatus()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, src := range s.sources {
		s.wg.Go(func() { s.runSource(runCtx, src) })
	}

	s.log.Infow("scanner started",
		"sources", len(s.sources),
		"batch_size", s.cfg.BatchSize,
		"finality", s.finality.String(),
		"confirmations", s.cfg.Confirmations,
	)

	return nil
}

// Stop cancels the scan loops and waits for in-flight batches to finish.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scanner stopped")
}

// Status returns per-source progress snapshots in config order.
func (s *Scanner) Status() []SourceStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	out := make([]SourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, *s.status[src.cfg.ID])
	}
	return out
}

// Scan runs one full catch-up pass for the source: batches from the
// checkpoint (or the configured start block) up to the confirmed head.
func (s *Scanner) Scan(ctx context.Context, sourceID string) (ScanResult, error) {
	for _, src := range s.sources {
		if src.cfg.ID == sourceID {
			return s.scanSource(ctx, src)
		}
	}
	return ScanResult{}, fmt.Errorf("unknown source %q", sourceID)
}

// runSource is one source's poll loop: scan to the head, sleep, repeat.
func (s *Scanner) runSource(ctx context.Context, src *source) {
	s.log.Infow("scan loop started",
		"source", src.cfg.ID,
		"address", src.address.Hex(),
		"start_block", src.start,
	)

	for {
		result, err := s.scanSource(ctx, src)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			s.log.Errorw("scan pass failed", "source", src.cfg.ID, "error", err)
		case result.Batches > 0:
			s.log.Infow("scan pass complete",
				"source", src.cfg.ID,
				"from_block", result.FromBlock,
				"to_block", result.ToBlock,
				"batches", result.Batches,
				"events", result.Events,
				"skipped", result.Skipped,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.PollInterval.Duration):
		}
	}
}

func (s *Scanner) scanSource(ctx context.Context, src *source) (ScanResult, error) {
	result := ScanResult{SourceID: src.cfg.ID}

	last := src.start
	cp, err := s.checkpoints.Get(src.cfg.ID)
	switch {
	case err == nil:
		last = cp.LastPosition
	case errors.Is(err, checkpoint.ErrNotFound):
		// First scan for this source starts right after its start block.
	default:
		s.setStatusError(src, err)
		return result, fmt.Errorf("failed to load checkpoint for source %s: %w", src.cfg.ID, err)
	}

	target, err := s.headTarget(ctx)
	if err != nil {
		s.setStatusError(src, err)
		return result, fmt.Errorf("failed to resolve head target: %w", err)
	}

	result.FromBlock = last + 1
	result.ToBlock = target

	s.updateStatus(src, func(st *SourceStatus) {
		st.LastPosition = last
		st.HeadTarget = target
		st.LastScanAt = time.Now().UTC()
		st.LastError = ""
	})
	HeadLagLog(src.cfg.ID, target, last)

	for batchFrom := last + 1; batchFrom <= target; {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batchTo := min(batchFrom+s.cfg.BatchSize-1, target)

		processedTo, eventCount, skipped, err := s.scanBatch(ctx, src, batchFrom, batchTo)
		if err != nil {
			s.setStatusError(src, err)
			return result, err
		}

		result.Batches++
		result.Events += eventCount
		result.Skipped += skipped
		result.ToBlock = processedTo

		s.updateStatus(src, func(st *SourceStatus) { st.LastPosition = processedTo })
		HeadLagLog(src.cfg.ID, target, processedTo)

		batchFrom = processedTo + 1
	}

	return result, nil
}

// scanBatch fetches one batch, decodes and hands every event to the
// processor, then advances the checkpoint and publishes the batch's events.
// The returned block may be below the requested toBlock when the range was
// shrunk to satisfy the provider.
func (s *Scanner) scanBatch(ctx context.Context, src *source, fromBlock, toBlock uint64) (uint64, int, int, error) {
	logs, actualTo, err := s.fetchLogs(ctx, src, fromBlock, toBlock)
	if err != nil {
		return 0, 0, 0, err
	}

	BatchesInc(src.cfg.ID)
	LogsAdd(src.cfg.ID, len(logs))

	decoded := make([]events.DomainEvent, 0, len(logs))
	skipped := 0
	for i := range logs {
		ev, err := DecodeLog(&logs[i])
		if err != nil {
			skipped++
			DecodeFailuresInc(src.cfg.ID)
			s.log.Warnw("skipping undecodable log",
				"source", src.cfg.ID,
				"block", logs[i].BlockNumber,
				"tx", logs[i].TxHash.Hex(),
				"log_index", logs[i].Index,
				"error", err,
			)
			continue
		}
		decoded = append(decoded, ev)
	}

	// Shutdown must not cut the hand-off between processing and the
	// checkpoint advance, so the batch finishes on a detached context.
	batchCtx := context.WithoutCancel(ctx)

	processed := make([]events.DomainEvent, 0, len(decoded))
	for _, ev := range decoded {
		if err := s.processor.Process(batchCtx, ev); err != nil {
			ProcessFailuresInc(src.cfg.ID)
			s.log.Errorw("failed to process event",
				"source", src.cfg.ID,
				"kind", string(ev.Kind),
				"tx", ev.TxHash.Hex(),
				"log_index", ev.LogIndex,
				"error", err,
			)
			continue
		}
		EventsInc(src.cfg.ID, string(ev.Kind))
		processed = append(processed, ev)
	}

	if err := s.checkpoints.Save(src.cfg.ID, actualTo); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to save checkpoint for source %s: %w", src.cfg.ID, err)
	}

	for _, ev := range processed {
		s.bus.Publish(ev)
	}

	s.log.Debugf("batch complete: source=%s, range=[%d,%d], logs=%d, events=%d, skipped=%d",
		src.cfg.ID, fromBlock, actualTo, len(logs), len(processed), skipped)

	return actualTo, len(processed), skipped, nil
}

// fetchLogs retrieves the range's logs, retrying failures on a fixed delay
// and shrinking the range when the provider rejects the response size or the
// failures persist. The range start never moves; only the end shrinks.
func (s *Scanner) fetchLogs(ctx context.Context, src *source, fromBlock, toBlock uint64) ([]types.Log, uint64, error) {
	attempts := 0

	for {
		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []ethcommon.Address{src.address},
			Topics:    [][]ethcommon.Hash{MarketplaceTopics()},
		}

		logs, err := s.rpc.GetLogs(ctx, query)
		if err == nil {
			return logs, toBlock, nil
		}

		// Oversized response: resize right away, using the provider's hint
		// when it covers our range start.
		if ok, errData := irpc.IsTooManyResultsError(err); ok {
			if suggestedFrom, suggestedTo, ok := irpc.ParseSuggestedBlockRange(errData); ok &&
				suggestedFrom == fromBlock && suggestedTo >= fromBlock && suggestedTo < toBlock {
				s.log.Infof("too many logs, retrying with suggested block range from %d to %d (original range %d to %d)",
					suggestedFrom, suggestedTo, fromBlock, toBlock)
				toBlock = suggestedTo
				continue
			}

			if toBlock == fromBlock {
				return nil, 0, fmt.Errorf("single block %d has too many logs: %w", fromBlock, err)
			}
			mid := fromBlock + (toBlock-fromBlock)/2
			s.log.Infof("too many logs, retrying with halved block range from %d to %d (original range %d to %d)",
				fromBlock, mid, fromBlock, toBlock)
			toBlock = mid
			continue
		}

		attempts++
		BatchRetriesInc(src.cfg.ID)

		if attempts >= s.cfg.MaxBatchRetries {
			if toBlock == fromBlock {
				return nil, 0, fmt.Errorf("failed to fetch logs for block %d after %d attempts: %w",
					fromBlock, attempts, err)
			}
			mid := fromBlock + (toBlock-fromBlock)/2
			s.log.Warnw("repeated fetch failures, halving batch",
				"source", src.cfg.ID,
				"from_block", fromBlock,
				"to_block", toBlock,
				"new_to_block", mid,
				"error", err,
			)
			toBlock = mid
			attempts = 0
		} else {
			s.log.Warnw("fetch failed, retrying",
				"source", src.cfg.ID,
				"from_block", fromBlock,
				"to_block", toBlock,
				"attempt", attempts,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(s.cfg.RetryDelay.Duration):
		}
	}
}

// headTarget resolves the configured finality anchor minus the confirmation
// depth. A head below the confirmation depth yields target 0 (nothing
// scannable yet).
func (s *Scanner) headTarget(ctx context.Context) (uint64, error) {
	var (
		header *types.Header
		err    error
	)

	switch s.finality {
	case itypes.FinalityFinalized:
		header, err = s.rpc.GetFinalizedBlockHeader(ctx)
	case itypes.FinalitySafe:
		header, err = s.rpc.GetSafeBlockHeader(ctx)
	case itypes.FinalityLatest:
		header, err = s.rpc.GetLatestBlockHeader(ctx)
	default:
		return 0, fmt.Errorf("invalid finality mode: %s", s.finality)
	}
	if err != nil {
		return 0, err
	}

	head := header.Number.Uint64()
	if head < s.cfg.Confirmations {
		return 0, nil
	}
	return head - s.cfg.Confirmations, nil
}

// seedStatus overwrites the configured start positions with stored checkpoint
// positions so the status surface reports durable progress before the first
// poll completes.
func (s *Scanner) seedStatus() {
	cps, err := s.checkpoints.All()
	if err != nil {
		s.log.Warnw("failed to read stored checkpoints", "error", err)
		return
	}

	positions := make(map[string]uint64, len(cps))
	for _, cp := range cps {
		positions[cp.SourceID] = cp.LastPosition
	}

	for _, src := range s.sources {
		if pos, ok := positions[src.cfg.ID]; ok {
			s.updateStatus(src, func(st *SourceStatus) { st.LastPosition = pos })
		}
	}
}

func (s *Scanner) updateStatus(src *source, fn func(*SourceStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	fn(s.status[src.cfg.ID])
}

func (s *Scanner) setStatusError(src *source, err error) {
	s.updateStatus(src, func(st *SourceStatus) { st.LastError = err.Error() })
}
