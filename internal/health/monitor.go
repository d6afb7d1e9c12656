package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/storage"
)

// HeightFetcher fetches the latest L1 block number.
type HeightFetcher interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// StateReporter exposes the ingestion loop's current phase.
type StateReporter interface {
	Status() string
}

// StateFunc adapts a function to StateReporter.
type StateFunc func() string

func (f StateFunc) Status() string { return f() }

// Monitor aggregates health status from the chain, the store and the loop.
type Monitor struct {
	heights     HeightFetcher
	store       Pinger
	batches     storage.BatchRepository
	checkpoints storage.CheckpointRepository
	failed      storage.FailedBlockRepository
	loop        StateReporter

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor. loop and store may be nil.
func NewMonitor(
	heights HeightFetcher,
	store Pinger,
	batches storage.BatchRepository,
	checkpoints storage.CheckpointRepository,
	failed storage.FailedBlockRepository,
	loop StateReporter,
) *Monitor {
	return &Monitor{
		heights:     heights,
		store:       store,
		batches:     batches,
		checkpoints: checkpoints,
		failed:      failed,
		loop:        loop,
	}
}

// Check performs a health check. Results are cached for 10s so the endpoint
// cannot be used to hammer the RPC provider.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := Report{
		Status:         StatusHealthy,
		StoreHealthy:   true,
		ChainReachable: true,
	}
	if m.loop != nil {
		report.LoopState = m.loop.Status()
	}

	if m.store != nil {
		if err := m.store.Health(ctx); err != nil {
			report.StoreHealthy = false
		}
	}

	latest, err := m.heights.LatestBlock(ctx)
	if err != nil {
		report.ChainReachable = false
	} else {
		report.ChainHead = latest
		if cp, cpErr := m.checkpoints.Get(ctx); cpErr == nil {
			report.Checkpoint = cp.LastScannedBlock
			if latest > cp.LastScannedBlock {
				report.BlockLag = latest - cp.LastScannedBlock
			}
		}
	}

	if counts, cErr := m.batches.CountByState(ctx); cErr == nil {
		report.PendingRecords = counts[domain.RecordStatePending]
		report.FailedRecords = counts[domain.RecordStateFailed]
	}
	if m.failed != nil {
		if blocks, fErr := m.failed.GetAll(ctx); fErr == nil {
			report.FailedBlocks = len(blocks)
		}
	}

	switch {
	case !report.StoreHealthy:
		report.Status = StatusCritical
	case !report.ChainReachable || report.FailedBlocks > 50:
		report.Status = StatusDegraded
	case report.FailedBlocks > 0 || report.FailedRecords > 0:
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
