package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/batchwatch/internal/core/config"
	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/decode"
	"github.com/vietddude/batchwatch/internal/infra/storage"
	"github.com/vietddude/batchwatch/internal/ingest/metrics"
)

// State is the loop's observable phase.
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateDecoding State = "decoding"
)

// L1Reader is the slice of the L1 client the loop needs.
type L1Reader interface {
	LatestBlock(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, n uint64) (*types.Block, error)
}

// BlockScanner extracts batch records from a fetched block.
type BlockScanner interface {
	ScanBlock(ctx context.Context, block *types.Block) ([]*domain.RawBatchRecord, error)
}

// RescanQueue receives windows that failed scanning so a rescan worker can
// replay them later. Optional.
type RescanQueue interface {
	PushRange(ctx context.Context, start, end uint64) error
	PopRange(ctx context.Context) (start, end uint64, found bool, err error)
	AcquireLock(ctx context.Context, start, end uint64, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, start, end uint64) error
}

// Config holds the loop's knobs.
type Config struct {
	Scan          config.ScanConfig
	DecodeWorkers int
}

// Loop orchestrates scan and decode over a block range. One Run is a single
// pass: it scans from the checkpoint to the resolved range end, then decodes
// everything pending, then goes idle. Callers re-invoke to resume.
type Loop struct {
	cfg         Config
	l1          L1Reader
	scanner     BlockScanner
	decoder     *decode.Decoder
	batches     storage.BatchRepository
	checkpoints storage.CheckpointRepository
	failed      storage.FailedBlockRepository
	rescan      RescanQueue // may be nil
	log         *slog.Logger

	mu    sync.Mutex
	state State
}

// NewLoop wires an ingestion loop.
func NewLoop(
	cfg Config,
	l1 L1Reader,
	scanner BlockScanner,
	decoder *decode.Decoder,
	batches storage.BatchRepository,
	checkpoints storage.CheckpointRepository,
	failed storage.FailedBlockRepository,
	rescan RescanQueue,
) *Loop {
	return &Loop{
		cfg:         cfg,
		l1:          l1,
		scanner:     scanner,
		decoder:     decoder,
		batches:     batches,
		checkpoints: checkpoints,
		failed:      failed,
		rescan:      rescan,
		log:         slog.Default().With("component", "ingest"),
		state:       StateIdle,
	}
}

// Status returns the loop's current phase.
func (l *Loop) Status() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run executes one scan-then-decode pass over rng. The range end is resolved
// against the chain head exactly once; cancellation is honored between
// windows and between decode batches, never mid-record.
func (l *Loop) Run(ctx context.Context, rng domain.BlockRange) error {
	defer l.setState(StateIdle)

	latest, err := l.l1.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve chain head: %w", err)
	}
	metrics.ChainLatestBlock.Set(float64(latest))

	start, end, err := rng.Resolve(latest)
	if err != nil {
		return err
	}

	cp, err := l.checkpoints.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if cp.LastScannedBlock > 0 && cp.LastScannedBlock >= start {
		start = cp.LastScannedBlock + 1
	}

	if start <= end {
		l.setState(StateScanning)
		if err := l.scanRange(ctx, start, end); err != nil {
			return err
		}
	}

	l.setState(StateDecoding)
	if err := l.decodePass(ctx); err != nil {
		return err
	}

	return nil
}

// scanRange walks [start, end] in fixed-size windows. A window with any
// failed block is retried from the same start and never advances the
// checkpoint; a crash mid-window costs at most a re-scan of that window.
func (l *Loop) scanRange(ctx context.Context, start, end uint64) error {
	windowRetries := 0

	for ws := start; ws <= end; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		we := ws + l.cfg.Scan.WindowSize - 1
		if we > end {
			we = end
		}

		failedBlocks, err := l.scanWindow(ctx, ws, we)
		if err != nil {
			return fmt.Errorf("window [%d, %d]: %w", ws, we, err)
		}
		if len(failedBlocks) > 0 {
			windowRetries++
			l.log.Warn("Window scan incomplete, retrying",
				"window_start", ws, "window_end", we,
				"failed_blocks", len(failedBlocks), "attempt", windowRetries)

			if windowRetries >= l.cfg.Scan.MaxWindowRetries {
				if l.rescan != nil {
					if pushErr := l.rescan.PushRange(ctx, ws, we); pushErr != nil {
						l.log.Error("Failed to queue rescan range", "error", pushErr)
					}
				}
				return fmt.Errorf("window [%d, %d] failed %d consecutive times, first stuck block %d",
					ws, we, windowRetries, failedBlocks[0])
			}
			continue // same window start
		}

		windowRetries = 0
		if err := l.checkpoints.Advance(ctx, we); err != nil {
			return fmt.Errorf("failed to advance checkpoint to %d: %w", we, err)
		}
		metrics.CheckpointBlock.Set(float64(we))
		l.log.Info("Window scanned", "window_start", ws, "window_end", we)
		ws = we + 1
	}

	return nil
}

// scanWindow fetches the window's blocks in parallel, then scans and upserts
// strictly in block-number order. Per-block failures are collected; store
// failures are fatal.
func (l *Loop) scanWindow(ctx context.Context, ws, we uint64) ([]uint64, error) {
	blocks := make([]*types.Block, we-ws+1)
	blockErrs := make([]error, we-ws+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Scan.FetchWorkers)
	for n := ws; n <= we; n++ {
		g.Go(func() error {
			b, err := l.l1.BlockByNumber(gctx, n)
			blocks[n-ws] = b
			blockErrs[n-ws] = err
			return nil // fetch errors are per-block, not group-fatal
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failedBlocks []uint64
	for n := ws; n <= we; n++ {
		i := n - ws
		if blockErrs[i] != nil {
			failedBlocks = append(failedBlocks, n)
			l.noteFailedBlock(ctx, n, blockErrs[i])
			continue
		}

		records, err := l.scanner.ScanBlock(ctx, blocks[i])
		if err != nil {
			failedBlocks = append(failedBlocks, n)
			l.noteFailedBlock(ctx, n, err)
			continue
		}

		for _, rec := range records {
			if err := l.batches.Upsert(ctx, rec); err != nil {
				return nil, fmt.Errorf("failed to store record %s: %w", rec.TxHash, err)
			}
			metrics.BatchRecordsStored.Inc()
		}
		metrics.BlocksScanned.Inc()

		if l.failed != nil {
			_ = l.failed.Resolve(ctx, n)
		}
	}

	return failedBlocks, nil
}

func (l *Loop) noteFailedBlock(ctx context.Context, n uint64, err error) {
	l.log.Error("Block scan failed", "block", n, "error", err)
	if l.failed == nil {
		return
	}
	if addErr := l.failed.Add(ctx, &domain.FailedBlock{BlockNumber: n, Error: err.Error()}); addErr != nil {
		l.log.Error("Failed to track failed block", "block", n, "error", addErr)
	}
}

// decodePass decodes all pending records across a bounded worker pool. A
// record that fails decoding is marked failed and never blocks the others;
// records whose blobs are still unavailable stay pending for a later pass.
func (l *Loop) decodePass(ctx context.Context) error {
	pending, err := l.batches.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending records: %w", err)
	}
	metrics.PendingRecords.Set(float64(len(pending)))
	if len(pending) == 0 {
		return nil
	}

	workers := l.cfg.DecodeWorkers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range pending {
		g.Go(func() error {
			return l.decodeRecord(gctx, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	remaining, err := l.batches.Pending(ctx)
	if err == nil {
		metrics.PendingRecords.Set(float64(len(remaining)))
	}
	return nil
}

func (l *Loop) decodeRecord(ctx context.Context, rec *domain.RawBatchRecord) error {
	batch, err := l.decoder.Decode(rec)
	switch {
	case err == nil:
		if err := l.batches.MarkDecoded(ctx, rec.TxHash, batch); err != nil {
			return fmt.Errorf("failed to mark %s decoded: %w", rec.TxHash, err)
		}
		metrics.DecodesTotal.WithLabelValues("ok").Inc()
		return nil

	case errors.Is(err, decode.ErrBlobsUnavailable):
		// Sidecar still missing; stays pending for a later pass.
		l.log.Info("Blobs unavailable, record stays pending", "tx", rec.TxHash)
		metrics.DecodesTotal.WithLabelValues("unavailable").Inc()
		return nil

	case errors.Is(err, decode.ErrRecordMismatch):
		// Invariant violation; abort the run rather than corrupt state.
		return fmt.Errorf("record %s: %w", rec.TxHash, err)

	default:
		var de *decode.DecodeError
		if errors.As(err, &de) {
			if markErr := l.batches.MarkFailed(ctx, rec.TxHash, de.Reason); markErr != nil {
				return fmt.Errorf("failed to mark %s failed: %w", rec.TxHash, markErr)
			}
			l.log.Warn("Batch decode failed", "tx", rec.TxHash, "reason", de.Reason)
			metrics.DecodesTotal.WithLabelValues("failed").Inc()
			return nil
		}
		return fmt.Errorf("decode of %s: %w", rec.TxHash, err)
	}
}
