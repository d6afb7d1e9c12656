package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/storage"
)

// MemoryStorage is an in-memory implementation of the storage interfaces,
// used in tests and db-less runs.
type MemoryStorage struct {
	records    map[string]*domain.RawBatchRecord
	decoded    map[string]*domain.DecodedBatch
	checkpoint domain.Checkpoint
	failed     map[uint64]*domain.FailedBlock
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*domain.RawBatchRecord),
		decoded: make(map[string]*domain.DecodedBatch),
		failed:  make(map[uint64]*domain.FailedBlock),
	}
}

// -----------------------------------------------------------------------------
// Batch Repository
// -----------------------------------------------------------------------------

type BatchRepo struct {
	store *MemoryStorage
}

func NewBatchRepo(store *MemoryStorage) *BatchRepo {
	return &BatchRepo{store: store}
}

func (r *BatchRepo) Upsert(ctx context.Context, rec *domain.RawBatchRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if existing, ok := r.store.records[rec.TxHash]; ok {
		// Idempotent: only a still-pending partial record gets its blob
		// set refreshed.
		if existing.State == domain.RecordStatePending && existing.PartialBlobs {
			existing.BlobHashes = append([]string(nil), rec.BlobHashes...)
			existing.Blobs = copyBlobs(rec.Blobs)
			existing.PartialBlobs = rec.PartialBlobs
		}
		return nil
	}

	stored := *rec
	stored.BlobHashes = append([]string(nil), rec.BlobHashes...)
	stored.Blobs = copyBlobs(rec.Blobs)
	if stored.State == "" {
		stored.State = domain.RecordStatePending
	}
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now().UTC()
	}
	r.store.records[rec.TxHash] = &stored
	return nil
}

func (r *BatchRepo) Get(ctx context.Context, txHash string) (*domain.RawBatchRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[txHash]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	out := *rec
	return &out, nil
}

func (r *BatchRepo) Pending(ctx context.Context) ([]*domain.RawBatchRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.RawBatchRecord
	for _, rec := range r.store.records {
		if rec.State == domain.RecordStatePending {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].TxHash < out[j].TxHash
	})
	return out, nil
}

func (r *BatchRepo) MarkDecoded(ctx context.Context, txHash string, decoded *domain.DecodedBatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.records[txHash]
	if !ok {
		return storage.ErrRecordNotFound
	}
	rec.State = domain.RecordStateDecoded
	rec.FailureReason = ""
	r.store.decoded[txHash] = decoded
	return nil
}

func (r *BatchRepo) MarkFailed(ctx context.Context, txHash string, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.records[txHash]
	if !ok {
		return storage.ErrRecordNotFound
	}
	rec.State = domain.RecordStateFailed
	rec.FailureReason = reason
	delete(r.store.decoded, txHash)
	return nil
}

func (r *BatchRepo) PruneDecoded(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var pruned int64
	for txHash, rec := range r.store.records {
		if rec.State == domain.RecordStateDecoded && rec.ReceivedAt.Before(before) {
			delete(r.store.records, txHash)
			delete(r.store.decoded, txHash)
			pruned++
		}
	}
	return pruned, nil
}

func (r *BatchRepo) CountByState(ctx context.Context) (map[domain.RecordState]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.RecordState]int)
	for _, rec := range r.store.records {
		counts[rec.State]++
	}
	return counts, nil
}

func (r *BatchRepo) Export(ctx context.Context, from, to uint64) (<-chan *domain.DecodedBatch, <-chan error) {
	out := make(chan *domain.DecodedBatch)
	errc := make(chan error, 1)

	// Snapshot under lock, stream outside it.
	r.store.mu.RLock()
	var batches []*domain.DecodedBatch
	for txHash, rec := range r.store.records {
		if rec.State != domain.RecordStateDecoded {
			continue
		}
		if rec.BlockNumber < from || rec.BlockNumber > to {
			continue
		}
		if d, ok := r.store.decoded[txHash]; ok {
			batches = append(batches, d)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(batches, func(i, j int) bool {
		if batches[i].BlockNumber != batches[j].BlockNumber {
			return batches[i].BlockNumber < batches[j].BlockNumber
		}
		return batches[i].TxHash < batches[j].TxHash
	})

	go func() {
		defer close(out)
		defer close(errc)
		for _, b := range batches {
			select {
			case out <- b:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

func copyBlobs(blobs [][]byte) [][]byte {
	out := make([][]byte, len(blobs))
	for i, b := range blobs {
		if b != nil {
			out[i] = append([]byte(nil), b...)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Get(ctx context.Context) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cp := r.store.checkpoint
	return &cp, nil
}

func (r *CheckpointRepo) Advance(ctx context.Context, blockNumber uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if blockNumber <= r.store.checkpoint.LastScannedBlock {
		return nil // never regress
	}
	r.store.checkpoint.LastScannedBlock = blockNumber
	r.store.checkpoint.UpdatedAt = time.Now().UTC()
	return nil
}

// -----------------------------------------------------------------------------
// Failed Block Repository
// -----------------------------------------------------------------------------

type FailedRepo struct {
	store *MemoryStorage
}

func NewFailedRepo(store *MemoryStorage) *FailedRepo {
	return &FailedRepo{store: store}
}

func (r *FailedRepo) Add(ctx context.Context, fb *domain.FailedBlock) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.failed[fb.BlockNumber]; ok {
		existing.Error = fb.Error
		existing.RetryCount++
		existing.LastAttempt = time.Now().UTC()
		return nil
	}
	entry := *fb
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.LastAttempt = time.Now().UTC()
	entry.CreatedAt = time.Now().UTC()
	r.store.failed[fb.BlockNumber] = &entry
	return nil
}

func (r *FailedRepo) GetAll(ctx context.Context) ([]*domain.FailedBlock, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.FailedBlock, 0, len(r.store.failed))
	for _, fb := range r.store.failed {
		cp := *fb
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (r *FailedRepo) Resolve(ctx context.Context, blockNumber uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.failed, blockNumber)
	return nil
}
