package memory

import (
	"context"
	"testing"

	"github.com/vietddude/batchwatch/internal/core/domain"
)

func pendingRecord(block uint64, txHash string) *domain.RawBatchRecord {
	return &domain.RawBatchRecord{
		BlockNumber: block,
		TxHash:      txHash,
		BlobHashes:  []string{"0x01"},
		Blobs:       [][]byte{{0xde, 0xad}},
		State:       domain.RecordStatePending,
	}
}

func TestBatchRepo_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewBatchRepo(store)

	rec := pendingRecord(100, "0xaa")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	pending, err := repo.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 record after double upsert, got %d", len(pending))
	}
}

func TestBatchRepo_UpsertCompletesPartialBlobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewBatchRepo(store)

	partial := pendingRecord(100, "0xaa")
	partial.Blobs = [][]byte{nil}
	partial.PartialBlobs = true
	if err := repo.Upsert(ctx, partial); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	complete := pendingRecord(100, "0xaa")
	if err := repo.Upsert(ctx, complete); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := repo.Get(ctx, "0xaa")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PartialBlobs {
		t.Error("Expected partial flag cleared after completing upsert")
	}
	if !got.HasAllBlobs() {
		t.Error("Expected all blobs resolved after completing upsert")
	}
}

func TestBatchRepo_PendingOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewBatchRepo(store)

	for _, rec := range []*domain.RawBatchRecord{
		pendingRecord(200, "0xbb"),
		pendingRecord(100, "0xcc"),
		pendingRecord(100, "0xaa"),
	} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	pending, err := repo.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}

	want := []string{"0xaa", "0xcc", "0xbb"}
	if len(pending) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(pending))
	}
	for i, rec := range pending {
		if rec.TxHash != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], rec.TxHash)
		}
	}
}

func TestBatchRepo_MarkTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewBatchRepo(store)

	if err := repo.Upsert(ctx, pendingRecord(100, "0xaa")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, pendingRecord(101, "0xbb")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	decoded := &domain.DecodedBatch{TxHash: "0xaa", BlockNumber: 100, EmptyBatch: true}
	if err := repo.MarkDecoded(ctx, "0xaa", decoded); err != nil {
		t.Fatalf("MarkDecoded failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "0xbb", "malformed rlp"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	counts, err := repo.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState failed: %v", err)
	}
	if counts[domain.RecordStateDecoded] != 1 || counts[domain.RecordStateFailed] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}

	failed, err := repo.Get(ctx, "0xbb")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if failed.FailureReason != "malformed rlp" {
		t.Errorf("Expected failure reason, got %q", failed.FailureReason)
	}
}

func TestCheckpointRepo_Monotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewCheckpointRepo(store)

	if err := repo.Advance(ctx, 100); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := repo.Advance(ctx, 50); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	cp, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp.LastScannedBlock != 100 {
		t.Errorf("Expected checkpoint at 100 after regression attempt, got %d", cp.LastScannedBlock)
	}
}

func TestBatchRepo_ExportDecodedOnlyInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewBatchRepo(store)

	for _, rec := range []*domain.RawBatchRecord{
		pendingRecord(100, "0xaa"),
		pendingRecord(101, "0xbb"),
		pendingRecord(102, "0xcc"),
		pendingRecord(300, "0xdd"),
	} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	mark := func(hash string, block uint64) {
		if err := repo.MarkDecoded(ctx, hash, &domain.DecodedBatch{TxHash: hash, BlockNumber: block, EmptyBatch: true}); err != nil {
			t.Fatalf("MarkDecoded failed: %v", err)
		}
	}
	mark("0xcc", 102)
	mark("0xaa", 100)
	mark("0xdd", 300) // outside export range
	if err := repo.MarkFailed(ctx, "0xbb", "bad"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	out, errc := repo.Export(ctx, 100, 200)
	var got []string
	for b := range out {
		got = append(got, b.TxHash)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	want := []string{"0xaa", "0xcc"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
