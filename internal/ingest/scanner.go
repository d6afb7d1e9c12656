package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/blob"
)

// Scanner extracts batch submissions from L1 blocks: blob-carrying
// transactions addressed to the rollup settlement contract.
type Scanner struct {
	rollupAddr common.Address
	blobs      blob.Client
	log        *slog.Logger
}

// NewScanner builds a scanner for the given rollup contract address. The
// address match is case-insensitive.
func NewScanner(rollupAddr string, blobs blob.Client) (*Scanner, error) {
	if !common.IsHexAddress(rollupAddr) {
		return nil, fmt.Errorf("invalid rollup address %q", rollupAddr)
	}
	return &Scanner{
		rollupAddr: common.HexToAddress(strings.ToLower(rollupAddr)),
		blobs:      blobs,
		log:        slog.Default().With("component", "scanner"),
	}, nil
}

// ScanBlock returns one RawBatchRecord per matching transaction. Sidecars
// that cannot be resolved leave nil blob slots and mark the record partial;
// a resolution failure on one transaction never aborts the rest of the
// block.
func (s *Scanner) ScanBlock(ctx context.Context, block *types.Block) ([]*domain.RawBatchRecord, error) {
	var records []*domain.RawBatchRecord

	for _, tx := range block.Transactions() {
		if tx.Type() != types.BlobTxType {
			continue
		}
		to := tx.To()
		if to == nil || *to != s.rollupAddr {
			continue
		}

		hashes := tx.BlobHashes()
		rec := &domain.RawBatchRecord{
			BlockNumber: block.NumberU64(),
			TxHash:      tx.Hash().Hex(),
			BlobHashes:  make([]string, len(hashes)),
			Blobs:       make([][]byte, len(hashes)),
			ReceivedAt:  time.Now().UTC(),
			State:       domain.RecordStatePending,
		}
		for i, h := range hashes {
			rec.BlobHashes[i] = h.Hex()
		}

		blobs, err := s.blobs.BlobsByVersionedHashes(ctx, block.Time(), hashes)
		if err != nil {
			s.log.Warn("Blob resolution failed, storing record without blobs",
				"tx", rec.TxHash, "block", rec.BlockNumber, "error", err)
			rec.PartialBlobs = true
		} else {
			rec.Blobs = blobs
			rec.PartialBlobs = !rec.HasAllBlobs()
			if rec.PartialBlobs {
				s.log.Warn("Some sidecars unavailable, record stored partial",
					"tx", rec.TxHash, "block", rec.BlockNumber)
			}
		}

		records = append(records, rec)
	}

	return records, nil
}
