package ingest

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

const testRollupAddr = "0xfF00000000000000000000000000000000000042"

type stubBlobClient struct {
	blobs map[common.Hash][]byte
	err   error
}

func (c *stubBlobClient) BlobsByVersionedHashes(_ context.Context, _ uint64, hashes []common.Hash) ([][]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]byte, len(hashes))
	for i, h := range hashes {
		out[i] = c.blobs[h]
	}
	return out, nil
}

func blobTx(to common.Address, hashes ...common.Hash) *types.Transaction {
	return types.NewTx(&types.BlobTx{
		ChainID:    uint256.NewInt(1),
		Nonce:      1,
		GasTipCap:  uint256.NewInt(1),
		GasFeeCap:  uint256.NewInt(1),
		Gas:        21000,
		To:         to,
		BlobFeeCap: uint256.NewInt(1),
		BlobHashes: hashes,
	})
}

func legacyTx(to common.Address) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
	})
}

func blockWith(number uint64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{Number: new(big.Int).SetUint64(number), Time: 1700000000}
	return types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: txs})
}

func TestNewScanner_InvalidAddress(t *testing.T) {
	if _, err := NewScanner("not-an-address", &stubBlobClient{}); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestScanBlock_FiltersTypeAndAddress(t *testing.T) {
	rollup := common.HexToAddress(testRollupAddr)
	other := common.HexToAddress("0x1111111111111111111111111111111111111111")

	h1 := common.HexToHash("0x01aa000000000000000000000000000000000000000000000000000000000001")
	h2 := common.HexToHash("0x01aa000000000000000000000000000000000000000000000000000000000002")

	client := &stubBlobClient{blobs: map[common.Hash][]byte{
		h1: []byte("blob-one"),
		h2: []byte("blob-two"),
	}}

	// Config address deliberately lower-cased; the match must not care.
	s, err := NewScanner("0xff00000000000000000000000000000000000042", client)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	block := blockWith(7,
		legacyTx(rollup),         // right address, wrong type
		blobTx(other, h1),        // right type, wrong address
		blobTx(rollup, h1, h2),   // match
	)

	records, err := s.ScanBlock(context.Background(), block)
	if err != nil {
		t.Fatalf("ScanBlock failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.BlockNumber != 7 {
		t.Errorf("block number = %d, want 7", rec.BlockNumber)
	}
	if len(rec.BlobHashes) != 2 || rec.BlobHashes[0] != h1.Hex() || rec.BlobHashes[1] != h2.Hex() {
		t.Errorf("unexpected blob hashes: %v", rec.BlobHashes)
	}
	if rec.PartialBlobs {
		t.Error("record should not be partial when all sidecars resolve")
	}
	if string(rec.Blobs[0]) != "blob-one" || string(rec.Blobs[1]) != "blob-two" {
		t.Errorf("blobs not resolved in hash order: %q, %q", rec.Blobs[0], rec.Blobs[1])
	}
}

func TestScanBlock_NoMatchingTxs(t *testing.T) {
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	s, err := NewScanner(testRollupAddr, &stubBlobClient{})
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	records, err := s.ScanBlock(context.Background(), blockWith(9, legacyTx(other)))
	if err != nil {
		t.Fatalf("ScanBlock failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestScanBlock_MissingSidecarMarksPartial(t *testing.T) {
	rollup := common.HexToAddress(testRollupAddr)
	h1 := common.HexToHash("0x01bb000000000000000000000000000000000000000000000000000000000001")
	h2 := common.HexToHash("0x01bb000000000000000000000000000000000000000000000000000000000002")

	client := &stubBlobClient{blobs: map[common.Hash][]byte{h1: []byte("only-one")}}
	s, err := NewScanner(testRollupAddr, client)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	records, err := s.ScanBlock(context.Background(), blockWith(11, blobTx(rollup, h1, h2)))
	if err != nil {
		t.Fatalf("ScanBlock failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if !rec.PartialBlobs {
		t.Error("record with a missing sidecar must be partial")
	}
	if rec.Blobs[0] == nil || rec.Blobs[1] != nil {
		t.Errorf("expected [resolved, nil], got [%v, %v]", rec.Blobs[0], rec.Blobs[1])
	}
}

func TestScanBlock_ResolutionFailureStillProducesRecord(t *testing.T) {
	rollup := common.HexToAddress(testRollupAddr)
	h1 := common.HexToHash("0x01cc000000000000000000000000000000000000000000000000000000000001")

	client := &stubBlobClient{err: errors.New("beacon node down")}
	s, err := NewScanner(testRollupAddr, client)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	records, err := s.ScanBlock(context.Background(), blockWith(13, blobTx(rollup, h1)))
	if err != nil {
		t.Fatalf("ScanBlock failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if !rec.PartialBlobs {
		t.Error("record must be partial when resolution fails")
	}
	if rec.Blobs[0] != nil {
		t.Error("blob slot must stay nil on resolution failure")
	}
}
