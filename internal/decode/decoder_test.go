package decode

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/blob"
)

func encodeBlob(t *testing.T, txs [][]byte) []byte {
	t.Helper()
	payload, err := rlp.EncodeToBytes(txs)
	if err != nil {
		t.Fatalf("rlp encode failed: %v", err)
	}
	encoded, err := blob.Encode(payload)
	if err != nil {
		t.Fatalf("blob encode failed: %v", err)
	}
	return encoded
}

func record(t *testing.T, blobs ...[]byte) *domain.RawBatchRecord {
	t.Helper()
	hashes := make([]string, len(blobs))
	for i := range hashes {
		hashes[i] = "0x01"
	}
	return &domain.RawBatchRecord{
		BlockNumber: 100,
		TxHash:      "0xabc",
		BlobHashes:  hashes,
		Blobs:       blobs,
		State:       domain.RecordStatePending,
	}
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder("rlp")
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	return d
}

func TestDecode_Deterministic(t *testing.T) {
	d := newTestDecoder(t)
	rec := record(t, encodeBlob(t, [][]byte{{0x02, 0xaa}, {0x01, 0xbb, 0xcc}}))

	first, err := d.Decode(rec)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	second, err := d.Decode(rec)
	if err != nil {
		t.Fatalf("Second decode failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Decoding the same record twice produced different results")
	}
	if len(first.L2Transactions) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(first.L2Transactions))
	}
	if first.L2Transactions[0].Type != 0x02 {
		t.Errorf("Expected entry type 0x02, got 0x%02x", first.L2Transactions[0].Type)
	}
}

func TestDecode_EmptyBatch(t *testing.T) {
	d := newTestDecoder(t)
	rec := record(t, encodeBlob(t, [][]byte{}))

	batch, err := d.Decode(rec)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(batch.L2Transactions) != 0 {
		t.Errorf("Expected no entries, got %d", len(batch.L2Transactions))
	}
	if !batch.EmptyBatch {
		t.Error("Expected empty batch tag")
	}
}

func TestDecode_NoBlobs(t *testing.T) {
	d := newTestDecoder(t)
	rec := record(t)

	_, err := d.Decode(rec)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
}

func TestDecode_UnresolvedBlobStaysPending(t *testing.T) {
	d := newTestDecoder(t)
	rec := record(t, nil)
	rec.PartialBlobs = true

	_, err := d.Decode(rec)
	if !errors.Is(err, ErrBlobsUnavailable) {
		t.Fatalf("Expected ErrBlobsUnavailable, got %v", err)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		t.Error("Unavailable blobs must not be classified as a decode failure")
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	d := newTestDecoder(t)

	// Not a list: a single rlp byte string at the top level.
	payload, err := rlp.EncodeToBytes([]byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("rlp encode failed: %v", err)
	}
	encoded, err := blob.Encode(payload)
	if err != nil {
		t.Fatalf("blob encode failed: %v", err)
	}

	_, err = d.Decode(record(t, encoded))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DecodeError for non-list payload, got %v", err)
	}
}

func TestDecode_TrailingGarbage(t *testing.T) {
	d := newTestDecoder(t)

	payload, err := rlp.EncodeToBytes([][]byte{{0xaa}})
	if err != nil {
		t.Fatalf("rlp encode failed: %v", err)
	}
	payload = append(payload, 0x00, 0x00, 0xff) // non-zero byte after padding
	encoded, err := blob.Encode(payload)
	if err != nil {
		t.Fatalf("blob encode failed: %v", err)
	}

	_, err = d.Decode(record(t, encoded))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DecodeError for trailing garbage, got %v", err)
	}
}

func TestDecode_CrossBlobOrder(t *testing.T) {
	d := newTestDecoder(t)
	rec := record(t,
		encodeBlob(t, [][]byte{{0x01, 0x01}, {0x01, 0x02}}),
		encodeBlob(t, [][]byte{{0x01, 0x03}}),
	)

	batch, err := d.Decode(rec)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if batch.BlobCount != 2 {
		t.Errorf("Expected blob count 2, got %d", batch.BlobCount)
	}
	if len(batch.L2Transactions) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(batch.L2Transactions))
	}

	// Entries from blob 0 precede entries from blob 1, indexes sequential.
	wantLastByte := []byte{0x01, 0x02, 0x03}
	for i, entry := range batch.L2Transactions {
		if entry.Index != i {
			t.Errorf("Entry %d has index %d", i, entry.Index)
		}
		if entry.Payload[1] != wantLastByte[i] {
			t.Errorf("Entry %d: expected payload byte 0x%02x, got 0x%02x", i, wantLastByte[i], entry.Payload[1])
		}
	}
}

func TestValidate_Mismatch(t *testing.T) {
	rec := &domain.RawBatchRecord{TxHash: "0xabc", BlockNumber: 100}
	batch := &domain.DecodedBatch{TxHash: "0xdef", BlockNumber: 100, EmptyBatch: true}

	if err := validate(rec, batch); !errors.Is(err, ErrRecordMismatch) {
		t.Errorf("Expected ErrRecordMismatch, got %v", err)
	}
}

func TestNewDecoder_UnknownFormat(t *testing.T) {
	if _, err := NewDecoder("nonsense"); err == nil {
		t.Error("Expected error for unknown format")
	}
}
