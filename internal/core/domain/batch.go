package domain

import "time"

type RecordState string

const (
	RecordStatePending RecordState = "pending"
	RecordStateDecoded RecordState = "decoded"
	RecordStateFailed  RecordState = "failed"
)

// RawBatchRecord is a batch submission as found on L1: one blob transaction
// addressed to the rollup settlement contract, plus the resolved blob bytes.
// TxHash is the unique key; re-ingesting the same transaction is a no-op.
type RawBatchRecord struct {
	BlockNumber   uint64      `json:"block_number"`
	TxHash        string      `json:"tx_hash"`
	BlobHashes    []string    `json:"blob_hashes"`
	Blobs         [][]byte    `json:"-"`
	PartialBlobs  bool        `json:"partial_blobs"`
	ReceivedAt    time.Time   `json:"received_at"`
	State         RecordState `json:"state"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

// HasAllBlobs reports whether every versioned hash resolved to blob bytes.
func (r *RawBatchRecord) HasAllBlobs() bool {
	if len(r.Blobs) != len(r.BlobHashes) {
		return false
	}
	for _, b := range r.Blobs {
		if b == nil {
			return false
		}
	}
	return true
}

// L2TxEntry is one structurally delimited unit extracted from a decoded
// batch. The payload is opaque to the core; Type is the first payload byte
// when present (EIP-2718 style), zero otherwise.
type L2TxEntry struct {
	Index   int    `json:"index"`
	Type    uint8  `json:"type"`
	Size    int    `json:"size"`
	Payload []byte `json:"payload"`
}

// DecodedBatch is the decoded form of exactly one RawBatchRecord. It is
// immutable once produced; re-decoding the same raw bytes yields an identical
// value and replaces any previous result.
type DecodedBatch struct {
	TxHash         string         `json:"tx_hash"`
	BlockNumber    uint64         `json:"block_number"`
	L2Transactions []L2TxEntry    `json:"l2_transactions"`
	Metadata       map[string]any `json:"metadata"`
	BlobCount      int            `json:"blob_count"`
	EmptyBatch     bool           `json:"empty_batch"`
}
