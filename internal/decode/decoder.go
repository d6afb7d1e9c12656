package decode

import (
	"errors"
	"fmt"

	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/blob"
)

// ErrRecordMismatch reports decoded output whose identity does not match the
// input record. This is an invariant violation, not a decode failure; callers
// abort the run instead of marking the record failed.
var ErrRecordMismatch = errors.New("decoded batch does not match source record")

// ErrBlobsUnavailable marks a record whose blob set is still incomplete. The
// record stays pending and is retried on a later decode pass.
var ErrBlobsUnavailable = errors.New("blob bytes unavailable")

// DecodeError describes malformed batch data. Records failing with it are
// marked failed and excluded from export.
type DecodeError struct {
	TxHash string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode batch %s: %s", e.TxHash, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(txHash, reason string, err error) *DecodeError {
	return &DecodeError{TxHash: txHash, Reason: reason, Err: err}
}

// Decoder decodes raw batch records into structured batches. Decoding is a
// pure function of the record bytes: identical input always yields an
// identical DecodedBatch.
type Decoder struct {
	extractor Extractor
}

// NewDecoder builds a decoder for the given batch format identifier.
func NewDecoder(format string) (*Decoder, error) {
	e, err := ExtractorFor(format)
	if err != nil {
		return nil, err
	}
	return &Decoder{extractor: e}, nil
}

// Decode decodes one record. Entries from blob N precede entries from blob
// N+1, in the order the versioned hashes are listed on the transaction;
// relative order within a blob is preserved.
func (d *Decoder) Decode(rec *domain.RawBatchRecord) (*domain.DecodedBatch, error) {
	if len(rec.Blobs) == 0 {
		return nil, decodeErr(rec.TxHash, "record has no blob bytes", nil)
	}
	if !rec.HasAllBlobs() {
		return nil, fmt.Errorf("%w: record %s", ErrBlobsUnavailable, rec.TxHash)
	}

	out := &domain.DecodedBatch{
		TxHash:      rec.TxHash,
		BlockNumber: rec.BlockNumber,
		BlobCount:   len(rec.Blobs),
		Metadata: map[string]any{
			"format": d.extractor.Format(),
		},
	}

	for i, raw := range rec.Blobs {
		payload, err := blob.Payload(raw)
		if err != nil {
			return nil, decodeErr(rec.TxHash, fmt.Sprintf("blob %d is not canonical", i), err)
		}
		entries, meta, err := d.extractor.Extract(payload)
		if err != nil {
			return nil, decodeErr(rec.TxHash, fmt.Sprintf("blob %d payload malformed", i), err)
		}
		out.L2Transactions = append(out.L2Transactions, entries...)
		for k, v := range meta {
			out.Metadata[fmt.Sprintf("blob_%d_%s", i, k)] = v
		}
	}

	for i := range out.L2Transactions {
		out.L2Transactions[i].Index = i
	}
	out.EmptyBatch = len(out.L2Transactions) == 0

	if err := validate(rec, out); err != nil {
		return nil, err
	}
	return out, nil
}

// validate enforces the structural invariants on decoder output.
func validate(rec *domain.RawBatchRecord, batch *domain.DecodedBatch) error {
	if batch.TxHash != rec.TxHash || batch.BlockNumber != rec.BlockNumber {
		return fmt.Errorf("%w: got %s@%d, want %s@%d",
			ErrRecordMismatch, batch.TxHash, batch.BlockNumber, rec.TxHash, rec.BlockNumber)
	}
	if len(batch.L2Transactions) == 0 && !batch.EmptyBatch {
		return fmt.Errorf("%w: empty batch not tagged", ErrRecordMismatch)
	}
	return nil
}
