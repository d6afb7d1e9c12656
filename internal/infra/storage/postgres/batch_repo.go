package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/storage"
)

// BatchRepo implements storage.BatchRepository using PostgreSQL.
type BatchRepo struct {
	db *DB
}

// NewBatchRepo creates a new PostgreSQL batch record repository.
func NewBatchRepo(db *DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// Blobs are stored as a bytea array; an unresolved sidecar is stored as an
// empty element (real blobs are never empty) and mapped back to nil on read.
func blobsToColumn(blobs [][]byte) pq.ByteaArray {
	out := make(pq.ByteaArray, len(blobs))
	for i, b := range blobs {
		if b == nil {
			out[i] = []byte{}
		} else {
			out[i] = b
		}
	}
	return out
}

func blobsFromColumn(col pq.ByteaArray) [][]byte {
	out := make([][]byte, len(col))
	for i, b := range col {
		if len(b) == 0 {
			out[i] = nil
		} else {
			out[i] = b
		}
	}
	return out
}

// Upsert stores a record, idempotent on tx_hash. A conflicting insert is a
// no-op unless the stored record is still pending with a partial blob set,
// in which case the blob columns are refreshed so later sidecar fetches can
// complete it.
func (r *BatchRepo) Upsert(ctx context.Context, rec *domain.RawBatchRecord) error {
	query := `
		INSERT INTO batch_records (tx_hash, block_number, blob_hashes, blobs, partial_blobs, received_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash) DO UPDATE SET
			blob_hashes   = EXCLUDED.blob_hashes,
			blobs         = EXCLUDED.blobs,
			partial_blobs = EXCLUDED.partial_blobs
		WHERE batch_records.state = 'pending' AND batch_records.partial_blobs
	`

	receivedAt := rec.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	state := rec.State
	if state == "" {
		state = domain.RecordStatePending
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.TxHash,
		rec.BlockNumber,
		pq.StringArray(rec.BlobHashes),
		blobsToColumn(rec.Blobs),
		rec.PartialBlobs,
		receivedAt,
		string(state),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert batch record %s: %w", rec.TxHash, err)
	}
	return nil
}

type batchRow struct {
	TxHash        string         `db:"tx_hash"`
	BlockNumber   uint64         `db:"block_number"`
	BlobHashes    pq.StringArray `db:"blob_hashes"`
	Blobs         pq.ByteaArray  `db:"blobs"`
	PartialBlobs  bool           `db:"partial_blobs"`
	ReceivedAt    time.Time      `db:"received_at"`
	State         string         `db:"state"`
	FailureReason string         `db:"failure_reason"`
}

func (b *batchRow) toDomain() *domain.RawBatchRecord {
	return &domain.RawBatchRecord{
		TxHash:        b.TxHash,
		BlockNumber:   b.BlockNumber,
		BlobHashes:    []string(b.BlobHashes),
		Blobs:         blobsFromColumn(b.Blobs),
		PartialBlobs:  b.PartialBlobs,
		ReceivedAt:    b.ReceivedAt,
		State:         domain.RecordState(b.State),
		FailureReason: b.FailureReason,
	}
}

const batchColumns = `tx_hash, block_number, blob_hashes, blobs, partial_blobs, received_at, state, failure_reason`

// Get retrieves a record by tx hash.
func (r *BatchRepo) Get(ctx context.Context, txHash string) (*domain.RawBatchRecord, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_records WHERE tx_hash = $1`

	var row batchRow
	err := r.db.GetContext(ctx, &row, query, txHash)
	if err == sql.ErrNoRows {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch record: %w", err)
	}

	return row.toDomain(), nil
}

// Pending retrieves all pending records in deterministic processing order.
func (r *BatchRepo) Pending(ctx context.Context) ([]*domain.RawBatchRecord, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batch_records
		WHERE state = 'pending'
		ORDER BY block_number ASC, tx_hash ASC
	`

	var rows []batchRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}

	out := make([]*domain.RawBatchRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// MarkDecoded attaches decoded output and flips state in one statement.
func (r *BatchRepo) MarkDecoded(ctx context.Context, txHash string, decoded *domain.DecodedBatch) error {
	payload, err := json.Marshal(decoded)
	if err != nil {
		return fmt.Errorf("failed to marshal decoded batch: %w", err)
	}

	query := `
		UPDATE batch_records
		SET state = 'decoded', decoded = $1, failure_reason = ''
		WHERE tx_hash = $2
	`
	res, err := r.db.ExecContext(ctx, query, payload, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark record decoded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// MarkFailed flips the record to failed with a reason.
func (r *BatchRepo) MarkFailed(ctx context.Context, txHash string, reason string) error {
	query := `
		UPDATE batch_records
		SET state = 'failed', failure_reason = $1
		WHERE tx_hash = $2
	`
	res, err := r.db.ExecContext(ctx, query, reason, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark record failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// CountByState returns record counts keyed by state.
func (r *BatchRepo) CountByState(ctx context.Context) (map[domain.RecordState]int, error) {
	query := `SELECT state, COUNT(*) AS cnt FROM batch_records GROUP BY state`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RecordState]int)
	for rows.Next() {
		var state string
		var cnt int
		if err := rows.Scan(&state, &cnt); err != nil {
			return nil, err
		}
		counts[domain.RecordState(state)] = cnt
	}
	return counts, rows.Err()
}

// PruneDecoded deletes decoded records received before the cutoff.
func (r *BatchRepo) PruneDecoded(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM batch_records WHERE state = 'decoded' AND received_at < $1`

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune decoded records: %w", err)
	}
	return res.RowsAffected()
}

// Export streams decoded batches for blocks in [from, to].
func (r *BatchRepo) Export(ctx context.Context, from, to uint64) (<-chan *domain.DecodedBatch, <-chan error) {
	out := make(chan *domain.DecodedBatch)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		query := `
			SELECT decoded
			FROM batch_records
			WHERE state = 'decoded' AND block_number BETWEEN $1 AND $2
			ORDER BY block_number ASC, tx_hash ASC
		`
		rows, err := r.db.QueryxContext(ctx, query, from, to)
		if err != nil {
			errc <- fmt.Errorf("failed to query decoded records: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				errc <- err
				return
			}
			var decoded domain.DecodedBatch
			if err := json.Unmarshal(payload, &decoded); err != nil {
				errc <- fmt.Errorf("failed to unmarshal decoded batch: %w", err)
				return
			}
			select {
			case out <- &decoded:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- err
		}
	}()

	return out, errc
}
