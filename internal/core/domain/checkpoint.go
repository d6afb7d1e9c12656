package domain

import "time"

// Checkpoint is the last block number confirmed fully scanned. It is
// process-wide and only ever moves forward; the store enforces monotonicity.
type Checkpoint struct {
	LastScannedBlock uint64
	UpdatedAt        time.Time
}
