package domain

import "time"

// FailedBlock records a block that could not be scanned cleanly. The
// checkpoint never advances past a window containing one; the entry exists so
// operators can see what is holding a window back.
type FailedBlock struct {
	ID          string
	BlockNumber uint64
	Error       string
	RetryCount  int
	LastAttempt time.Time
	CreatedAt   time.Time
}
