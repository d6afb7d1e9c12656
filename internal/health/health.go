// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the service.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the metrics behind a health verdict.
type Report struct {
	Status         SystemStatus `json:"status"`
	ChainHead      uint64       `json:"chain_head"`
	Checkpoint     uint64       `json:"checkpoint"`
	BlockLag       uint64       `json:"block_lag"`
	PendingRecords int          `json:"pending_records"`
	FailedRecords  int          `json:"failed_records"`
	FailedBlocks   int          `json:"failed_blocks"`
	StoreHealthy   bool         `json:"store_healthy"`
	ChainReachable bool         `json:"chain_reachable"`
	LoopState      string       `json:"loop_state"`
}
