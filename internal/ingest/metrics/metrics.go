package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksScanned tracks total blocks scanned
	BlocksScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchwatch_blocks_scanned_total",
			Help: "Total number of L1 blocks scanned",
		},
	)

	// BatchRecordsStored tracks batch records discovered and stored
	BatchRecordsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchwatch_batch_records_stored_total",
			Help: "Total number of batch records stored",
		},
	)

	// DecodesTotal tracks decode outcomes
	DecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchwatch_decodes_total",
			Help: "Total number of decode attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RPCCallsTotal tracks RPC calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks RPC errors per method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchwatch_chain_latest_block",
			Help: "Latest block height of the L1 chain",
		},
	)

	// CheckpointBlock tracks the last fully scanned block
	CheckpointBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchwatch_checkpoint_block",
			Help: "Last block number confirmed fully scanned",
		},
	)

	// PendingRecords tracks records awaiting decode
	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchwatch_pending_records",
			Help: "Number of batch records awaiting decode",
		},
	)
)
