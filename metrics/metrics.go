package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Endpoint the endpoint for exposing the metrics
	Endpoint = "/metrics"
	// ProfilingIndexEndpoint the endpoint for exposing the profiling metrics
	ProfilingIndexEndpoint = "/debug/pprof/"
	// ProfileEndpoint the endpoint for exposing the profile of the profiling metrics
	ProfileEndpoint = "/debug/pprof/profile"
	// ProfilingCmdEndpoint the endpoint for exposing the command-line of profiling metrics
	ProfilingCmdEndpoint = "/debug/pprof/cmdline"
	// ProfilingSymbolEndpoint the endpoint for exposing the symbol of profiling metrics
	ProfilingSymbolEndpoint = "/debug/pprof/symbol"
	// ProfilingTraceEndpoint the endpoint for exposing the trace of profiling metrics
	ProfilingTraceEndpoint = "/debug/pprof/trace"

	prefix = "txengine_"
)

var (
	submittedTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "submitted_transactions_total",
		Help: "Transactions recorded as pending and handed to a chain, by flow and execution strategy",
	}, []string{"flow", "strategy"})

	flowErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "flow_errors_total",
		Help: "Flow failures by flow and error kind",
	}, []string{"flow", "kind"})

	sendAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "send_attempts_total",
		Help: "Raw transaction broadcast attempts by chain",
	}, []string{"chain_id"})

	blockUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "block_updates_total",
		Help: "Block notifications published on the block stream by chain",
	}, []string{"chain_id"})

	finalizedTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "finalized_transactions_total",
		Help: "Transactions moved to a terminal status by chain and status",
	}, []string{"chain_id", "status"})

	resentTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "resent_transactions_total",
		Help: "Stored signed payloads rebroadcast by the sender, by chain",
	}, []string{"chain_id"})

	trackedTxs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "tracked_transactions",
		Help: "Pending transactions currently tracked by the monitor",
	})

	rpcRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "rpc_requests_total",
		Help: "JSON-RPC calls by method and error code, 0 for success",
	}, []string{"method", "code"})

	rpcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "rpc_request_duration_seconds",
		Help:    "JSON-RPC call latency by method",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"method"})

	registerOnce sync.Once
)

// Register registers the tx engine collectors in the default prometheus registry
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(submittedTxs, flowErrors, sendAttempts, blockUpdates, finalizedTxs, resentTxs, trackedTxs,
			rpcRequests, rpcDuration)
	})
}

// TransactionSubmitted increments the submitted transactions counter
func TransactionSubmitted(flow string, strategy string) {
	submittedTxs.WithLabelValues(flow, strategy).Inc()
}

// FlowError increments the flow errors counter
func FlowError(flow string, kind string) {
	flowErrors.WithLabelValues(flow, kind).Inc()
}

// SendAttempt increments the broadcast attempts counter
func SendAttempt(chainID uint64) {
	sendAttempts.WithLabelValues(strconv.FormatUint(chainID, 10)).Inc()
}

// BlockUpdate increments the block updates counter
func BlockUpdate(chainID uint64) {
	blockUpdates.WithLabelValues(strconv.FormatUint(chainID, 10)).Inc()
}

// TransactionFinalized increments the finalized transactions counter
func TransactionFinalized(chainID uint64, status string) {
	finalizedTxs.WithLabelValues(strconv.FormatUint(chainID, 10), status).Inc()
}

// TrackedTransactions sets the number of transactions tracked by the monitor
func TrackedTransactions(n int) {
	trackedTxs.Set(float64(n))
}

// TransactionResent increments the resent transactions counter
func TransactionResent(chainID uint64) {
	resentTxs.WithLabelValues(strconv.FormatUint(chainID, 10)).Inc()
}

// RPCRequest records a served JSON-RPC call
func RPCRequest(method string, code int, elapsed time.Duration) {
	rpcRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
