package metrics

const (
	defaultMetricsEndpoint = "/metrics"
)

// Metric types
const (
	typeGauge     = "gauge"
	typeCounter   = "counter"
	typeHistogram = "histogram"
)

// Metric names and labels
const (
	prefix = "batch_deposit_"

	prefixRequest        = prefix + "request_"
	metricRequestCount   = prefixRequest + "count"
	metricRequestLatency = prefixRequest + "latency_ms"
	labelMethod          = "method"
	labelIsSuccess       = "is_success"

	prefixBatch              = prefix + "batch_"
	metricBatchCount         = prefixBatch + "count"
	metricBatchRecordCount   = prefixBatch + "record_count"
	metricBatchPrincipalEth  = prefixBatch + "principal_eth"
	metricBatchFeeAccruedEth = prefixBatch + "fee_accrued_eth"
	labelMode                = "mode"

	prefixContract           = prefix + "contract_"
	metricContractBalanceEth = prefixContract + "balance_eth"
	metricContractPaused     = prefixContract + "paused"

	metricEventCount = prefix + "event_count"
	labelEventType   = "type"
)
