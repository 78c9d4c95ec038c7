package metrics

import (
	"math/big"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stakebatch/batch-deposit-service/models"
)

const weiDecimals = 18

func initMetrics(reg prometheus.Registerer) {
	mutex.Lock()
	if !initialized {
		registerer = reg
		gauges = make(map[string]*prometheus.GaugeVec)
		counters = make(map[string]*prometheus.CounterVec)
		histograms = make(map[string]*prometheus.HistogramVec)
		initialized = true
	}
	mutex.Unlock()

	registerCounter(prometheus.CounterOpts{Name: metricRequestCount}, labelMethod, labelIsSuccess)
	registerHistogram(prometheus.HistogramOpts{Name: metricRequestLatency}, labelMethod, labelIsSuccess)
	registerCounter(prometheus.CounterOpts{Name: metricBatchCount}, labelMode)
	registerCounter(prometheus.CounterOpts{Name: metricBatchRecordCount}, labelMode)
	registerCounter(prometheus.CounterOpts{Name: metricBatchPrincipalEth}, labelMode)
	registerCounter(prometheus.CounterOpts{Name: metricBatchFeeAccruedEth}, labelMode)
	registerGauge(prometheus.GaugeOpts{Name: metricContractBalanceEth})
	registerGauge(prometheus.GaugeOpts{Name: metricContractPaused})
	registerCounter(prometheus.CounterOpts{Name: metricEventCount}, labelEventType)
}

// RecordRequest increments the request count for the method
func RecordRequest(method string, isSuccess bool) {
	counterInc(metricRequestCount, map[string]string{labelMethod: method, labelIsSuccess: strconv.FormatBool(isSuccess)})
}

// RecordRequestLatency records the latency histogram in milliseconds
func RecordRequestLatency(method string, latency time.Duration, isSuccess bool) {
	histogramObserve(metricRequestLatency, float64(latency.Milliseconds()), map[string]string{labelMethod: method, labelIsSuccess: strconv.FormatBool(isSuccess)})
}

// RecordBatch records one applied batch: the number of records, the principal forwarded to the
// deposit ledger and the fee retained. Amounts are in wei and reported in ETH.
func RecordBatch(mode string, records int, principal, feeAccrued *big.Int) {
	labels := map[string]string{labelMode: mode}
	counterInc(metricBatchCount, labels)
	counterAdd(metricBatchRecordCount, float64(records), labels)
	counterAdd(metricBatchPrincipalEth, toEth(principal), labels)
	counterAdd(metricBatchFeeAccruedEth, toEth(feeAccrued), labels)
}

// RecordContractState sets the balance and paused gauges from a committed state
func RecordContractState(state *models.ContractState) {
	if state == nil {
		return
	}
	gaugeSet(metricContractBalanceEth, toEth(state.Balance), nil)
	paused := 0.0
	if state.Paused {
		paused = 1
	}
	gaugeSet(metricContractPaused, paused, nil)
}

// RecordEvent increments the emitted event count for the type
func RecordEvent(eventType string) {
	counterInc(metricEventCount, map[string]string{labelEventType: eventType})
}

func toEth(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).InexactFloat64()
}
