package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serverTimeout = 5 * time.Second

var (
	mutex       sync.RWMutex
	registerer  prometheus.Registerer
	initialized bool

	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
)

// StartMetricsHttpServer initializes the metrics registry and serves the prometheus endpoint until ctx is done
func StartMetricsHttpServer(ctx context.Context, c Config) {
	if !c.Enabled {
		return
	}
	initMetrics(prometheus.DefaultRegisterer)

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultMetricsEndpoint
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.Handler())
	srv := &http.Server{Addr: ":" + c.Port, Handler: mux, ReadTimeout: serverTimeout}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("metrics server listening on port %s%s", c.Port, endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("serve metrics http server error: %v", err)
	}
}

// register adds the collector built by newVec under name, unless the registry is not
// initialized or the name is already taken
func register[V prometheus.Collector](set map[string]V, name, metricType string, newVec func() V) {
	mutex.Lock()
	defer mutex.Unlock()
	if !initialized {
		return
	}
	if _, ok := set[name]; ok {
		return
	}
	collector := newVec()
	if err := registerer.Register(collector); err != nil {
		log.WithFields("metricName", name, "metricType", metricType).Errorf("metrics register error: %v", err)
		return
	}
	set[name] = collector
}

// lookup runs fn on the collector registered under name. Missing collectors are logged.
func lookup[V any](set map[string]V, name, metricType string, fn func(V)) {
	mutex.RLock()
	defer mutex.RUnlock()
	if !initialized {
		return
	}
	c, ok := set[name]
	if !ok {
		log.WithFields("metricName", name, "metricType", metricType).Errorf("collector not found")
		return
	}
	fn(c)
}

func registerGauge(opt prometheus.GaugeOpts, labelNames ...string) {
	register(gauges, opt.Name, typeGauge, func() *prometheus.GaugeVec { return prometheus.NewGaugeVec(opt, labelNames) })
}

func registerCounter(opt prometheus.CounterOpts, labelNames ...string) {
	register(counters, opt.Name, typeCounter, func() *prometheus.CounterVec { return prometheus.NewCounterVec(opt, labelNames) })
}

func registerHistogram(opt prometheus.HistogramOpts, labelNames ...string) {
	register(histograms, opt.Name, typeHistogram, func() *prometheus.HistogramVec { return prometheus.NewHistogramVec(opt, labelNames) })
}

func gaugeSet(name string, value float64, labels prometheus.Labels) {
	lookup(gauges, name, typeGauge, func(g *prometheus.GaugeVec) { g.With(labels).Set(value) })
}

func counterInc(name string, labels prometheus.Labels) {
	counterAdd(name, 1, labels)
}

func counterAdd(name string, value float64, labels prometheus.Labels) {
	lookup(counters, name, typeCounter, func(c *prometheus.CounterVec) { c.With(labels).Add(value) })
}

func histogramObserve(name string, value float64, labels prometheus.Labels) {
	lookup(histograms, name, typeHistogram, func(h *prometheus.HistogramVec) { h.With(labels).Observe(value) })
}
