package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg              *prometheus.Registry
	Files            *prometheus.CounterVec // by outcome
	OrdersCommitted  *prometheus.CounterVec // by channel
	CycleSec         prometheus.Histogram
	StoreInsertSec   prometheus.Histogram
	LastCycleFiles   prometheus.Gauge
	EventSinkFailure prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderhub_files_total",
		Help: "Files processed, by outcome.",
	}, []string{"outcome"})
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderhub_orders_committed_total",
		Help: "Orders newly committed to the store, by channel.",
	}, []string{"channel"})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderhub_cycle_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	insert := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderhub_store_insert_seconds",
		Buckets: prometheus.DefBuckets,
	})
	last := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderhub_last_cycle_files"})
	sinkFail := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderhub_event_sink_failures_total"})

	r.MustRegister(files, committed, cycle, insert, last, sinkFail)
	return &Registry{
		reg:              r,
		Files:            files,
		OrdersCommitted:  committed,
		CycleSec:         cycle,
		StoreInsertSec:   insert,
		LastCycleFiles:   last,
		EventSinkFailure: sinkFail,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
