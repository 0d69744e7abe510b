package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type serverMetrics struct {
	received    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	value       *prometheus.GaugeVec
	storeErrors prometheus.Counter
	predictions *prometheus.CounterVec
}

func newServerMetrics(reg *prometheus.Registry, s *Server) *serverMetrics {
	m := &serverMetrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lensmon_readings_received_total",
			Help: "Readings accepted",
		}, []string{"metric"}),

		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lensmon_readings_rejected_total",
			Help: "Readings rejected",
		}, []string{"metric", "reason"}),

		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lensmon_reading_value",
			Help: "Most recent accepted value",
		}, []string{"metric"}),

		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lensmon_store_errors_total",
			Help: "Readings that could not be persisted",
		}),

		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lensmon_predictions_total",
			Help: "Predictor calls by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.received,
		m.rejected,
		m.value,
		m.storeErrors,
		m.predictions,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lensmon_history_samples",
			Help: "Readings held in memory across metrics",
		}, func() float64 { return float64(s.analyzer.Total()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lensmon_live_clients",
			Help: "Connected live websocket clients",
		}, func() float64 { return float64(s.live.ClientCount()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
