package live

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CandlesTotal    *prometheus.CounterVec
	SignalsTotal    *prometheus.CounterVec
	NotWarmedTotal  *prometheus.CounterVec
	StaleTotal      *prometheus.CounterVec
	SinkErrorsTotal prometheus.Counter
	IndicatorDur    prometheus.Histogram
	BufferLen       *prometheus.GaugeVec
}

// NewMetrics creates the live engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_live_candles_total",
			Help: "Candles processed by the live engine",
		}, []string{"symbol"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_live_signals_total",
			Help: "Signal intents emitted",
		}, []string{"symbol", "side"}),
		NotWarmedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_live_not_warmed_total",
			Help: "Candles received before the symbol buffer was warmed",
		}, []string{"symbol"}),
		StaleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_live_stale_candles_total",
			Help: "Candles rejected for arriving out of order",
		}, []string{"symbol"}),
		SinkErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_live_sink_errors_total",
			Help: "Failed signal hand-offs",
		}),
		IndicatorDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "algo_live_indicator_step_seconds",
			Help:    "Time to step the indicator set for one candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		BufferLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "algo_live_buffer_len",
			Help: "Candles held in the symbol buffer",
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.SignalsTotal,
		m.NotWarmedTotal,
		m.StaleTotal,
		m.SinkErrorsTotal,
		m.IndicatorDur,
		m.BufferLen,
	)

	return m
}
