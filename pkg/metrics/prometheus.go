package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles      *prometheus.CounterVec
	cycleTime   prometheus.Histogram
	unitErrors  *prometheus.CounterVec
	signals     *prometheus.CounterVec
	filtered    *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	fetchTime   *prometheus.HistogramVec
	muted       *prometheus.GaugeVec
	modelLoaded prometheus.Gauge
	alerts      *prometheus.CounterVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_cycles_total",
				Help: "Worker cycles by resulting status",
			},
			[]string{"status"},
		),
		cycleTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finsignal_cycle_duration_seconds",
				Help:    "Wall time of a worker cycle",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		unitErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_unit_errors_total",
				Help: "Failed symbol/timeframe units",
			},
			[]string{"symbol", "timeframe"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_signals_total",
				Help: "Signals emitted",
			},
			[]string{"symbol", "timeframe", "side", "strategy"},
		),
		filtered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_signals_filtered_total",
				Help: "Candidates dropped after the gate",
			},
			[]string{"reason"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_candle_fetches_total",
				Help: "Candle fetches by source and result",
			},
			[]string{"source", "result"},
		),
		fetchTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsignal_candle_fetch_seconds",
				Help:    "Candle fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		muted: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsignal_stream_muted",
				Help: "1 when the stream is auto-muted",
			},
			[]string{"stream"},
		),
		modelLoaded: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "finsignal_meta_model_loaded",
				Help: "1 when a valid meta model is active",
			},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_alerts_total",
				Help: "Alert deliveries by result",
			},
			[]string{"result"},
		),
	}
}

func (r *Recorder) RecordCycle(status string, d time.Duration) {
	r.cycles.WithLabelValues(status).Inc()
	r.cycleTime.Observe(d.Seconds())
}

func (r *Recorder) RecordUnitError(symbol, timeframe string) {
	r.unitErrors.WithLabelValues(symbol, timeframe).Inc()
}

func (r *Recorder) RecordSignal(symbol, timeframe, side, strategy string) {
	r.signals.WithLabelValues(symbol, timeframe, side, strategy).Inc()
}

func (r *Recorder) RecordFiltered(reason string) {
	r.filtered.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordFetch(source string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetches.WithLabelValues(source, result).Inc()
	r.fetchTime.WithLabelValues(source).Observe(d.Seconds())
}

func (r *Recorder) SetMuted(stream string, muted bool) {
	r.muted.WithLabelValues(stream).Set(boolGauge(muted))
}

func (r *Recorder) SetModelLoaded(loaded bool) {
	r.modelLoaded.Set(boolGauge(loaded))
}

func (r *Recorder) RecordAlert(result string) {
	r.alerts.WithLabelValues(result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCycle(string, time.Duration) {}
func (Nop) RecordUnitError(string, string) {}
func (Nop) RecordSignal(string, string, string, string) {}
func (Nop) RecordFiltered(string) {}
func (Nop) RecordFetch(string, time.Duration, error) {}
func (Nop) SetMuted(string, bool) {}
func (Nop) SetModelLoaded(bool) {}
func (Nop) RecordAlert(string) {}
