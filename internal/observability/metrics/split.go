package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

type SplitMetrics struct {
	registry *prometheus.Registry

	documentsTotal   *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	pagesTotal       prometheus.Counter
	segmentsTotal    *prometheus.CounterVec
	ledgerSize       prometheus.Gauge
}

func NewSplitMetrics(service string) *SplitMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "receipts",
			Subsystem:   "splitter",
			Name:        "documents_total",
			Help:        "Input documents processed by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "receipts",
			Subsystem:   "splitter",
			Name:        "document_duration_seconds",
			Help:        "Time to split one input document by status.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "receipts",
		Subsystem:   "splitter",
		Name:        "documents_in_flight",
		Help:        "Input documents currently being split.",
		ConstLabels: constLabels,
	})
	pagesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "receipts",
		Subsystem:   "splitter",
		Name:        "pages_total",
		Help:        "Pages read from input documents.",
		ConstLabels: constLabels,
	})
	segmentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "receipts",
			Subsystem:   "splitter",
			Name:        "segments_total",
			Help:        "Receipt segments by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	ledgerSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "receipts",
		Subsystem:   "ledger",
		Name:        "entries",
		Help:        "Receipt ids in the processed ledger.",
		ConstLabels: constLabels,
	})

	registry.MustRegister(documentsTotal, documentDuration, inFlight, pagesTotal, segmentsTotal, ledgerSize)

	return &SplitMetrics{
		registry:         registry,
		documentsTotal:   documentsTotal,
		documentDuration: documentDuration,
		inFlight:         inFlight,
		pagesTotal:       pagesTotal,
		segmentsTotal:    segmentsTotal,
		ledgerSize:       ledgerSize,
	}
}

func (m *SplitMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SplitMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *SplitMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *SplitMetrics) FinishDocument(duration time.Duration, err error) {
	m.inFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.documentsTotal.WithLabelValues(status).Inc()
	m.documentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *SplitMetrics) ObservePages(n int) {
	if n > 0 {
		m.pagesTotal.Add(float64(n))
	}
}

func (m *SplitMetrics) ObserveSegment(status domain.SegmentStatus) {
	m.segmentsTotal.WithLabelValues(string(status)).Inc()
}

func (m *SplitMetrics) ObserveLedgerSize(n int) {
	m.ledgerSize.Set(float64(n))
}
