package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const namespace = "ledger"

// Recorder implements port.Metrics on prometheus collectors.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	shortfalls *prometheus.CounterVec
	now        func() time.Time
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		}, []string{"operation", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in ledger operations, including lock waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		shortfalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_shortfalls_total",
			Help:      "Operations rejected for insufficient stock.",
		}, []string{"operation"}),
		now: time.Now,
	}
}

func (r *Recorder) ObserveOperation(operation string, started time.Time, err error) {
	r.operations.WithLabelValues(operation, domain.Classify(err)).Inc()
	r.duration.WithLabelValues(operation).Observe(r.now().Sub(started).Seconds())
}

func (r *Recorder) StockShortfall(operation string) {
	r.shortfalls.WithLabelValues(operation).Inc()
}
