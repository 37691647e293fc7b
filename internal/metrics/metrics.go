package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/numbering"
)

const namespace = "persediaan"

// Metrics is nil-safe: a nil *Metrics or one built without a registerer
// records nothing.
type Metrics struct {
	numberAttempts  *prometheus.CounterVec
	numberConflicts *prometheus.CounterVec
	numberExhausted *prometheus.CounterVec
	movements       *prometheus.CounterVec
	movementQty     *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the service metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		numberAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "number_allocation_attempts_total",
			Help:      "Document number allocation attempts.",
		}, []string{"kind"}),
		numberConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "number_allocation_conflicts_total",
			Help:      "Allocation attempts that lost a race on the unique number.",
		}, []string{"kind"}),
		numberExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "number_allocation_exhausted_total",
			Help:      "Operations rejected after the allocation retry budget ran out.",
		}, []string{"kind"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Ledger entries written, by direction and source.",
		}, []string{"direction", "source", "correction"}),
		movementQty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movement_units_total",
			Help:      "Units moved through the ledger.",
		}, []string{"flow"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.numberAttempts, m.numberConflicts, m.numberExhausted, m.movements, m.movementQty, m.httpDuration)
	return m
}

func (m *Metrics) Attempt(kind numbering.Kind) {
	if m == nil || m.numberAttempts == nil {
		return
	}
	m.numberAttempts.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Conflict(kind numbering.Kind) {
	if m == nil || m.numberConflicts == nil {
		return
	}
	m.numberConflicts.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Exhausted(kind numbering.Kind) {
	if m == nil || m.numberExhausted == nil {
		return
	}
	m.numberExhausted.WithLabelValues(string(kind)).Inc()
}

// ObserveMovements records committed ledger entries.
func (m *Metrics) ObserveMovements(entries []domain.LedgerEntry) {
	if m == nil || m.movements == nil {
		return
	}
	for _, entry := range entries {
		m.movements.WithLabelValues(string(entry.Direction), normalizeLabel(string(entry.SourceType)), strconv.FormatBool(entry.Correction)).Inc()
		if entry.QtyIn > 0 {
			m.movementQty.WithLabelValues("in").Add(float64(entry.QtyIn))
		}
		if entry.QtyOut > 0 {
			m.movementQty.WithLabelValues("out").Add(float64(entry.QtyOut))
		}
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

var _ numbering.Observer = (*Metrics)(nil)
