package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics records mutation, shedding, and observer activity for the
// record stores.
type StoreMetrics struct {
	mutations     *prometheus.CounterVec
	shedRecords   *prometheus.CounterVec
	notifyLatency *prometheus.HistogramVec
	notifyFailure *prometheus.CounterVec
}

// NewStoreMetrics registers the store metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_mutations_total",
		Help: "Successful store mutations by store and operation.",
	}, []string{"store", "op"})
	shedRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_shed_records_total",
		Help: "Records dropped by capacity shedding.",
	}, []string{"store"})
	notifyLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_notify_duration_seconds",
		Help:    "Duration of observer notification rounds in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"store"})
	notifyFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_notify_failures_total",
		Help: "Observer callbacks that panicked during notification.",
	}, []string{"store"})
	reg.MustRegister(mutations, shedRecords, notifyLatency, notifyFailure)
	return &StoreMetrics{
		mutations:     mutations,
		shedRecords:   shedRecords,
		notifyLatency: notifyLatency,
		notifyFailure: notifyFailure,
	}
}

// IncMutation increments the mutation counter for the store and operation.
func (s *StoreMetrics) IncMutation(store, op string) {
	if s == nil || s.mutations == nil {
		return
	}
	s.mutations.WithLabelValues(normalizeLabel(store), normalizeLabel(op)).Inc()
}

// AddShedRecords counts records dropped by a capacity shed.
func (s *StoreMetrics) AddShedRecords(store string, dropped int) {
	if s == nil || s.shedRecords == nil || dropped <= 0 {
		return
	}
	s.shedRecords.WithLabelValues(normalizeLabel(store)).Add(float64(dropped))
}

// ObserveNotifyDuration records the duration of one notification round.
func (s *StoreMetrics) ObserveNotifyDuration(store string, duration time.Duration) {
	if s == nil || s.notifyLatency == nil {
		return
	}
	s.notifyLatency.WithLabelValues(normalizeLabel(store)).Observe(duration.Seconds())
}

// IncNotifyFailure counts an observer callback that panicked.
func (s *StoreMetrics) IncNotifyFailure(store string) {
	if s == nil || s.notifyFailure == nil {
		return
	}
	s.notifyFailure.WithLabelValues(normalizeLabel(store)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
