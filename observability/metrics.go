package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type giftMetrics struct {
	creates *prometheus.CounterVec
	claims  *prometheus.CounterVec
	refunds prometheus.Counter
}

var (
	giftMetricsOnce sync.Once
	giftRegistry    *giftMetrics
)

// Gifts returns the metrics registry tracking gift lifecycle transitions.
func Gifts() *giftMetrics {
	giftMetricsOnce.Do(func() {
		giftRegistry = &giftMetrics{
			creates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftvault",
				Subsystem: "gift",
				Name:      "creates_total",
				Help:      "Count of gift creations segmented by variant.",
			}, []string{"kind"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftvault",
				Subsystem: "gift",
				Name:      "claims_total",
				Help:      "Count of settled claims segmented by asset.",
			}, []string{"token"}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "giftvault",
				Subsystem: "gift",
				Name:      "refunds_total",
				Help:      "Count of sender refunds.",
			}),
		}
		prometheus.MustRegister(giftRegistry.creates, giftRegistry.claims, giftRegistry.refunds)
	})
	return giftRegistry
}

// RecordCreate increments the creation counter for the supplied variant.
func (m *giftMetrics) RecordCreate(kind string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(kind))
	if normalized == "" {
		normalized = "unknown"
	}
	m.creates.WithLabelValues(normalized).Inc()
}

// RecordClaim increments the claim counter for the supplied asset ticker.
func (m *giftMetrics) RecordClaim(token string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(token))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.claims.WithLabelValues(normalized).Inc()
}

// RecordRefund increments the refund counter.
func (m *giftMetrics) RecordRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}
