package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records checkout and ledger outcomes.
type SettlementMetrics struct {
	vendorGroups  *prometheus.CounterVec
	quoteDuration *prometheus.HistogramVec
	refunds       *prometheus.CounterVec
	outbox        *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	vendorGroups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "koipond",
		Name:      "checkout_vendor_groups_total",
		Help:      "Checkout vendor groups by outcome.",
	}, []string{"outcome"})
	quoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "koipond",
		Name:      "shipping_quote_duration_seconds",
		Help:      "Carrier fee quote latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "koipond",
		Name:      "ledger_refunds_total",
		Help:      "Refunds written to the ledger by trigger.",
	}, []string{"source"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "koipond",
		Name:      "outbox_publish_total",
		Help:      "Outbox publish attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(vendorGroups, quoteDuration, refunds, outbox)
	return &SettlementMetrics{
		vendorGroups:  vendorGroups,
		quoteDuration: quoteDuration,
		refunds:       refunds,
		outbox:        outbox,
	}
}

// VendorGroup counts one checkout vendor group outcome.
func (m *SettlementMetrics) VendorGroup(outcome string) {
	if m == nil || m.vendorGroups == nil {
		return
	}
	m.vendorGroups.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveQuote records a carrier quote latency.
func (m *SettlementMetrics) ObserveQuote(outcome string, d time.Duration) {
	if m == nil || m.quoteDuration == nil {
		return
	}
	m.quoteDuration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

// Refund counts a refund applied through source.
func (m *SettlementMetrics) Refund(source string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(source)).Inc()
}

// OutboxPublish counts a publish attempt.
func (m *SettlementMetrics) OutboxPublish(outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
