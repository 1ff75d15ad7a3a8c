package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Billing holds the reconciliation and checkout counters.
type Billing struct {
	webhookEvents       *prometheus.CounterVec
	writeConflicts      prometheus.Counter
	customerResolutions *prometheus.CounterVec
	jobRuns             *prometheus.CounterVec
}

var (
	billingInstance *Billing
	billingOnce     sync.Once
)

// Default returns the process-wide instance registered with the default registry.
func Default() *Billing {
	billingOnce.Do(func() {
		billingInstance = New(prometheus.DefaultRegisterer)
	})
	return billingInstance
}

// New builds a metrics set and registers it with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Billing {
	m := &Billing{
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediaplatform",
				Subsystem: "billing",
				Name:      "webhook_events_total",
				Help:      "Stripe webhook events by type and terminal outcome",
			},
			[]string{"type", "outcome"},
		),
		writeConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mediaplatform",
				Subsystem: "billing",
				Name:      "write_conflicts_total",
				Help:      "Optimistic concurrency conflicts on entitlement writes",
			},
		),
		customerResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediaplatform",
				Subsystem: "billing",
				Name:      "customer_resolutions_total",
				Help:      "Billing customer resolutions by result",
			},
			[]string{"result"},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediaplatform",
				Subsystem: "jobs",
				Name:      "runs_total",
				Help:      "Background job executions by job and result",
			},
			[]string{"job", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.webhookEvents, m.writeConflicts, m.customerResolutions, m.jobRuns)
	}
	return m
}

func (m *Billing) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Billing) RecordWriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

func (m *Billing) RecordCustomerResolution(result string) {
	if m == nil {
		return
	}
	m.customerResolutions.WithLabelValues(result).Inc()
}

func (m *Billing) RecordJobRun(job, result string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// WebhookEventCount exposes a counter value for tests.
func (m *Billing) WebhookEventCount(eventType, outcome string) prometheus.Counter {
	return m.webhookEvents.WithLabelValues(eventType, outcome)
}
