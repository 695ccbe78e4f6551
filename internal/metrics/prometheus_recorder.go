package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	published      *prom.CounterVec
	publishFailed  *prom.CounterVec
	consumed       *prom.CounterVec
	backlogPending prom.Gauge
	backlogFailed  prom.Gauge
	cycleDuration  prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.published = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "eventrelay",
			Name:      "published_total",
			Help:      "Outbox records successfully published, by event type",
		}, []string{"event_type"})
		pr.publishFailed = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "eventrelay",
			Name:      "publish_failures_total",
			Help:      "Failed publish attempts, by event type",
		}, []string{"event_type"})
		pr.consumed = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "eventrelay",
			Name:      "consumed_total",
			Help:      "Consumer outcomes by group and result",
		}, []string{"group", "result"})
		pr.backlogPending = prom.NewGauge(prom.GaugeOpts{
			Namespace: "eventrelay",
			Name:      "backlog_pending",
			Help:      "Outbox records awaiting first delivery",
		})
		pr.backlogFailed = prom.NewGauge(prom.GaugeOpts{
			Namespace: "eventrelay",
			Name:      "backlog_failed",
			Help:      "Outbox records in failed state",
		})
		pr.cycleDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "eventrelay",
			Name:      "relay_cycle_duration_seconds",
			Help:      "Duration of one relay polling cycle",
			Buckets:   prom.DefBuckets,
		})
		reg.MustRegister(pr.published, pr.publishFailed, pr.consumed,
			pr.backlogPending, pr.backlogFailed, pr.cycleDuration)
	})
	return pr
}

func (p *PrometheusRecorder) IncPublished(eventType string) {
	if p == nil || p.published == nil {
		return
	}
	p.published.WithLabelValues(eventType).Inc()
}

func (p *PrometheusRecorder) IncPublishFailed(eventType string) {
	if p == nil || p.publishFailed == nil {
		return
	}
	p.publishFailed.WithLabelValues(eventType).Inc()
}

func (p *PrometheusRecorder) IncConsumed(group string, result ConsumeResult) {
	if p == nil || p.consumed == nil {
		return
	}
	p.consumed.WithLabelValues(group, string(result)).Inc()
}

func (p *PrometheusRecorder) SetBacklog(pending, failed int64) {
	if p == nil || p.backlogPending == nil {
		return
	}
	p.backlogPending.Set(float64(pending))
	p.backlogFailed.Set(float64(failed))
}

func (p *PrometheusRecorder) ObserveRelayCycle(d time.Duration) {
	if p == nil || p.cycleDuration == nil {
		return
	}
	p.cycleDuration.Observe(d.Seconds())
}
