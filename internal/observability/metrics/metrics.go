package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
)

// ConversationMetrics exposes counters/histograms for the negotiation lifecycle.
// It satisfies conversation.Observer.
type ConversationMetrics struct {
	initiatedTotal   *prometheus.CounterVec
	inboundTotal     *prometheus.CounterVec
	followUpsTotal   prometheus.Counter
	finalizedTotal   *prometheus.CounterVec
	degradedTotal    prometheus.Counter
	callbackFailures *prometheus.CounterVec
	conflictsTotal   prometheus.Counter
	opLatency        *prometheus.HistogramVec
	httpLatency      *prometheus.HistogramVec
}

var _ conversation.Observer = (*ConversationMetrics)(nil)

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		initiatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "conversation",
			Name:      "initiated_total",
			Help:      "Conversations initiated, by whether the outreach email went out",
		}, []string{"email_sent"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "conversation",
			Name:      "inbound_total",
			Help:      "Inbound vendor emails by processing outcome",
		}, []string{"outcome"}),
		followUpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "conversation",
			Name:      "follow_ups_total",
			Help:      "Follow-up emails sent",
		}),
		finalizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "conversation",
			Name:      "finalized_total",
			Help:      "Conversations reaching a terminal status",
		}, []string{"status"}),
		degradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "conversation",
			Name:      "extraction_degraded_total",
			Help:      "Inbound emails whose answer extraction failed or was malformed",
		}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "callback",
			Name:      "failures_total",
			Help:      "Callback API deliveries that failed after retries",
		}, []string{"kind"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aime",
			Subsystem: "store",
			Name:      "version_conflicts_total",
			Help:      "Conditional writes lost to a concurrent writer",
		}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aime",
			Subsystem: "conversation",
			Name:      "operation_seconds",
			Help:      "Latency of engine operations",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aime",
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "Latency of HTTP requests by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.initiatedTotal, m.inboundTotal, m.followUpsTotal, m.finalizedTotal,
		m.degradedTotal, m.callbackFailures, m.conflictsTotal, m.opLatency, m.httpLatency,
	)
	return m
}

func (m *ConversationMetrics) Initiated(emailSent bool) {
	if m == nil {
		return
	}
	m.initiatedTotal.WithLabelValues(strconv.FormatBool(emailSent)).Inc()
}

func (m *ConversationMetrics) Inbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) FollowUpSent() {
	if m == nil {
		return
	}
	m.followUpsTotal.Inc()
}

func (m *ConversationMetrics) Finalized(status conversation.Status) {
	if m == nil {
		return
	}
	m.finalizedTotal.WithLabelValues(string(status)).Inc()
}

func (m *ConversationMetrics) ExtractionDegraded() {
	if m == nil {
		return
	}
	m.degradedTotal.Inc()
}

func (m *ConversationMetrics) CallbackFailed(kind string) {
	if m == nil {
		return
	}
	m.callbackFailures.WithLabelValues(kind).Inc()
}

func (m *ConversationMetrics) VersionConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *ConversationMetrics) Duration(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.opLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *ConversationMetrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}
