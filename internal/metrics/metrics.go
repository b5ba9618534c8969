package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wirechat_client_sends_total",
		Help: "Outgoing messages by outcome (sent, failed, echo).",
	}, []string{"result"})

	SendsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wirechat_client_sends_in_flight",
		Help: "Optimistic entries still waiting for the backend.",
	})

	PushEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wirechat_client_push_events_total",
		Help: "Push-channel events applied, by kind.",
	}, []string{"kind"})

	ParkedEchoes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wirechat_client_parked_echoes_total",
		Help: "Own messages pushed back while their send was still pending.",
	})

	DuplicateEchoes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wirechat_client_duplicate_echoes_total",
		Help: "Pushed messages whose durable id was already present.",
	})

	ReconcileNoops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wirechat_client_reconcile_noops_total",
		Help: "Replace/remove calls whose target was already gone.",
	})

	EmitsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wirechat_client_emits_dropped_total",
		Help: "Outbound push events dropped (rate limit or full queue).",
	})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SendsTotal, SendsInFlight,
		PushEventsTotal,
		ParkedEchoes, DuplicateEchoes, ReconcileNoops,
		EmitsDropped,
	)
}
