package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		entitlementTransitionsTotal,
		entitlementResetsTotal,
		entitlementsExpiredTotal,
	)
}

var (
	entitlementTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_transitions_total",
			Help: "Lifecycle transitions by kind (subscribed/cancelled).",
		},
		[]string{"kind"},
	)

	entitlementResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlement_resets_total",
			Help: "Usage counters zeroed by the periodic sweep.",
		},
	)

	entitlementsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_expired_total",
			Help: "Entitlements transitioned to expired by the expiry worker.",
		},
	)
)

func IncEntitlementTransition(kind string) {
	entitlementTransitionsTotal.WithLabelValues(norm(kind)).Inc()
}

func AddEntitlementResets(count int) {
	entitlementResetsTotal.Add(float64(count))
}

func AddEntitlementsExpired(count int) {
	entitlementsExpiredTotal.Add(float64(count))
}
