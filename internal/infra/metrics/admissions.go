package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		admissionChecksTotal,
		usageUnitsDeductedTotal,
	)
}

var (
	admissionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_checks_total",
			Help: "Admission gate decisions by outcome and denial reason.",
		},
		[]string{"outcome", "reason"},
	)

	usageUnitsDeductedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_units_deducted_total",
			Help: "Sum of raw consumption units deducted post-hoc.",
		},
	)
)

func IncAdmission(outcome, reason string) {
	admissionChecksTotal.WithLabelValues(norm(outcome), norm(reason)).Inc()
}

func AddUnitsDeducted(units int64) {
	usageUnitsDeductedTotal.Add(float64(units))
}
