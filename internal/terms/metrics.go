package terms

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TermsAddedTotal tracks terms added to the registry.
	TermsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_terms_added_total",
		Help: "Total number of deposit terms added",
	})

	// CapacityRejectionsTotal tracks reservations rejected for capacity.
	CapacityRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_term_capacity_rejections_total",
		Help: "Total number of capacity reservations rejected",
	})
)
