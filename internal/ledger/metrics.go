package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PositionsOpenedTotal tracks positions opened against a term.
	PositionsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_positions_opened_total",
		Help: "Total number of positions opened",
	})

	// RedemptionsTotal tracks successful yield redemptions.
	RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_redemptions_total",
		Help: "Total number of yield redemptions settled",
	})

	// PositionsClosedTotal tracks positions closed at maturity.
	PositionsClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_positions_closed_total",
		Help: "Total number of positions closed at maturity",
	})

	// OwnershipTransfersTotal tracks marketplace ownership transfers.
	OwnershipTransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_ownership_transfers_total",
		Help: "Total number of position ownership transfers",
	})

	// SettlementFailuresTotal tracks aborted operations due to settlement errors.
	SettlementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_settlement_failures_total",
		Help: "Total number of operations aborted by a failed settlement",
	})
)
