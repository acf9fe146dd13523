package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BidsMadeTotal tracks bids placed on listed positions.
	BidsMadeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_bids_made_total",
		Help: "Total number of bids placed",
	})

	// BidsAcceptedTotal tracks bids accepted and settled.
	BidsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_bids_accepted_total",
		Help: "Total number of bids accepted",
	})
)
