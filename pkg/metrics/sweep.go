package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics records outcomes of escrow payout sweeps.
type SweepMetrics struct {
	ordersProcessed prometheus.Counter
	ordersCompleted prometheus.Counter
	payoutsOK       prometheus.Counter
	payoutsFailed   prometheus.Counter
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	ordersProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_orders_processed_total",
		Help: "Orders examined by the escrow payout sweep.",
	})
	ordersCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_orders_completed_total",
		Help: "Orders moved to completed by the escrow payout sweep.",
	})
	payoutsOK := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_payouts_succeeded_total",
		Help: "Seller payouts that settled successfully.",
	})
	payoutsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_payouts_failed_total",
		Help: "Seller payouts that failed and will be retried.",
	})
	reg.MustRegister(ordersProcessed, ordersCompleted, payoutsOK, payoutsFailed)
	return &SweepMetrics{
		ordersProcessed: ordersProcessed,
		ordersCompleted: ordersCompleted,
		payoutsOK:       payoutsOK,
		payoutsFailed:   payoutsFailed,
	}
}

// IncOrdersProcessed counts an order picked up by the sweep.
func (s *SweepMetrics) IncOrdersProcessed() {
	if s == nil || s.ordersProcessed == nil {
		return
	}
	s.ordersProcessed.Inc()
}

// IncOrdersCompleted counts an order fully settled by the sweep.
func (s *SweepMetrics) IncOrdersCompleted() {
	if s == nil || s.ordersCompleted == nil {
		return
	}
	s.ordersCompleted.Inc()
}

// IncPayoutsSucceeded counts a settled seller payout.
func (s *SweepMetrics) IncPayoutsSucceeded() {
	if s == nil || s.payoutsOK == nil {
		return
	}
	s.payoutsOK.Inc()
}

// IncPayoutsFailed counts a failed seller payout.
func (s *SweepMetrics) IncPayoutsFailed() {
	if s == nil || s.payoutsFailed == nil {
		return
	}
	s.payoutsFailed.Inc()
}
