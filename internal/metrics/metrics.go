// Package metrics содержит метрики Prometheus бэк-офиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// Ledger содержит счётчики операций с балансом партнёров.
type Ledger struct {
	transitions    *prometheus.CounterVec
	reservedCents  prometheus.Counter
	paidCents      prometheus.Counter
	failures       *prometheus.CounterVec
	reconciledRows prometheus.Counter
}

// NewLedger создаёт счётчики и регистрирует их в reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_transitions_total",
				Help: "Payout request status transitions.",
			},
			[]string{"from", "to"},
		),
		reservedCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payout_reserved_cents_total",
			Help: "Amount reserved by created payout requests, in cents.",
		}),
		paidCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payout_paid_cents_total",
			Help: "Amount paid out, in cents.",
		}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operation_failures_total",
				Help: "Failed balance-affecting operations.",
			},
			[]string{"op"},
		),
		reconciledRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_reconciled_affiliates_total",
			Help: "Affiliates whose cached balance drifted and was re-derived.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.transitions, m.reservedCents, m.paidCents, m.failures, m.reconciledRows)
	}
	return m
}

// PayoutCreated учитывает новый резерв.
func (m *Ledger) PayoutCreated(amount model.Amount) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues("", string(model.PayoutRequested)).Inc()
	m.reservedCents.Add(float64(amount))
}

// PayoutTransition учитывает смену статуса заявки.
func (m *Ledger) PayoutTransition(from, to model.PayoutStatus, paid model.Amount) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
	if to == model.PayoutPaid && paid > 0 {
		m.paidCents.Add(float64(paid))
	}
}

// PayoutDeleted учитывает удаление заявки.
func (m *Ledger) PayoutDeleted(from model.PayoutStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), "deleted").Inc()
}

// Failure учитывает неуспешную операцию op.
func (m *Ledger) Failure(op string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op).Inc()
}

// Reconciled учитывает партнёров с пересчитанным балансом.
func (m *Ledger) Reconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciledRows.Add(float64(n))
}
