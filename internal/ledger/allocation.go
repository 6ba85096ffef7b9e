package ledger

import (
	"fmt"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// LinkBalance описывает баланс одной привязки партнёра к площадке.
type LinkBalance struct {
	LinkID  string
	Balance model.Balance
}

// Op описывает операцию закрытия заявки, применяемую к её резервам.
type Op int

const (
	OpPay Op = iota
	OpRefuse
	OpRelease
)

// Allocate распределяет резерв reqAmt по привязкам в переданном порядке,
// забирая с каждой не больше её доступного остатка.
func Allocate(links []LinkBalance, reqAmt model.Amount) ([]model.PayoutAllocation, error) {
	if reqAmt <= 0 {
		return nil, ErrInvalidAmount
	}

	var total model.Amount
	for _, l := range links {
		total += floor(l.Balance.Available)
	}
	if total < reqAmt {
		return nil, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, total, reqAmt)
	}

	remaining := reqAmt
	allocs := make([]model.PayoutAllocation, 0, len(links))
	for _, l := range links {
		if remaining == 0 {
			break
		}
		take := min(floor(l.Balance.Available), remaining)
		if take == 0 {
			continue
		}
		allocs = append(allocs, model.PayoutAllocation{LinkID: l.LinkID, Amount: take})
		remaining -= take
	}

	return allocs, nil
}

// SplitPayment распределяет выплату payAmt по резервам: доля каждого резерва
// не превышает его суммы, сумма долей равна min(payAmt, сумма резервов).
func SplitPayment(allocs []model.PayoutAllocation, payAmt model.Amount) []model.Amount {
	shares := make([]model.Amount, len(allocs))
	remaining := floor(payAmt)
	for i, a := range allocs {
		take := min(floor(a.Amount), remaining)
		shares[i] = take
		remaining -= take
	}
	return shares
}

// Settle применяет операцию к балансам привязок, на которых лежат резервы заявки.
// Привязки, отсутствующие в balances, пропускаются. Исходная карта не изменяется.
func Settle(balances map[string]model.Balance, allocs []model.PayoutAllocation, op Op, payAmt model.Amount) map[string]model.Balance {
	out := make(map[string]model.Balance, len(balances))
	for id, b := range balances {
		out[id] = b
	}

	var shares []model.Amount
	if op == OpPay {
		shares = SplitPayment(allocs, payAmt)
	}

	for i, a := range allocs {
		b, ok := out[a.LinkID]
		if !ok {
			continue
		}
		switch op {
		case OpPay:
			b = Pay(b, a.Amount, shares[i])
		case OpRefuse:
			b = Refuse(b, a.Amount)
		case OpRelease:
			b = Release(b, a.Amount)
		}
		out[a.LinkID] = b
	}

	return out
}

// OpFor возвращает операцию закрытия для целевого статуса.
// Для "approved" корзины не меняются, и ok равно false.
func OpFor(to model.PayoutStatus) (op Op, ok bool) {
	switch to {
	case model.PayoutPaid:
		return OpPay, true
	case model.PayoutRefused:
		return OpRefuse, true
	default:
		return 0, false
	}
}
