// Package ledger реализует переходы баланса партнёра между корзинами
// «доступно», «запрошено», «выплачено» и «отказано» при смене статуса заявки на вывод.
//
// Пакет не обращается к хранилищу: функции принимают текущее состояние и
// возвращают новое. Все вычитания ограничены снизу нулём, поэтому ни один
// переход не делает корзину отрицательной даже при несогласованном исходном состоянии.
package ledger

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

var (
	// ErrInsufficientBalance возвращается, если сумма заявки превышает доступный баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount возвращается для неположительной суммы заявки.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidTransition возвращается для недопустимой смены статуса.
	ErrInvalidTransition = errors.New("invalid payout status transition")
	// ErrApprovedExceedsRequested возвращается, если одобренная сумма больше запрошенной.
	ErrApprovedExceedsRequested = errors.New("approved amount exceeds requested amount")
)

func floor(a model.Amount) model.Amount {
	if a < 0 {
		return 0
	}
	return a
}

func sub(a, b model.Amount) model.Amount {
	return floor(a - b)
}

func normalize(b model.Balance) model.Balance {
	return model.Balance{
		Available: floor(b.Available),
		Requested: floor(b.Requested),
		Paid:      floor(b.Paid),
		Refused:   floor(b.Refused),
	}
}

// Reserve переносит сумму новой заявки из «доступно» в «запрошено».
func Reserve(b model.Balance, reqAmt model.Amount) (model.Balance, error) {
	if reqAmt <= 0 {
		return b, ErrInvalidAmount
	}
	if reqAmt > b.Available {
		return b, ErrInsufficientBalance
	}
	b.Available = sub(b.Available, reqAmt)
	b.Requested = floor(b.Requested) + reqAmt
	return normalize(b), nil
}

// Approve не меняет корзины: одобренная сумма фиксируется только в заявке.
func Approve(b model.Balance) model.Balance {
	return normalize(b)
}

// Pay закрывает заявку выплатой payAmt. Если выплачено меньше запрошенного,
// разница возвращается в «доступно».
func Pay(b model.Balance, reqAmt, payAmt model.Amount) model.Balance {
	reqAmt, payAmt = floor(reqAmt), floor(payAmt)
	b.Requested = sub(b.Requested, reqAmt)
	b.Paid = floor(b.Paid) + payAmt
	if diff := reqAmt - payAmt; diff > 0 {
		b.Available = floor(b.Available) + diff
	}
	return normalize(b)
}

// Refuse закрывает заявку отказом: сумма возвращается в «доступно» и учитывается в «отказано».
func Refuse(b model.Balance, reqAmt model.Amount) model.Balance {
	reqAmt = floor(reqAmt)
	b.Available = floor(b.Available) + reqAmt
	b.Requested = sub(b.Requested, reqAmt)
	b.Refused = floor(b.Refused) + reqAmt
	return normalize(b)
}

// Release возвращает резерв удаляемой незавершённой заявки.
func Release(b model.Balance, reqAmt model.Amount) model.Balance {
	reqAmt = floor(reqAmt)
	b.Available = floor(b.Available) + reqAmt
	b.Requested = sub(b.Requested, reqAmt)
	return normalize(b)
}

// CanTransition проверяет допустимость смены статуса заявки.
func CanTransition(from, to model.PayoutStatus) error {
	switch from {
	case model.PayoutRequested:
		switch to {
		case model.PayoutApproved, model.PayoutPaid, model.PayoutRefused:
			return nil
		}
	case model.PayoutApproved:
		switch to {
		case model.PayoutApproved, model.PayoutPaid, model.PayoutRefused:
			return nil
		}
	case model.PayoutPaid, model.PayoutRefused:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// RefundsOnDelete сообщает, возвращается ли резерв при удалении заявки в этом статусе.
func RefundsOnDelete(s model.PayoutStatus) bool {
	return s == model.PayoutRequested || s == model.PayoutApproved
}

// PayAmount возвращает сумму к выплате: одобренную, если она задана, иначе запрошенную.
func PayAmount(reqAmt model.Amount, approved *model.Amount) (model.Amount, error) {
	if approved == nil {
		return reqAmt, nil
	}
	if *approved < 0 {
		return 0, ErrInvalidAmount
	}
	if *approved > reqAmt {
		return 0, ErrApprovedExceedsRequested
	}
	return *approved, nil
}

// Transition применяет к балансу смену статуса from -> to для заявки на сумму reqAmt.
func Transition(b model.Balance, from, to model.PayoutStatus, reqAmt model.Amount, approved *model.Amount) (model.Balance, error) {
	if err := CanTransition(from, to); err != nil {
		return b, err
	}
	payAmt, err := PayAmount(reqAmt, approved)
	if err != nil {
		return b, err
	}

	switch to {
	case model.PayoutApproved:
		return Approve(b), nil
	case model.PayoutPaid:
		return Pay(b, reqAmt, payAmt), nil
	case model.PayoutRefused:
		return Refuse(b, reqAmt), nil
	default:
		return b, fmt.Errorf("%w: target %q", ErrInvalidTransition, to)
	}
}

// Sum возвращает покорзинную сумму балансов.
func Sum(balances ...model.Balance) model.Balance {
	var total model.Balance
	for _, b := range balances {
		total.Available += b.Available
		total.Requested += b.Requested
		total.Paid += b.Paid
		total.Refused += b.Refused
	}
	return total
}
