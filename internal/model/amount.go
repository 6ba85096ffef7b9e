package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount описывает денежную сумму в сентаво (1/100 реала).
// В JSON кодируется десятичным числом: 4050 ⇄ 40.5.
type Amount int64

var (
	// ErrInvalidAmount объединяет ошибки разбора денежной суммы.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountOutOfRange возвращается, если сумма не помещается в int64 сентаво.
	ErrAmountOutOfRange = fmt.Errorf("%w: out of range", ErrInvalidAmount)
	// ErrAmountPrecision возвращается, если в сумме больше двух знаков после запятой.
	ErrAmountPrecision = fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
)

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// AmountFromDecimal переводит десятичную сумму в сентаво. Доли сентаво и
// значения вне диапазона int64 отклоняются.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountPrecision, d)
	}
	if cents.LessThan(minCents) || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d)
	}
	return Amount(cents.IntPart()), nil
}

// ParseAmount разбирает строковое представление суммы, например "40.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w: %w", s, ErrInvalidAmount, err)
	}
	return AmountFromDecimal(d)
}

// Decimal возвращает сумму в реалах.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// MarshalJSON кодирует сумму JSON-числом.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

// UnmarshalJSON принимает как число, так и строку с числом.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("decode amount: %w: %w", ErrInvalidAmount, err)
	}
	v, err := AmountFromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
