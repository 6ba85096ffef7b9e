package model

import (
	"fmt"
	"strings"
	"time"
)

// PayoutStatus описывает статус заявки на вывод средств.
type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "requested"
	PayoutApproved  PayoutStatus = "approved"
	PayoutPaid      PayoutStatus = "paid"
	PayoutRefused   PayoutStatus = "refused"
)

// ParsePayoutStatus разбирает статус заявки на вывод. Исторический статус "pending"
// трактуется как "requested", "rejected" как "refused".
func ParsePayoutStatus(s string) (PayoutStatus, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "requested", "pending":
		return PayoutRequested, nil
	case "approved":
		return PayoutApproved, nil
	case "paid":
		return PayoutPaid, nil
	case "refused", "rejected":
		return PayoutRefused, nil
	default:
		return "", fmt.Errorf("%w: payout status %q", ErrUnknownValue, s)
	}
}

// Terminal сообщает, является ли статус конечным.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutPaid || s == PayoutRefused
}

// PayoutDetails содержит реквизиты получателя выплаты.
type PayoutDetails struct {
	FullName string `json:"full_name"`
	CPF      string `json:"cpf"`
	PixKey   string `json:"pix_key"`
	BankName string `json:"bank_name"`
}

// PayoutAllocation описывает часть суммы заявки, зарезервированную на конкретной привязке.
type PayoutAllocation struct {
	LinkID string `json:"link_id"`
	Amount Amount `json:"amount"`
}

// PayoutRequest описывает заявку партнёра на вывод средств.
type PayoutRequest struct {
	ID             string             `json:"id"`
	AffiliateID    string             `json:"affiliate_id"`
	Amount         Amount             `json:"amount"`
	ApprovedAmount *Amount            `json:"approved_amount,omitempty"`
	Status         PayoutStatus       `json:"status"`
	AdminNote      *string            `json:"admin_note,omitempty"`
	Details        PayoutDetails      `json:"details"`
	LinkID         *string            `json:"link_id,omitempty"`
	PlatformName   string             `json:"platform_name,omitempty"`
	Allocations    []PayoutAllocation `json:"allocations,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
}

// NewPayout содержит данные для создания заявки на вывод.
type NewPayout struct {
	AffiliateID string
	Amount      Amount
	Details     PayoutDetails
	LinkID      *string
}

// PayoutChange описывает изменение статуса заявки администратором.
type PayoutChange struct {
	Status         PayoutStatus
	ApprovedAmount *Amount
	AdminNote      *string
}

// PayoutFilter задаёт условия выборки заявок на вывод.
type PayoutFilter struct {
	AffiliateID string
	Status      *PayoutStatus
	// Search ищет подстроку без учёта регистра в данных партнёра и реквизитах.
	Search string
	Limit  int
}

// PayoutRow описывает заявку с данными партнёра для списка администратора.
type PayoutRow struct {
	PayoutRequest
	AffiliateEmail    string `json:"affiliate_email"`
	AffiliateName     string `json:"affiliate_name"`
	AffiliateFullName string `json:"affiliate_full_name"`
}

// PayoutSummary содержит количество заявок по статусам.
type PayoutSummary struct {
	Requested int `json:"requested"`
	Approved  int `json:"approved"`
	Paid      int `json:"paid"`
	Refused   int `json:"refused"`
}

// PayoutList содержит список заявок администратора со сводкой.
type PayoutList struct {
	Rows    []PayoutRow   `json:"rows"`
	Summary PayoutSummary `json:"summary"`
}
