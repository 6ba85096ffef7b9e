// Package model содержит доменные сущности бэк-офиса партнёрской программы.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownValue возвращается при разборе значения, не входящего в перечисление.
var ErrUnknownValue = errors.New("unknown value")

// Role описывает роль пользователя.
type Role string

const (
	RoleAffiliate Role = "affiliate"
	RoleOwner     Role = "owner"
)

// ApprovalStatus описывает статус модерации аккаунта или заявки.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ParseApprovalStatus разбирает статус модерации.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch st := ApprovalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return st, nil
	default:
		return "", fmt.Errorf("%w: approval status %q", ErrUnknownValue, s)
	}
}

// CommissionModel описывает модель вознаграждения по площадке.
type CommissionModel string

const (
	CommissionCPA    CommissionModel = "cpa"
	CommissionRev    CommissionModel = "rev"
	CommissionHybrid CommissionModel = "hibrido"
)

// ParseCommissionModel разбирает модель вознаграждения. Пустая строка означает CPA.
func ParseCommissionModel(s string) (CommissionModel, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "cpa":
		return CommissionCPA, nil
	case "rev", "revshare":
		return CommissionRev, nil
	case "hibrido", "hybrid":
		return CommissionHybrid, nil
	default:
		return "", fmt.Errorf("%w: commission model %q", ErrUnknownValue, s)
	}
}

// Balance содержит четыре корзины баланса партнёра.
type Balance struct {
	Available Amount `json:"available"`
	Requested Amount `json:"requested"`
	Paid      Amount `json:"paid"`
	Refused   Amount `json:"refused"`
}

// User описывает учётную запись локального провайдера идентификации.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Identity описывает пользователя, подтверждённого провайдером идентификации.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session содержит данные текущей сессии.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Affiliate описывает профиль партнёра. Баланс является производным кэшем суммы балансов его площадок.
type Affiliate struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	FullName       string         `json:"full_name"`
	Instagram      string         `json:"instagram"`
	Whatsapp       string         `json:"whatsapp"`
	Telegram       string         `json:"telegram"`
	Experience     string         `json:"experience"`
	Notes          string         `json:"notes"`
	Role           Role           `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty"`
	RejectedAt     *time.Time     `json:"rejected_at,omitempty"`
	Balance        Balance        `json:"commissions"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ProfileUpdate содержит изменяемые партнёром поля профиля. nil означает «не менять».
type ProfileUpdate struct {
	Name       *string `json:"name,omitempty"`
	FullName   *string `json:"full_name,omitempty"`
	Instagram  *string `json:"instagram,omitempty"`
	Whatsapp   *string `json:"whatsapp,omitempty"`
	Telegram   *string `json:"telegram,omitempty"`
	Experience *string `json:"experience,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// AffiliateFilter задаёт условия выборки партнёров.
type AffiliateFilter struct {
	Status *ApprovalStatus
	Limit  int
}

// CommissionTerms описывает условия вознаграждения площадки.
type CommissionTerms struct {
	Model    CommissionModel `json:"commission_model"`
	Baseline Amount          `json:"baseline"`
	CPA      Amount          `json:"cpa"`
	Rev      float64         `json:"rev"`
}

// Platform описывает площадку («казино») из каталога администратора.
type Platform struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Link      string          `json:"link,omitempty"`
	Terms     CommissionTerms `json:"terms"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// LinkCounters содержит накопительные показатели по площадке.
type LinkCounters struct {
	Signups        int64  `json:"total_signups"`
	FTDs           int64  `json:"total_ftds"`
	DepositsAmount Amount `json:"total_deposits_amount"`
	CPAAmount      Amount `json:"total_cpa_amount"`
	RevshareAmount Amount `json:"total_revshare_amount"`
}

// PlatformLink описывает привязку партнёра к площадке. Её баланс является источником истины.
type PlatformLink struct {
	ID            string          `json:"id"`
	AffiliateID   string          `json:"affiliate_id"`
	PlatformID    *string         `json:"platform_id,omitempty"`
	PlatformName  string          `json:"platform_name"`
	PlatformLink  string          `json:"platform_link,omitempty"`
	AffiliateLink string          `json:"affiliate_link,omitempty"`
	Terms         CommissionTerms `json:"terms"`
	Balance       Balance         `json:"commissions"`
	Counters      LinkCounters    `json:"counters"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LinkUpdate содержит изменения привязки, выполняемые администратором. nil означает «не менять».
type LinkUpdate struct {
	AffiliateLink *string          `json:"affiliate_link,omitempty"`
	Terms         *CommissionTerms `json:"terms,omitempty"`
	Counters      *LinkCounters    `json:"counters,omitempty"`
	Available     *Amount          `json:"available,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

// AffiliationRequest описывает заявку партнёра на подключение к площадке.
type AffiliationRequest struct {
	ID           string         `json:"id"`
	AffiliateID  string         `json:"affiliate_id"`
	PlatformID   *string        `json:"platform_id,omitempty"`
	PlatformName string         `json:"platform_name"`
	PlatformLink string         `json:"platform_link,omitempty"`
	Status       ApprovalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RequestFilter задаёт условия выборки заявок на подключение.
type RequestFilter struct {
	AffiliateID string
	Status      *ApprovalStatus
}

// LinkApproval содержит параметры создаваемой при одобрении заявки привязки.
type LinkApproval struct {
	AffiliateLink string
	Available     Amount
}

// DailyStats содержит метрики партнёра за один день.
type DailyStats struct {
	Day            time.Time `json:"day"`
	Signups        int64     `json:"signups"`
	FTDs           int64     `json:"ftds"`
	FTDAmount      Amount    `json:"ftd_amount"`
	QFTDsCPA       int64     `json:"qftds_cpa"`
	CPAAmount      Amount    `json:"cpa_amount"`
	DepositsAmount Amount    `json:"deposits_amount"`
	RevshareAmount Amount    `json:"revshare_amount"`
}

// Add возвращает покомпонентную сумму метрик, сохраняя день получателя.
func (s DailyStats) Add(o DailyStats) DailyStats {
	s.Signups += o.Signups
	s.FTDs += o.FTDs
	s.FTDAmount += o.FTDAmount
	s.QFTDsCPA += o.QFTDsCPA
	s.CPAAmount += o.CPAAmount
	s.DepositsAmount += o.DepositsAmount
	s.RevshareAmount += o.RevshareAmount
	return s
}

// StatsTotals содержит итоги метрик за период.
type StatsTotals struct {
	Signups        int64  `json:"signups"`
	FTDs           int64  `json:"ftds"`
	FTDAmount      Amount `json:"ftd_amount"`
	QFTDsCPA       int64  `json:"qftds_cpa"`
	CPAAmount      Amount `json:"cpa_amount"`
	DepositsAmount Amount `json:"deposits_amount"`
	RevshareAmount Amount `json:"revshare_amount"`
}

// SumStats суммирует дневные метрики.
func SumStats(rows []DailyStats) StatsTotals {
	var t StatsTotals
	for _, r := range rows {
		t.Signups += r.Signups
		t.FTDs += r.FTDs
		t.FTDAmount += r.FTDAmount
		t.QFTDsCPA += r.QFTDsCPA
		t.CPAAmount += r.CPAAmount
		t.DepositsAmount += r.DepositsAmount
		t.RevshareAmount += r.RevshareAmount
	}
	return t
}

// DateRange описывает закрытый интервал дней.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MonthStats содержит метрики за месяц.
type MonthStats struct {
	Range  DateRange    `json:"range"`
	Days   []DailyStats `json:"days"`
	Totals StatsTotals  `json:"totals"`
}

// Dashboard содержит сводку для панели партнёра.
type Dashboard struct {
	Commissions Balance         `json:"commissions"`
	ThisMonth   MonthStats      `json:"this_month"`
	LastMonth   MonthStats      `json:"last_month"`
	Platforms   []PlatformLink  `json:"platforms"`
	Payouts     []PayoutRequest `json:"payouts"`
}

// PlatformsView содержит подключённые площадки партнёра, его заявки и доступный каталог.
type PlatformsView struct {
	Links     []PlatformLink       `json:"links"`
	Requests  []AffiliationRequest `json:"requests"`
	Available []Platform           `json:"available"`
}

// AdminOverview содержит ключевые показатели для панели администратора.
type AdminOverview struct {
	TotalAffiliates         int64 `json:"total_affiliates"`
	PendingApprovals        int64 `json:"pending_approvals"`
	PendingPlatformRequests int64 `json:"pending_platform_requests"`
	PendingPayouts          int64 `json:"pending_payouts"`
}
