package validation

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// ErrInvalid является общим признаком ошибки валидации, проверяемым через errors.Is.
var ErrInvalid = errors.New("validation failed")

// FieldError описывает ошибку в одном поле.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// Errors содержит набор ошибок валидации.
type Errors []FieldError

func (e Errors) Error() string {
	var b strings.Builder
	for i, fe := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field + ": " + fe.Msg)
	}
	return b.String()
}

// Is позволяет сопоставлять Errors с ErrInvalid.
func (e Errors) Is(target error) bool {
	return target == ErrInvalid
}

// Field возвращает ошибку валидации одного поля.
func Field(field, msg string) error {
	return Errors{{Field: field, Msg: msg}}
}

// ValidatePayout проверяет сумму и реквизиты заявки на вывод и возвращает
// нормализованные реквизиты (в CPF остаются только цифры, без лишних пробелов).
func ValidatePayout(amount model.Amount, d model.PayoutDetails) (model.PayoutDetails, error) {
	var errs Errors

	d.FullName = strings.TrimSpace(d.FullName)
	d.CPF = NormalizeCPF(d.CPF)
	d.PixKey = strings.TrimSpace(d.PixKey)
	d.BankName = strings.TrimSpace(d.BankName)

	if amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Msg: "must be positive"})
	}
	if utf8.RuneCountInString(d.FullName) < 3 {
		errs = append(errs, FieldError{Field: "full_name", Msg: "required"})
	}
	if !IsValidCPF(d.CPF) {
		errs = append(errs, FieldError{Field: "cpf", Msg: "invalid"})
	}
	if d.PixKey == "" {
		errs = append(errs, FieldError{Field: "pix_key", Msg: "required"})
	}
	if d.BankName == "" {
		errs = append(errs, FieldError{Field: "bank_name", Msg: "required"})
	}

	if len(errs) > 0 {
		return d, errs
	}
	return d, nil
}

// ValidateCredentials проверяет email и пароль при входе и регистрации.
func ValidateCredentials(email, password string) error {
	var errs Errors
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		errs = append(errs, FieldError{Field: "email", Msg: "invalid"})
	}
	if password == "" {
		errs = append(errs, FieldError{Field: "password", Msg: "required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidatePlatform проверяет карточку площадки каталога.
func ValidatePlatform(p model.Platform) error {
	var errs Errors
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Msg: "required"})
	}
	errs = append(errs, termsErrors(p.Terms)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateTerms проверяет условия вознаграждения.
func ValidateTerms(t model.CommissionTerms) error {
	if errs := termsErrors(t); len(errs) > 0 {
		return errs
	}
	return nil
}

func termsErrors(t model.CommissionTerms) Errors {
	var errs Errors
	if _, err := model.ParseCommissionModel(string(t.Model)); err != nil {
		errs = append(errs, FieldError{Field: "commission_model", Msg: "unknown"})
	}
	if t.Baseline < 0 || t.CPA < 0 {
		errs = append(errs, FieldError{Field: "terms", Msg: "must not be negative"})
	}
	if t.Rev < 0 || t.Rev > 100 {
		errs = append(errs, FieldError{Field: "rev", Msg: "must be between 0 and 100"})
	}
	return errs
}

// ValidateLinkUpdate проверяет изменения привязки.
func ValidateLinkUpdate(u model.LinkUpdate) error {
	var errs Errors
	if u.Terms != nil {
		errs = append(errs, termsErrors(*u.Terms)...)
	}
	if c := u.Counters; c != nil {
		if c.Signups < 0 || c.FTDs < 0 || c.DepositsAmount < 0 || c.CPAAmount < 0 || c.RevshareAmount < 0 {
			errs = append(errs, FieldError{Field: "counters", Msg: "must not be negative"})
		}
	}
	if u.Available != nil && *u.Available < 0 {
		errs = append(errs, FieldError{Field: "available", Msg: "must not be negative"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// StatsMode задаёт режим сохранения дневных метрик.
type StatsMode string

const (
	// StatsAdd прибавляет значения к уже сохранённым за день.
	StatsAdd StatsMode = "add"
	// StatsSet заменяет значения за день.
	StatsSet StatsMode = "set"
)

// ParseStatsMode разбирает режим сохранения метрик. Пустая строка означает StatsAdd.
func ParseStatsMode(s string) (StatsMode, error) {
	switch StatsMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatsAdd:
		return StatsAdd, nil
	case StatsSet:
		return StatsSet, nil
	default:
		return "", Field("mode", "must be add or set")
	}
}

// ValidateStats проверяет, что метрики дня неотрицательны.
func ValidateStats(s model.DailyStats) error {
	if s.Day.IsZero() {
		return Field("day", "required")
	}
	if s.Signups < 0 || s.FTDs < 0 || s.QFTDsCPA < 0 ||
		s.FTDAmount < 0 || s.CPAAmount < 0 || s.DepositsAmount < 0 || s.RevshareAmount < 0 {
		return Field("stats", "must not be negative")
	}
	return nil
}
