package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

func TestValidatePayout(t *testing.T) {
	valid := model.PayoutDetails{
		FullName: "  Maria Souza ",
		CPF:      "529.982.247-25",
		PixKey:   "maria@example.com",
		BankName: "Nubank",
	}

	tests := []struct {
		name       string
		amount     model.Amount
		details    func(d model.PayoutDetails) model.PayoutDetails
		wantFields []string
	}{
		{
			name:    "valid",
			amount:  1000,
			details: func(d model.PayoutDetails) model.PayoutDetails { return d },
		},
		{
			name:       "zero amount",
			amount:     0,
			details:    func(d model.PayoutDetails) model.PayoutDetails { return d },
			wantFields: []string{"amount"},
		},
		{
			name:   "missing everything",
			amount: 100,
			details: func(d model.PayoutDetails) model.PayoutDetails {
				return model.PayoutDetails{FullName: "ab"}
			},
			wantFields: []string{"full_name", "cpf", "pix_key", "bank_name"},
		},
		{
			name:   "bad cpf",
			amount: 100,
			details: func(d model.PayoutDetails) model.PayoutDetails {
				d.CPF = "123.456.789-00"
				return d
			},
			wantFields: []string{"cpf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePayout(tt.amount, tt.details(valid))
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				assert.Equal(t, "Maria Souza", got.FullName)
				assert.Equal(t, "52998224725", got.CPF)
				return
			}

			require.ErrorIs(t, err, ErrInvalid)
			var errs Errors
			require.True(t, errors.As(err, &errs))
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fe.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("user@example.com", "secret"))
	assert.ErrorIs(t, ValidateCredentials("user", "secret"), ErrInvalid)
	assert.ErrorIs(t, ValidateCredentials("user@example.com", ""), ErrInvalid)
}

func TestValidatePlatform(t *testing.T) {
	ok := model.Platform{Name: "Bet One", Terms: model.CommissionTerms{Model: model.CommissionHybrid, CPA: 5000, Rev: 30}}
	assert.NoError(t, ValidatePlatform(ok))

	bad := ok
	bad.Name = " "
	bad.Terms.Rev = 150
	assert.ErrorIs(t, ValidatePlatform(bad), ErrInvalid)
}

func TestValidateLinkUpdate(t *testing.T) {
	neg := model.Amount(-1)
	zero := model.Amount(0)

	assert.NoError(t, ValidateLinkUpdate(model.LinkUpdate{Available: &zero}))
	assert.ErrorIs(t, ValidateLinkUpdate(model.LinkUpdate{Available: &neg}), ErrInvalid)
	assert.ErrorIs(t, ValidateLinkUpdate(model.LinkUpdate{Counters: &model.LinkCounters{FTDs: -2}}), ErrInvalid)
	assert.ErrorIs(t, ValidateLinkUpdate(model.LinkUpdate{Terms: &model.CommissionTerms{Model: "bogus"}}), ErrInvalid)
	assert.NoError(t, ValidateTerms(model.CommissionTerms{Model: model.CommissionRev, Rev: 25}))
}

func TestParseStatsMode(t *testing.T) {
	m, err := ParseStatsMode("")
	require.NoError(t, err)
	assert.Equal(t, StatsAdd, m)

	m, err = ParseStatsMode("SET")
	require.NoError(t, err)
	assert.Equal(t, StatsSet, m)

	_, err = ParseStatsMode("replace")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateStats(t *testing.T) {
	day := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, ValidateStats(model.DailyStats{Day: day, Signups: 3}))
	assert.ErrorIs(t, ValidateStats(model.DailyStats{Signups: 3}), ErrInvalid)
	assert.ErrorIs(t, ValidateStats(model.DailyStats{Day: day, CPAAmount: -1}), ErrInvalid)
}
