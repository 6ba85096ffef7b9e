//go:build integration

package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// Запуск: DATABASE_URI=postgres://... go test -tags integration ./internal/repository/

func newIntegrationRepo(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	r, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// seedAffiliate создаёт одобренного партнёра с одной привязкой, на которой
// лежит available.
func seedAffiliate(t *testing.T, r *PostgresRepository, available model.Amount) (affiliateID, linkID string) {
	t.Helper()
	ctx := context.Background()

	affiliateID = uuid.NewString()
	_, err := r.EnsureAffiliate(ctx, affiliateID, affiliateID+"@example.com", model.RoleAffiliate)
	require.NoError(t, err)
	_, err = r.SetApprovalStatus(ctx, affiliateID, model.ApprovalApproved)
	require.NoError(t, err)

	p, err := r.CreatePlatform(ctx, model.Platform{
		Name:   "Casa " + uuid.NewString(),
		Terms:  model.CommissionTerms{Model: model.CommissionCPA, CPA: 5000},
		Active: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		assert.NoError(t, r.DeleteAffiliate(ctx, affiliateID))
		assert.NoError(t, r.DeletePlatform(ctx, p.ID))
	})

	q, err := r.CreateAffiliationRequest(ctx, affiliateID, p.ID)
	require.NoError(t, err)
	link, err := r.ApproveAffiliationRequest(ctx, q.ID, model.LinkApproval{Available: available})
	require.NoError(t, err)

	requireAggregate(t, r, affiliateID)
	return affiliateID, link.ID
}

// requireAggregate проверяет, что баланс партнёра равен сумме по его привязкам.
func requireAggregate(t *testing.T, r *PostgresRepository, affiliateID string) model.Balance {
	t.Helper()

	var sum model.Balance
	err := r.pool.QueryRow(context.Background(),
		`SELECT COALESCE(SUM(commission_available), 0), COALESCE(SUM(commission_requested), 0),
			COALESCE(SUM(commission_paid), 0), COALESCE(SUM(commission_refused), 0)
		 FROM platform_links WHERE affiliate_id = $1`,
		affiliateID,
	).Scan(&sum.Available, &sum.Requested, &sum.Paid, &sum.Refused)
	require.NoError(t, err)

	a, err := r.GetAffiliate(context.Background(), affiliateID)
	require.NoError(t, err)
	require.Equal(t, sum, a.Balance, "affiliate balance must match its links")
	return a.Balance
}

func newPayout(affiliateID string, amount model.Amount) model.NewPayout {
	return model.NewPayout{
		AffiliateID: affiliateID,
		Amount:      amount,
		Details: model.PayoutDetails{
			FullName: "Maria Souza",
			CPF:      "52998224725",
			PixKey:   "maria@example.com",
			BankName: "Nubank",
		},
	}
}

func amountPtr(a model.Amount) *model.Amount { return &a }

func TestPayoutLifecycle_PaidWithApprovedAmount(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	affiliateID, linkID := seedAffiliate(t, r, 10000)

	p, err := r.CreatePayoutRequest(ctx, newPayout(affiliateID, 4000))
	require.NoError(t, err)
	require.Len(t, p.Allocations, 1)
	assert.Equal(t, linkID, p.Allocations[0].LinkID)
	assert.Equal(t, model.Balance{Available: 6000, Requested: 4000}, requireAggregate(t, r, affiliateID))

	approved, err := r.FinalizePayout(ctx, p.ID, model.PayoutChange{
		Status:         model.PayoutApproved,
		ApprovedAmount: amountPtr(3000),
	})
	require.NoError(t, err)
	assert.Nil(t, approved.ProcessedAt)
	assert.Equal(t, model.Balance{Available: 6000, Requested: 4000}, requireAggregate(t, r, affiliateID))

	paid, err := r.FinalizePayout(ctx, p.ID, model.PayoutChange{Status: model.PayoutPaid})
	require.NoError(t, err)
	require.NotNil(t, paid.ApprovedAmount)
	assert.Equal(t, model.Amount(3000), *paid.ApprovedAmount)
	assert.NotNil(t, paid.ProcessedAt)
	assert.Equal(t, model.Balance{Available: 7000, Paid: 3000}, requireAggregate(t, r, affiliateID))

	_, err = r.FinalizePayout(ctx, p.ID, model.PayoutChange{Status: model.PayoutRefused})
	require.Error(t, err)
	assert.Equal(t, model.Balance{Available: 7000, Paid: 3000}, requireAggregate(t, r, affiliateID))

	_, err = r.DeletePayout(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Available: 7000, Paid: 3000}, requireAggregate(t, r, affiliateID))
}

func TestPayoutLifecycle_Refused(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	affiliateID, _ := seedAffiliate(t, r, 10000)

	p, err := r.CreatePayoutRequest(ctx, newPayout(affiliateID, 5000))
	require.NoError(t, err)

	refused, err := r.FinalizePayout(ctx, p.ID, model.PayoutChange{Status: model.PayoutRefused})
	require.NoError(t, err)
	assert.NotNil(t, refused.ProcessedAt)
	assert.Equal(t, model.Balance{Available: 10000, Refused: 5000}, requireAggregate(t, r, affiliateID))
}

func TestPayoutLifecycle_DeleteRequestedRefunds(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	affiliateID, _ := seedAffiliate(t, r, 10000)

	p, err := r.CreatePayoutRequest(ctx, newPayout(affiliateID, 2000))
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Available: 8000, Requested: 2000}, requireAggregate(t, r, affiliateID))

	_, err = r.DeletePayout(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Available: 10000}, requireAggregate(t, r, affiliateID))

	_, err = r.GetPayout(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPayoutNotFound)
}

func TestPayoutLifecycle_RejectedWithoutSideEffects(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	affiliateID, _ := seedAffiliate(t, r, 10000)

	_, err := r.FinalizePayout(ctx, uuid.NewString(), model.PayoutChange{Status: model.PayoutPaid})
	require.ErrorIs(t, err, ErrPayoutNotFound)

	_, err = r.DeletePayout(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrPayoutNotFound)

	_, err = r.CreatePayoutRequest(ctx, newPayout(affiliateID, 10001))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	p, err := r.CreatePayoutRequest(ctx, newPayout(affiliateID, 4000))
	require.NoError(t, err)
	_, err = r.FinalizePayout(ctx, p.ID, model.PayoutChange{Status: model.PayoutPaid, ApprovedAmount: amountPtr(4001)})
	require.Error(t, err)

	assert.Equal(t, model.Balance{Available: 6000, Requested: 4000}, requireAggregate(t, r, affiliateID))
}

func TestListPayouts_SearchAndSummary(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	affiliateID, _ := seedAffiliate(t, r, 10000)

	first, err := r.CreatePayoutRequest(ctx, newPayout(affiliateID, 1000))
	require.NoError(t, err)
	_, err = r.CreatePayoutRequest(ctx, newPayout(affiliateID, 1000))
	require.NoError(t, err)
	_, err = r.FinalizePayout(ctx, first.ID, model.PayoutChange{Status: model.PayoutPaid})
	require.NoError(t, err)

	status := model.PayoutRequested
	f := model.PayoutFilter{AffiliateID: affiliateID, Status: &status, Search: "MARIA@example"}
	rows, err := r.ListPayouts(ctx, f)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.PayoutRequested, rows[0].Status)

	sum, err := r.CountPayouts(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutSummary{Requested: 1, Paid: 1}, sum)

	rows, err = r.ListPayouts(ctx, model.PayoutFilter{AffiliateID: affiliateID, Search: "100%"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
