package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

func amt(v model.Amount) *model.Amount { return &v }

func total(b model.Balance) model.Amount {
	return b.Available + b.Requested + b.Paid + b.Refused
}

func TestScenarioPartialPayment(t *testing.T) {
	b := model.Balance{Available: 10000}

	b, err := Reserve(b, 4000)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Available: 6000, Requested: 4000}, b)

	b, err = Transition(b, model.PayoutRequested, model.PayoutPaid, 4000, amt(3000))
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Available: 7000, Requested: 0, Paid: 3000}, b)
}

func TestScenarioRefuse(t *testing.T) {
	b := model.Balance{Available: 10000}

	b, err := Reserve(b, 5000)
	require.NoError(t, err)

	b, err = Transition(b, model.PayoutRequested, model.PayoutRefused, 5000, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Available: 10000, Requested: 0, Refused: 5000}, b)
}

func TestScenarioDeleteRequested(t *testing.T) {
	start := model.Balance{Available: 1000, Requested: 2000, Paid: 300, Refused: 400}

	b := Release(start, 2000)
	assert.Equal(t, start.Available+2000, b.Available)
	assert.Equal(t, model.Amount(0), b.Requested)
	assert.Equal(t, start.Paid, b.Paid)
	assert.Equal(t, start.Refused, b.Refused)
}

func TestReserve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		amount model.Amount
		want   error
	}{
		{name: "zero", amount: 0, want: ErrInvalidAmount},
		{name: "negative", amount: -5, want: ErrInvalidAmount},
		{name: "above available", amount: 101, want: ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := model.Balance{Available: 100}
			b, err := Reserve(start, tt.amount)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, start, b)
		})
	}
}

func TestCanTransition(t *testing.T) {
	statuses := []model.PayoutStatus{model.PayoutRequested, model.PayoutApproved, model.PayoutPaid, model.PayoutRefused}
	allowed := map[[2]model.PayoutStatus]bool{
		{model.PayoutRequested, model.PayoutApproved}: true,
		{model.PayoutRequested, model.PayoutPaid}:     true,
		{model.PayoutRequested, model.PayoutRefused}:  true,
		{model.PayoutApproved, model.PayoutApproved}:  true,
		{model.PayoutApproved, model.PayoutPaid}:      true,
		{model.PayoutApproved, model.PayoutRefused}:   true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			err := CanTransition(from, to)
			if allowed[[2]model.PayoutStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}

	assert.ErrorIs(t, CanTransition("weird", model.PayoutPaid), ErrInvalidTransition)
}

func TestTransition_RejectsApprovedAboveRequested(t *testing.T) {
	start := model.Balance{Requested: 100}
	b, err := Transition(start, model.PayoutRequested, model.PayoutPaid, 100, amt(150))
	require.ErrorIs(t, err, ErrApprovedExceedsRequested)
	assert.Equal(t, start, b)
}

func TestTransition_ApproveKeepsBuckets(t *testing.T) {
	start := model.Balance{Available: 10, Requested: 20, Paid: 30, Refused: 40}
	b, err := Transition(start, model.PayoutRequested, model.PayoutApproved, 20, amt(15))
	require.NoError(t, err)
	assert.Equal(t, start, b)
}

func TestRefundsOnDelete(t *testing.T) {
	assert.True(t, RefundsOnDelete(model.PayoutRequested))
	assert.True(t, RefundsOnDelete(model.PayoutApproved))
	assert.False(t, RefundsOnDelete(model.PayoutPaid))
	assert.False(t, RefundsOnDelete(model.PayoutRefused))
}

func TestPropertyCreateThenPay(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		start := model.Balance{
			Available: model.Amount(rnd.Int63n(1_000_000)),
			Requested: model.Amount(rnd.Int63n(1_000_000)),
			Paid:      model.Amount(rnd.Int63n(1_000_000)),
			Refused:   model.Amount(rnd.Int63n(1_000_000)),
		}
		if start.Available == 0 {
			continue
		}
		reqAmt := model.Amount(rnd.Int63n(int64(start.Available))) + 1
		payAmt := model.Amount(rnd.Int63n(int64(reqAmt) + 1))

		b, err := Reserve(start, reqAmt)
		require.NoError(t, err)
		b, err = Transition(b, model.PayoutRequested, model.PayoutPaid, reqAmt, &payAmt)
		require.NoError(t, err)

		assert.Equal(t, start.Paid+payAmt, b.Paid)
		assert.Equal(t, start.Available-payAmt, b.Available)
		assert.Equal(t, start.Requested, b.Requested)
		assert.Equal(t, start.Refused, b.Refused)
		assert.Equal(t, total(start), total(b))
	}
}

func TestPropertyCreateThenRefuse(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))

	for i := 0; i < 500; i++ {
		start := model.Balance{
			Available: model.Amount(rnd.Int63n(1_000_000)) + 1,
			Requested: model.Amount(rnd.Int63n(1_000_000)),
		}
		reqAmt := model.Amount(rnd.Int63n(int64(start.Available))) + 1

		b, err := Reserve(start, reqAmt)
		require.NoError(t, err)
		b, err = Transition(b, model.PayoutRequested, model.PayoutRefused, reqAmt, nil)
		require.NoError(t, err)

		assert.Equal(t, start.Available, b.Available)
		assert.Equal(t, start.Requested, b.Requested)
		assert.Equal(t, reqAmt, b.Refused)
	}
}

func TestPropertyNeverNegative(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	signed := func() model.Amount { return model.Amount(rnd.Int63n(2000) - 1000) }

	for i := 0; i < 1000; i++ {
		start := model.Balance{Available: signed(), Requested: signed(), Paid: signed(), Refused: signed()}
		reqAmt := signed()
		payAmt := signed()

		for _, b := range []model.Balance{
			Pay(start, reqAmt, payAmt),
			Refuse(start, reqAmt),
			Release(start, reqAmt),
			Approve(start),
		} {
			assert.GreaterOrEqual(t, b.Available, model.Amount(0))
			assert.GreaterOrEqual(t, b.Requested, model.Amount(0))
			assert.GreaterOrEqual(t, b.Paid, model.Amount(0))
			assert.GreaterOrEqual(t, b.Refused, model.Amount(0))
		}
	}
}

func TestReleaseClampsRequested(t *testing.T) {
	b := Release(model.Balance{Available: 5, Requested: 10}, 30)
	assert.Equal(t, model.Balance{Available: 35, Requested: 0}, b)
}
