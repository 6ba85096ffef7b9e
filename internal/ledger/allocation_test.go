package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

func TestAllocate(t *testing.T) {
	links := []LinkBalance{
		{LinkID: "a", Balance: model.Balance{Available: 1000}},
		{LinkID: "b", Balance: model.Balance{Available: 0}},
		{LinkID: "c", Balance: model.Balance{Available: 2500}},
	}

	tests := []struct {
		name    string
		amount  model.Amount
		want    []model.PayoutAllocation
		wantErr error
	}{
		{
			name:   "fits first link",
			amount: 400,
			want:   []model.PayoutAllocation{{LinkID: "a", Amount: 400}},
		},
		{
			name:   "spills over and skips empty link",
			amount: 1800,
			want: []model.PayoutAllocation{
				{LinkID: "a", Amount: 1000},
				{LinkID: "c", Amount: 800},
			},
		},
		{
			name:    "insufficient",
			amount:  3501,
			wantErr: ErrInsufficientBalance,
		},
		{
			name:    "zero amount",
			amount:  0,
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(links, tt.amount)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitPayment(t *testing.T) {
	allocs := []model.PayoutAllocation{{LinkID: "a", Amount: 1000}, {LinkID: "c", Amount: 800}}

	assert.Equal(t, []model.Amount{1000, 800}, SplitPayment(allocs, 1800))
	assert.Equal(t, []model.Amount{1000, 300}, SplitPayment(allocs, 1300))
	assert.Equal(t, []model.Amount{500, 0}, SplitPayment(allocs, 500))
	assert.Equal(t, []model.Amount{0, 0}, SplitPayment(allocs, -1))
}

func TestSettle_SkipsUnknownLinks(t *testing.T) {
	balances := map[string]model.Balance{"a": {Requested: 100}}
	allocs := []model.PayoutAllocation{{LinkID: "a", Amount: 100}, {LinkID: "gone", Amount: 50}}

	out := Settle(balances, allocs, OpRelease, 0)

	assert.Equal(t, model.Balance{Available: 100}, out["a"])
	assert.NotContains(t, out, "gone")
	assert.Equal(t, model.Balance{Requested: 100}, balances["a"], "input must stay untouched")
}

// Резервы, разнесённые по привязкам, после закрытия заявки дают тот же
// суммарный баланс, что и переход на агрегированном уровне партнёра.
func TestSettle_AgreesWithAggregate(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 300; i++ {
		n := rnd.Intn(4) + 1
		links := make([]LinkBalance, n)
		balances := make(map[string]model.Balance, n)
		for j := range links {
			b := model.Balance{
				Available: model.Amount(rnd.Int63n(5000)),
				Requested: model.Amount(rnd.Int63n(5000)),
				Paid:      model.Amount(rnd.Int63n(5000)),
				Refused:   model.Amount(rnd.Int63n(5000)),
			}
			id := string(rune('a' + j))
			links[j] = LinkBalance{LinkID: id, Balance: b}
			balances[id] = b
		}

		aggregate := Sum(values(balances)...)
		if aggregate.Available == 0 {
			continue
		}
		reqAmt := model.Amount(rnd.Int63n(int64(aggregate.Available))) + 1

		allocs, err := Allocate(links, reqAmt)
		require.NoError(t, err)

		for _, a := range allocs {
			b, err := Reserve(balances[a.LinkID], a.Amount)
			require.NoError(t, err)
			balances[a.LinkID] = b
		}
		aggregate, err = Reserve(aggregate, reqAmt)
		require.NoError(t, err)
		require.Equal(t, aggregate, Sum(values(balances)...))

		op := Op(rnd.Intn(3))
		payAmt := model.Amount(rnd.Int63n(int64(reqAmt) + 1))

		settled := Settle(balances, allocs, op, payAmt)

		var want model.Balance
		switch op {
		case OpPay:
			want = Pay(aggregate, reqAmt, payAmt)
		case OpRefuse:
			want = Refuse(aggregate, reqAmt)
		case OpRelease:
			want = Release(aggregate, reqAmt)
		}
		assert.Equal(t, want, Sum(values(settled)...))
	}
}

func TestOpFor(t *testing.T) {
	op, ok := OpFor(model.PayoutPaid)
	assert.True(t, ok)
	assert.Equal(t, OpPay, op)

	op, ok = OpFor(model.PayoutRefused)
	assert.True(t, ok)
	assert.Equal(t, OpRefuse, op)

	_, ok = OpFor(model.PayoutApproved)
	assert.False(t, ok)
}

func values(m map[string]model.Balance) []model.Balance {
	out := make([]model.Balance, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
