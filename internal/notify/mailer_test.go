package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*gomail.Message
	done chan struct{}
}

func (s *recordingSender) DialAndSend(m ...*gomail.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, m...)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func newTestMailer(queue int) (*Mailer, *recordingSender) {
	rs := &recordingSender{done: make(chan struct{}, 8)}
	m := NewMailer(SMTPConfig{From: "noreply@example.com"}, queue, zap.NewNop())
	m.sender = rs
	return m, rs
}

func TestMailer_SendsQueuedMessage(t *testing.T) {
	m, rs := newTestMailer(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	approved := model.Amount(3000)
	m.PayoutChanged("ana@example.com", model.PayoutRequest{ID: "p1", Amount: 4000, ApprovedAmount: &approved, Status: model.PayoutPaid})

	select {
	case <-rs.done:
	case <-time.After(time.Second):
		t.Fatal("message was not sent")
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	require.Len(t, rs.sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, rs.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Saque pago"}, rs.sent[0].GetHeader("Subject"))
}

func TestMailer_DropsWhenQueueFull(t *testing.T) {
	m, _ := newTestMailer(1)
	p := model.PayoutRequest{ID: "p1", Amount: 100, Status: model.PayoutRefused}

	m.PayoutChanged("a@example.com", p)
	m.PayoutChanged("b@example.com", p)

	assert.Len(t, m.queue, 1)
}

func TestPayoutMessage(t *testing.T) {
	note := "CPF divergente"
	_, body, ok := payoutMessage(model.PayoutRequest{Amount: 5000, Status: model.PayoutRefused, AdminNote: &note})
	require.True(t, ok)
	assert.Contains(t, body, "50.00")
	assert.Contains(t, body, note)

	_, _, ok = payoutMessage(model.PayoutRequest{Status: model.PayoutRequested})
	assert.False(t, ok)
}

func TestMailer_NilIsNoop(t *testing.T) {
	var m *Mailer
	m.PayoutChanged("a@example.com", model.PayoutRequest{Status: model.PayoutPaid})
}
