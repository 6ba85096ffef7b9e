// Package notify отправляет партнёрам письма об изменении заявок на вывод.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig содержит параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer ставит письма в очередь и отправляет их в отдельной горутине.
type Mailer struct {
	from   string
	sender sender
	queue  chan *gomail.Message
	logger *zap.Logger
}

// NewMailer создаёт почтовый клиент с очередью на queueSize писем.
func NewMailer(cfg SMTPConfig, queueSize int, logger *zap.Logger) *Mailer {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Mailer{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		queue:  make(chan *gomail.Message, queueSize),
		logger: logger,
	}
}

// Run отправляет письма из очереди до отмены ctx.
func (m *Mailer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.queue:
			if err := m.sender.DialAndSend(msg); err != nil {
				m.logger.Warn("send email failed", zap.Strings("to", msg.GetHeader("To")), zap.Error(err))
				continue
			}
			m.logger.Debug("email sent", zap.Strings("to", msg.GetHeader("To")))
		}
	}
}

// PayoutChanged уведомляет партнёра о новом статусе заявки. Если очередь
// заполнена, письмо отбрасывается.
func (m *Mailer) PayoutChanged(to string, p model.PayoutRequest) {
	if m == nil || to == "" {
		return
	}

	subject, body, ok := payoutMessage(p)
	if !ok {
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	select {
	case m.queue <- msg:
	default:
		m.logger.Warn("email queue is full, dropping message", zap.String("payout_id", p.ID))
	}
}

func payoutMessage(p model.PayoutRequest) (subject, body string, ok bool) {
	switch p.Status {
	case model.PayoutApproved:
		return "Saque aprovado",
			fmt.Sprintf("Sua solicitação de saque de R$ %s foi aprovada e será paga em breve.", approvedOrRequested(p)),
			true
	case model.PayoutPaid:
		return "Saque pago",
			fmt.Sprintf("Sua solicitação de saque foi paga: R$ %s via PIX.", approvedOrRequested(p)),
			true
	case model.PayoutRefused:
		text := fmt.Sprintf("Sua solicitação de saque de R$ %s foi recusada.", p.Amount)
		if p.AdminNote != nil && *p.AdminNote != "" {
			text += "\nMotivo: " + *p.AdminNote
		}
		return "Saque recusado", text, true
	default:
		return "", "", false
	}
}

func approvedOrRequested(p model.PayoutRequest) model.Amount {
	if p.ApprovedAmount != nil {
		return *p.ApprovedAmount
	}
	return p.Amount
}
