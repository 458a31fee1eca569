// Package notify 充值到账邮件通知
package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"coursepay/internal/config"
	"coursepay/internal/model"

	"gopkg.in/gomail.v2"
)

var receiptTmpl = template.Must(template.New("receipt").Parse(`<p>Hi {{.Name}},</p>
<p>Your top-up has been credited.</p>
<p>Reference: <b>{{.ExternalID}}</b></p>
<p>Amount: <b>{{.Amount}}</b></p>
<p>Current balance: <b>{{.Balance}}</b></p>`))

// Mailer 通过 SMTP 发送充值回执
type Mailer struct {
	from string
	send func(msgs ...*gomail.Message) error
}

func NewMailer(cfg *config.MailConfig) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &Mailer{from: cfg.Sender, send: dialer.DialAndSend}
}

// NewMailerWithSender 使用自定义 Sender，测试中替换真实 SMTP
func NewMailerWithSender(from string, sender gomail.Sender) *Mailer {
	return &Mailer{
		from: from,
		send: func(msgs ...*gomail.Message) error {
			return gomail.Send(sender, msgs...)
		},
	}
}

// TopUpCredited 发送入账回执，balance 为入账后余额
func (m *Mailer) TopUpCredited(ctx context.Context, user *model.User, topUp *model.TopUp, balance int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body strings.Builder
	err := receiptTmpl.Execute(&body, map[string]interface{}{
		"Name":       user.Name,
		"ExternalID": topUp.ExternalID,
		"Amount":     topUp.Amount,
		"Balance":    balance,
	})
	if err != nil {
		return fmt.Errorf("渲染邮件失败: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", user.Email)
	msg.SetHeader("Subject", "Top-up received: "+topUp.ExternalID)
	msg.SetBody("text/html", body.String())

	if err := m.send(msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}
