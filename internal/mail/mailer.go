package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"chatdeck/api/internal/config"
)

// Sender is what the auth service needs from the mail layer. Tests swap in a
// recording fake.
type Sender interface {
	SendSignupCode(to string, code string) error
	SendResetCode(to string, code string) error
}

type Mailer struct {
	cfg config.MailConfig
	log zerolog.Logger
}

func NewMailer(cfg config.MailConfig, log zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

var signupTemplate = template.Must(template.New("signup").Parse(`
<p>Your Chatdeck verification code is:</p>
<h2>{{.Code}}</h2>
<p>The code expires in {{.TTL}}. If you did not request it, ignore this message.</p>
`))

var resetTemplate = template.Must(template.New("reset").Parse(`
<p>Your Chatdeck password reset code is:</p>
<h2>{{.Code}}</h2>
<p>The code expires in {{.TTL}}. If you did not request it, ignore this message.</p>
`))

func (m *Mailer) SendSignupCode(to string, code string) error {
	return m.send(to, "Verify your Chatdeck account", signupTemplate, code)
}

func (m *Mailer) SendResetCode(to string, code string) error {
	return m.send(to, "Reset your Chatdeck password", resetTemplate, code)
}

func (m *Mailer) send(to string, subject string, tpl *template.Template, code string) error {
	var body bytes.Buffer
	if err := tpl.Execute(&body, map[string]string{"Code": code, "TTL": "15 minutes"}); err != nil {
		return fmt.Errorf("render mail body: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromEmail, m.cfg.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	dialer := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.log.Debug().Str("to", to).Str("subject", subject).Msg("mail sent")
	return nil
}
