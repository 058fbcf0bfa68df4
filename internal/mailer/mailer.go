// Package mailer delivers account emails over SMTP.
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends confirmation and password reset mails. The links embed a
// purpose-scoped JWT produced by the auth package.
type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	baseURL string
}

// New creates a mailer that connects to the given SMTP host.
func New(host string, port int, user, password, from, baseURL string) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(host, port, user, password),
		from:    from,
		baseURL: baseURL,
	}
}

// SendConfirmation mails the email verification link to a fresh account.
func (m *Mailer) SendConfirmation(to, username, token string) error {
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\n"+
			"please confirm your email address by opening the following link:\r\n\r\n"+
			"%s/api/auth/confirmed_email/%s\r\n\r\n"+
			"If you did not sign up, ignore this mail.\r\n",
		username, m.baseURL, token)
	return m.send(to, "Confirm your email address", body)
}

// SendPasswordReset mails the password reset link.
func (m *Mailer) SendPasswordReset(to, username, token string) error {
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\n"+
			"a password reset was requested for your account. Open the link to pick "+
			"a new password:\r\n\r\n"+
			"%s/reset_password?token=%s\r\n\r\n"+
			"If you did not request a reset, ignore this mail.\r\n",
		username, m.baseURL, token)
	return m.send(to, "Reset your password", body)
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending %q mail to %s: %w", subject, to, err)
	}
	return nil
}
