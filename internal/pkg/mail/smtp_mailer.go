package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/env"
)

// SendMail delivers one HTML mail via the configured SMTP relay. The
// notification sink is the only caller; delivery errors are returned so
// the sink can fall back to persisting the notification unread.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")

	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", env.GetEnv("APP_DOMAIN", "localhost"))
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	addr := fmt.Sprintf("%s:%s", host, port)
	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		log.Printf("SMTP send error: %v", err)
		return err
	}
	return nil
}
