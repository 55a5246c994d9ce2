// Package notify delivers best-effort student notifications. A failed send is
// never an error the caller acts on; the notification service records the
// outcome in the audit ledger and moves on.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Config parametrises the SMTP notifier.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends plain-text mail through a relay.
type SMTPNotifier struct {
	cfg    Config
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier builds the notifier.
func NewSMTPNotifier(cfg Config, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPNotifier{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// Enabled reports whether the notifier is configured to send anything.
func (n *SMTPNotifier) Enabled() bool {
	return n.cfg.Enabled && n.cfg.Host != "" && n.cfg.From != ""
}

// Notify sends one message and reports whether the send succeeded. It never
// panics or escalates; the boolean is the whole contract.
func (n *SMTPNotifier) Notify(msg Message) bool {
	if !n.Enabled() {
		n.logger.Debug("notifier disabled, dropping message", zap.String("to", msg.To))
		return false
	}
	if msg.To == "" {
		return false
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	payload := strings.Join([]string{
		"From: " + n.cfg.From,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		msg.Body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, []string{msg.To}, []byte(payload)); err != nil {
		n.logger.Warn("notification send failed", zap.String("to", msg.To), zap.Error(err))
		return false
	}
	return true
}
