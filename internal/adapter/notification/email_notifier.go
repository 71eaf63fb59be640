package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

const subject = "allocation service notification"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends plain-text mail through an unauthenticated SMTP relay.
type EmailNotifier struct {
	addr     string
	from     string
	sendMail sendMailFunc
}

func NewEmailNotifier(addr, from string) *EmailNotifier {
	return &EmailNotifier{addr: addr, from: from, sendMail: smtp.SendMail}
}

func (n *EmailNotifier) Send(ctx context.Context, destination, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.sendMail(n.addr, nil, n.from, []string{destination}, n.compose(destination, message)); err != nil {
		return fmt.Errorf("send mail to %s: %w", destination, err)
	}
	return nil
}

func (n *EmailNotifier) compose(destination, message string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", destination)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogNotifier records notifications in the log when no mail relay is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, destination, message string) error {
	n.logger.Warn("notification", zap.String("to", destination), zap.String("message", message))
	return nil
}
