package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/staffboard/staffboard-backend/config"
	"go.uber.org/zap"
)

var ErrUnknownKind = errors.New("unknown notification kind")

type Message struct {
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer hands a message to a delivery service.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. Used in
// development.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}

// NewMailer picks the implementation named by MAIL_PROVIDER.
func NewMailer(ctx context.Context, cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogMailer(logger), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), nil
	case "ses":
		return NewSESMailerFromConfig(ctx, cfg.AWSRegion)
	}
	return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
}
