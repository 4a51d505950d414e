package auth

import (
	"context"

	"go.uber.org/zap"
)

type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers auth emails (confirmation and password reset).
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer writes mails to the log instead of sending them. It is the
// default in development.
type LogMailer struct {
	log *zap.SugaredLogger
}

func NewLogMailer(log *zap.SugaredLogger) *LogMailer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.log.Infow("mail", "to", mail.To, "subject", mail.Subject, "body", mail.Body)
	return nil
}
