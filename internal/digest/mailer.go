package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/metrics"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/logger"
)

// Mailer delivers the rendered digest over SMTP.
type Mailer struct {
	cfg config.EmailConfig
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Validate reports a configuration error before any work happens so a digest
// run can short-circuit cleanly.
func (m *Mailer) Validate() error {
	if missing := m.cfg.Incomplete(); len(missing) > 0 {
		return fmt.Errorf("email configuration incomplete, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (m *Mailer) Send(ctx context.Context, html string) error {
	if err := m.Validate(); err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.Sender); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(m.cfg.Recipients...); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s %s", m.cfg.SubjectPrefix, time.Now().Format("2006-01-02")))
	msg.SetBodyString(mail.TypeTextHTML, html)

	client, err := mail.NewClient(m.cfg.SMTPServer,
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	metrics.DigestsSent.Inc()
	logger.Info("Digest sent", zap.Int("recipients", len(m.cfg.Recipients)))

	return nil
}
