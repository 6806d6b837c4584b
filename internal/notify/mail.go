package notify

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"date":     func(t time.Time) string { return t.Format(dateLayout) },
	"datetime": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04 MST") },
}).ParseFS(templateFS, "templates/*.html"))

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSettings configures NewSMTPSender.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// Secure selects implicit TLS; otherwise STARTTLS is used when offered.
	Secure bool
}

// NewSMTPSender builds a go-mail client for the given server.
func NewSMTPSender(s SMTPSettings) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(15 * time.Second),
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	if s.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

// MailEmitter renders notifications to HTML email.
type MailEmitter struct {
	sender Sender
	from   string
	logger *slog.Logger
}

// NewMailEmitter creates an emitter that sends through sender.
func NewMailEmitter(sender Sender, from string, logger *slog.Logger) *MailEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailEmitter{sender: sender, from: from, logger: logger}
}

type mailData struct {
	Name         string
	Notification Notification
}

// Emit sends one email and reports whether the server accepted it.
func (e *MailEmitter) Emit(ctx context.Context, to Recipient, n Notification) bool {
	msg, err := e.compose(to, n)
	if err != nil {
		e.logger.Error("compose email failed", "kind", n.Kind(), "to", to.Email, "err", err)
		return false
	}
	if err := e.sender.DialAndSendWithContext(ctx, msg); err != nil {
		e.logger.Error("send email failed", "kind", n.Kind(), "to", to.Email, "err", err)
		return false
	}
	e.logger.Info("email sent", "kind", n.Kind(), "to", to.Email)
	return true
}

func (e *MailEmitter) compose(to Recipient, n Notification) (*mail.Msg, error) {
	tpl := templates.Lookup(string(n.Kind()))
	if tpl == nil {
		return nil, fmt.Errorf("no template for %s", n.Kind())
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat("Library Management System", e.from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.AddToFormat(to.Name, to.Email); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(n.Subject())
	if err := msg.SetBodyHTMLTemplate(tpl, mailData{Name: to.Name, Notification: n}); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	msg.AddAlternativeString(mail.TypeTextPlain, n.Summary())
	return msg, nil
}

// LogEmitter stands in for email when no SMTP server is configured.
// It logs the notification and reports failure.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, to Recipient, n Notification) bool {
	e.logger.Warn("email disabled, notification not sent", "kind", n.Kind(), "to", to.Email, "subject", n.Subject())
	return false
}
