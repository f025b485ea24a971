package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/docforge/internal/dkim"
)

// SMTPConfig contains relay settings
type SMTPConfig struct {
	Addr               string
	Hostname           string
	Username           string
	Password           string
	StartTLS           bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SMTPDispatcher submits messages to a relay
type SMTPDispatcher struct {
	cfg    SMTPConfig
	from   Sender
	signer *dkim.Signer
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPDispatcher creates a relay dispatcher. signer may be nil.
func NewSMTPDispatcher(cfg SMTPConfig, from Sender, signer *dkim.Signer, logger *slog.Logger) *SMTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	return &SMTPDispatcher{
		cfg:    cfg,
		from:   from,
		signer: signer,
		logger: logger,
		now:    time.Now,
	}
}

// Send builds, signs and submits the message
func (d *SMTPDispatcher) Send(ctx context.Context, n Notification) (*Receipt, error) {
	msg, err := BuildMessage(d.from, n, d.now())
	if err != nil {
		return nil, err
	}

	data := msg.Data
	if d.signer != nil {
		signed, err := d.signer.Sign(data)
		if err != nil {
			d.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", d.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	if err := d.submit(ctx, msg.From, msg.To, data); err != nil {
		return nil, err
	}

	d.logger.Info("document mailed",
		"to", msg.To,
		"message_id", msg.ID,
		"file_name", n.Document.FileName,
	)

	return &Receipt{MessageID: msg.ID}, nil
}

func (d *SMTPDispatcher) submit(ctx context.Context, from, to string, data []byte) error {
	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.cfg.Addr)
	if err != nil {
		return &DispatchError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", d.cfg.Addr, err),
		}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(d.cfg.Timeout))
	}

	var client *smtp.Client
	if d.cfg.StartTLS {
		host, _, _ := net.SplitHostPort(d.cfg.Addr)
		client, err = smtp.NewClientStartTLS(conn, &tls.Config{
			ServerName:         host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: d.cfg.InsecureSkipVerify,
		})
		if err != nil {
			return categorizeError(err, "STARTTLS")
		}
	} else {
		client = smtp.NewClient(conn)
	}
	defer client.Close()

	// STARTTLS resets the session, so EHLO is sent again with our own name
	if err := client.Hello(d.cfg.Hostname); err != nil {
		return categorizeError(err, "HELO")
	}

	if d.cfg.Username != "" {
		auth := sasl.NewPlainClient("", d.cfg.Username, d.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(to, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", to))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return &DispatchError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()
	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DispatchError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DispatchError{Temporary: smtpErr.Code/100 == 4, Message: msg}
	}

	if matches := smtpCodePattern.FindStringSubmatch(err.Error()); len(matches) > 1 {
		return &DispatchError{Temporary: strings.HasPrefix(matches[1], "4"), Message: msg}
	}

	// Assume temporary by default
	return &DispatchError{Temporary: true, Message: msg}
}
