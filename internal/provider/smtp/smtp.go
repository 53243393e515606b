// Package smtp implements a Provider that submits messages to the sender's own
// SMTP server over an authenticated STARTTLS session.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/http-email/internal/email"
	"github.com/shineum/http-email/internal/provider"
	"github.com/shineum/http-email/internal/sender"
)

// ProviderConfig holds the configuration for creating a Provider.
type ProviderConfig struct {
	// LocalName is sent with EHLO. Defaults to "localhost".
	LocalName string

	// DialTimeout bounds the TCP connect. Zero means no timeout.
	DialTimeout time.Duration

	// TLSConfig is cloned for every session; ServerName is set to the
	// sender's host. Nil uses the system roots.
	TLSConfig *tls.Config
}

// Provider opens one SMTP session per message. Sessions are never pooled.
type Provider struct {
	localName string
	tlsConfig *tls.Config
	dialer    *net.Dialer
}

// New creates a Provider with the given configuration.
func New(cfg ProviderConfig) *Provider {
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}
	return &Provider{
		localName: cfg.LocalName,
		tlsConfig: cfg.TLSConfig,
		dialer:    &net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send runs connect, EHLO and STARTTLS, EHLO, AUTH, MAIL/RCPT/DATA and QUIT
// in that order.
// The connection is closed on every path. Failures are returned as
// *provider.DeliveryError tagged with the stage that failed.
func (p *Provider) Send(ctx context.Context, from sender.Profile, msg *email.Email) error {
	raw, err := msg.Bytes()
	if err != nil {
		return fail(provider.StageSend, err)
	}

	addr := net.JoinHostPort(from.Host, strconv.Itoa(from.Port))
	log := slog.With("host", from.Host, "port", from.Port, "from", from.Email)

	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Error("smtp connect failed", "error", err)
		return fail(provider.StageConnect, err)
	}

	c, err := gosmtp.NewClientStartTLS(conn, p.clientTLSConfig(from.Host))
	if err != nil {
		conn.Close()
		log.Error("smtp STARTTLS failed", "error", err)
		return fail(provider.StageStartTLS, err)
	}
	defer c.Close()

	// Greet again over the encrypted channel. The handshake runs on this
	// first exchange, so a rejected certificate is reported as a STARTTLS
	// failure and not at the AUTH step.
	if err := c.Hello(p.localName); err != nil {
		log.Error("smtp STARTTLS failed", "error", err)
		return fail(provider.StageStartTLS, err)
	}

	if err := authenticate(c, from.Email, from.Password); err != nil {
		log.Error("smtp authentication failed", "error", err)
		return fail(provider.StageAuth, err)
	}

	if err := submit(c, from.Email, msg.To, raw); err != nil {
		log.Error("smtp submission failed", "error", err)
		return fail(provider.StageSend, err)
	}

	if err := c.Quit(); err != nil {
		// The server already accepted the message at this point.
		log.Warn("smtp QUIT failed after successful submission", "error", err)
	}

	log.Info("email delivered", "recipients", len(msg.To), "message_id", msg.MessageID)
	return nil
}

// clientTLSConfig returns the configuration for one session. A server
// without STARTTLS fails the session: credentials are never sent in
// plaintext.
func (p *Provider) clientTLSConfig(host string) *tls.Config {
	var cfg *tls.Config
	if p.tlsConfig != nil {
		cfg = p.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg.ServerName = host
	return cfg
}

// authenticate logs in with PLAIN, or LOGIN when that is the only supported
// mechanism.
func authenticate(c *gosmtp.Client, username, password string) error {
	ok, mechs := c.Extension("AUTH")
	if !ok {
		return errors.New("server does not advertise AUTH")
	}

	var client sasl.Client
	supported := strings.Fields(strings.ToUpper(mechs))
	switch {
	case slices.Contains(supported, sasl.Plain):
		client = sasl.NewPlainClient("", username, password)
	case slices.Contains(supported, sasl.Login):
		client = sasl.NewLoginClient(username, password)
	default:
		client = sasl.NewPlainClient("", username, password)
	}

	return c.Auth(client)
}

// submit runs one mail transaction.
func submit(c *gosmtp.Client, from string, to []string, raw []byte) error {
	if err := c.Mail(from, nil); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func fail(stage provider.Stage, err error) *provider.DeliveryError {
	return &provider.DeliveryError{Stage: stage, Err: err}
}
