// Package smtptest runs a local SMTP relay for tests. It speaks EHLO,
// STARTTLS, AUTH PLAIN/LOGIN and the mail transaction commands, and records
// every command and every accepted message.
package smtptest

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/shineum/http-email/internal/email"
	tlsutil "github.com/shineum/http-email/internal/tls"
)

// Config controls what the relay advertises and accepts.
type Config struct {
	// Hostname is used in the greeting and EHLO responses.
	Hostname string

	// Username and Password configure SMTP AUTH. When both are empty AUTH is
	// not advertised and MAIL is accepted without it.
	Username string
	Password string

	// Mechanisms are the advertised AUTH mechanisms. Defaults to PLAIN and LOGIN.
	Mechanisms []string

	// DisableTLS stops the relay from advertising STARTTLS.
	DisableTLS bool
}

// Message is a mail transaction accepted by the relay.
type Message struct {
	// AuthUser is the account that authenticated the session.
	AuthUser string
	From     string
	To       []string
	Raw      []byte

	// Email is Raw decoded. Nil when the payload could not be parsed.
	Email *email.Email
}

// Server is a running relay bound to a loopback port.
type Server struct {
	config    Config
	auth      *authenticator
	listener  net.Listener
	tlsConfig *tls.Config
	roots     *x509.CertPool

	mu       sync.Mutex
	commands []string
	messages []Message

	// wg tracks session goroutines so Close can wait for them.
	wg sync.WaitGroup
}

// Start listens on 127.0.0.1 with an ephemeral port and serves sessions in
// the background until Close is called.
func Start(cfg Config) (*Server, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if len(cfg.Mechanisms) == 0 {
		cfg.Mechanisms = []string{"PLAIN", "LOGIN"}
	}

	s := &Server{
		config: cfg,
		auth:   newAuthenticator(cfg.Username, cfg.Password),
	}

	if !cfg.DisableTLS {
		tlsConfig, cert, err := tlsutil.ServerConfig("", "")
		if err != nil {
			return nil, err
		}
		roots, err := tlsutil.CertPool(cert)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
		s.roots = roots
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.serve()

	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// The listener was closed.
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(conn, s).handle()
		}()
	}
}

// Close stops accepting connections and waits for open sessions to end.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Addr returns the host:port the relay listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listening IP address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// ClientTLSConfig returns a client configuration that trusts the relay's
// self-signed certificate.
func (s *Server) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    s.roots,
		MinVersion: tls.VersionTLS12,
	}
}

// Commands returns the verbs received so far, in order, across all sessions.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Messages returns the accepted messages, in order.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Server) record(cmd string) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

func (s *Server) deliver(msg Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	slog.Debug("relay accepted message", "from", msg.From, "recipients", len(msg.To))
}
