package smtptest

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/shineum/http-email/internal/parser"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout bounds how long a session waits for the next command.
const idleTimeout = 30 * time.Second

// maxMessageSize is advertised with the SIZE extension.
const maxMessageSize = 10 * 1024 * 1024

// session is one client connection.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	state  int
	server *Server

	tlsActive bool
	authUser  string

	// Current transaction
	mailFrom string
	rcptTo   []string
}

func newSession(conn net.Conn, server *Server) *session {
	return &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		state:  stateConnected,
		server: server,
	}
}

// handle processes commands until the client quits or disconnects.
func (s *session) handle() {
	defer func() { s.conn.Close() }()

	s.writeLine("220 %s ESMTP smtptest", s.server.config.Hostname)

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				slog.Debug("relay read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		s.server.record(cmd)
		if done := s.handleCommand(cmd, arg); done {
			return
		}
	}
}

// handleCommand processes a single command and returns true if the session should end.
func (s *session) handleCommand(cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		return s.handleSTARTTLS()
	case "AUTH":
		s.handleAUTH(arg)
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		s.handleDATA()
	case "RSET":
		s.resetTransaction()
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

func (s *session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.state = stateGreeted
	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", s.server.config.Hostname, arg)
		return
	}

	s.writeLine("250-%s Hello %s", s.server.config.Hostname, arg)
	if s.server.tlsConfig != nil && !s.tlsActive {
		s.writeLine("250-STARTTLS")
	}
	if s.server.auth.enabled() {
		s.writeLine("250-AUTH %s", strings.Join(s.server.config.Mechanisms, " "))
	}
	s.writeLine("250-SIZE %d", maxMessageSize)
	s.writeLine("250 OK")
}

// handleSTARTTLS upgrades the connection and resets the session to the
// pre-greeting state. A failed handshake ends the session.
func (s *session) handleSTARTTLS() bool {
	if s.server.tlsConfig == nil {
		s.writeLine("454 TLS not available")
		return false
	}
	if s.tlsActive {
		s.writeLine("454 TLS already active")
		return false
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.server.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Debug("relay TLS handshake failed", "error", err)
		return true
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.state = stateConnected
	s.authUser = ""
	return false
}

func (s *session) handleAUTH(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !s.server.auth.enabled() {
		s.writeLine("503 AUTH not available")
		return
	}

	parts := strings.SplitN(arg, " ", 2)
	mechanism := strings.ToUpper(parts[0])
	if !slices.Contains(s.server.config.Mechanisms, mechanism) {
		s.writeLine("504 Unrecognized authentication type")
		return
	}

	var initial string
	if len(parts) > 1 {
		initial = parts[1]
	}

	switch mechanism {
	case "PLAIN":
		s.handleAuthPlain(initial)
	case "LOGIN":
		s.handleAuthLogin(initial)
	default:
		s.writeLine("504 Unrecognized authentication type")
	}
}

func (s *session) handleAuthPlain(encoded string) {
	if encoded == "" {
		s.writeLine("334")
		line, ok := s.readAnswer()
		if !ok {
			return
		}
		encoded = line
	}

	user, err := s.server.auth.verifyPlain(encoded)
	if err != nil {
		s.writeLine("535 Authentication failed")
		return
	}

	s.authOK(user)
}

// handleAuthLogin accepts the username either as an initial response or after
// the Username: challenge.
func (s *session) handleAuthLogin(encodedUser string) {
	if encodedUser == "" {
		s.writeLine("334 VXNlcm5hbWU6")
		line, ok := s.readAnswer()
		if !ok {
			return
		}
		encodedUser = line
	}

	s.writeLine("334 UGFzc3dvcmQ6")
	encodedPass, ok := s.readAnswer()
	if !ok {
		return
	}

	user, err := s.server.auth.verifyLogin(encodedUser, encodedPass)
	if err != nil {
		s.writeLine("535 Authentication failed")
		return
	}

	s.authOK(user)
}

// readAnswer reads one SASL response line. A "*" cancels the exchange.
func (s *session) readAnswer() (string, bool) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		slog.Debug("relay failed to read AUTH response", "error", err)
		return "", false
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "*" {
		s.writeLine("501 Authentication cancelled")
		return "", false
	}
	return line, true
}

func (s *session) authOK(user string) {
	s.authUser = user
	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

func (s *session) handleMAIL(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if s.server.auth.enabled() && s.state < stateAuthOK {
		s.writeLine("530 Authentication required")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	addr := extractAddress(arg[5:])
	if addr == "" {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

// handleRCPT rejects the null address <>, which is only valid as a sender.
func (s *session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	addr := extractAddress(arg[3:])
	if addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

func (s *session) handleDATA() {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			slog.Debug("relay failed to read DATA", "error", err)
			return
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}

		// Dot-stuffing: lines starting with ".." have the leading dot removed
		if strings.HasPrefix(trimmed, "..") {
			line = line[1:]
		}

		data.WriteString(line)
	}

	raw := []byte(data.String())
	msg := Message{
		AuthUser: s.authUser,
		From:     s.mailFrom,
		To:       append([]string(nil), s.rcptTo...),
		Raw:      raw,
	}
	if parsed, err := parser.Parse(raw); err == nil {
		msg.Email = parsed
	} else {
		slog.Debug("relay could not parse message", "error", err)
	}

	s.server.deliver(msg)
	s.writeLine("250 OK message queued")
	s.resetTransaction()
}

// resetTransaction clears the mail transaction but keeps greeting and auth.
func (s *session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil

	if s.server.auth.enabled() && s.state >= stateAuthOK {
		s.state = stateAuthOK
	} else if s.state >= stateGreeted {
		s.state = stateGreeted
	}
}

// writeLine writes a formatted line to the client, followed by \r\n.
func (s *session) writeLine(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if _, err := s.writer.WriteString(line + "\r\n"); err != nil {
		return
	}
	_ = s.writer.Flush()
}

// parseCommand splits an SMTP command line into the verb and its argument.
func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

// extractAddress returns the address of an SMTP path, with or without angle
// brackets. Trailing ESMTP parameters are dropped.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}

	if addr, _, ok := strings.Cut(s, " "); ok {
		return addr
	}
	return s
}
