package email

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// DateFormat is the RFC 2822 date layout used in the Date header.
const DateFormat = time.RFC1123Z

// ContentType returns the media type of the body part, text/<MimeType> with
// a UTF-8 charset. Subtypes that are not valid tokens fall back to text/plain.
func (e *Email) ContentType() string {
	subtype := e.MimeType
	if subtype == "" {
		subtype = "plain"
	}
	ct := mime.FormatMediaType("text/"+subtype, map[string]string{"charset": "utf-8"})
	if ct == "" {
		return mime.FormatMediaType("text/plain", map[string]string{"charset": "utf-8"})
	}
	return ct
}

// Bytes renders the message as multipart/mixed with a single quoted-printable
// text part.
func (e *Email) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", sanitizeHeader(e.From))
	fmt.Fprintf(&buf, "To: %s\r\n", sanitizeHeader(strings.Join(e.To, ",")))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", e.Date.Format(DateFormat))
	if e.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", sanitizeHeader(e.MessageID))
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", e.ContentType())
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(e.Body)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	return buf.Bytes(), nil
}

// sanitizeHeader folds CR and LF into spaces so a value cannot start a new header.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
