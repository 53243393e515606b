// Package parser reads RFC 5322 messages back into the email model. It
// understands the single-part and multipart shapes that the composer emits.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"slices"
	"strings"

	"github.com/shineum/http-email/internal/email"
)

var headerDecoder = new(mime.WordDecoder)

// Parse parses a raw message. The body is taken from the first text/* part;
// other parts are skipped with a warning.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Email{
		From:      msg.Header.Get("From"),
		To:        parseAddressList(msg.Header.Get("To")),
		MessageID: msg.Header.Get("Message-Id"),
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := headerDecoder.DecodeHeader(subject); err == nil {
		subject = decoded
	}
	result.Subject = subject

	if date, err := msg.Header.Date(); err == nil {
		result.Date = date
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content type %q: %w", contentType, err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return nil, err
		}
		result.Body = string(body)
		result.MimeType = subtype(mediaType)
		return result, nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("multipart message missing boundary")
	}
	if err := parseMultipart(msg.Body, boundary, result); err != nil {
		return nil, fmt.Errorf("failed to parse multipart message: %w", err)
	}

	return result, nil
}

// parseMultipart stores the first text part of body in result.
func parseMultipart(body io.Reader, boundary string, result *email.Email) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, _, err := mime.ParseMediaType(partContentType)
		if err != nil || !strings.HasPrefix(mediaType, "text/") || result.MimeType != "" {
			slog.Warn("skipping MIME part", "content_type", partContentType)
			continue
		}

		// The multipart reader already removed quoted-printable encoding and
		// the matching header, so only base64 is left to handle here.
		content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return err
		}

		result.Body = string(content)
		result.MimeType = subtype(mediaType)
	}
}

// decodeBody reads r and removes a base64 transfer encoding.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if strings.ToLower(strings.TrimSpace(encoding)) != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return decoded, nil
}

// subtype returns "html" for "text/html".
func subtype(mediaType string) string {
	if _, sub, ok := strings.Cut(mediaType, "/"); ok {
		return sub
	}
	return mediaType
}

// parseAddressList splits a comma-separated address list into individual
// addresses. A list with a blank entry, such as "x@y.com,", is returned as
// split so the empty recipient stays visible.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if slices.Contains(parts, "") {
		return parts
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to a plain split so malformed entries stay visible
		return parts
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
