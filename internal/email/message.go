// Package email defines the message model and renders it as a MIME payload.
package email

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/http-email/internal/request"
)

// Email is a message ready to be rendered and submitted.
type Email struct {
	From      string
	To        []string
	Subject   string
	Body      string
	MimeType  string
	Date      time.Time
	MessageID string
}

// New composes the message for req sent from the address from. now is the
// Date of the message and is kept in local time.
func New(from string, req request.DeliveryRequest, now time.Time) *Email {
	return &Email{
		From:      from,
		To:        append([]string(nil), req.Recipients...),
		Subject:   req.Subject,
		Body:      req.Body,
		MimeType:  req.MimeType,
		Date:      now.Local(),
		MessageID: newMessageID(from),
	}
}

// newMessageID returns a globally unique Message-ID in the sender's domain.
func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.Trim(from[at+1:], "<> ")
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
