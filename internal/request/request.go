// Package request turns the raw parameters of an inbound call into a validated
// DeliveryRequest.
package request

import (
	"fmt"
	"log/slog"
	"strings"
)

// Parameter names accepted from the caller.
const (
	ParamUser       = "user"
	ParamSubject    = "subject"
	ParamRecipients = "recipients"
	ParamBody       = "body"
	ParamMimeType   = "mimetype"
)

// DefaultMimeType is the text subtype used when the caller does not send one.
const DefaultMimeType = "plain"

// ParamNames lists every parameter the parser reads, in extraction order.
var ParamNames = []string{ParamUser, ParamSubject, ParamRecipients, ParamBody, ParamMimeType}

// Presence describes how a parameter arrived.
type Presence int

const (
	Absent Presence = iota
	Empty
	Present
)

// Value is the three-state result of reading one parameter.
type Value struct {
	Presence Presence
	Text     string
}

// OK collapses the three states: an empty string counts as absent.
func (v Value) OK() bool {
	return v.Presence == Present
}

// Params is the untyped key to string mapping extracted from a request.
// A missing key is absent; a key mapped to "" is empty.
type Params map[string]string

// Get reads a parameter as a three-state Value.
func (p Params) Get(key string) Value {
	text, ok := p[key]
	switch {
	case !ok:
		return Value{Presence: Absent}
	case text == "":
		return Value{Presence: Empty}
	default:
		return Value{Presence: Present, Text: text}
	}
}

// LogValue renders the extracted parameters for diagnostics.
func (p Params) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(ParamNames))
	for _, name := range ParamNames {
		v := p.Get(name)
		if v.OK() {
			attrs = append(attrs, slog.String(name, v.Text))
		} else {
			attrs = append(attrs, slog.Any(name, nil))
		}
	}
	return slog.GroupValue(attrs...)
}

// DeliveryRequest is the normalized form of an inbound ask. Parse only returns
// fully valid instances.
type DeliveryRequest struct {
	User       string
	Recipients []string
	Subject    string
	Body       string
	MimeType   string
}

// MissingFieldError reports a required parameter that was absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q is missing", e.Field)
}

// Parse validates params and fills in defaults. Recipients are split on ","
// literally: entries are not trimmed and empty entries are kept.
func Parse(params Params) (DeliveryRequest, error) {
	slog.Info("incoming parameters", "params", params)

	recipients := params.Get(ParamRecipients)
	if !recipients.OK() {
		slog.Info("rejecting request, no recipients received")
		return DeliveryRequest{}, &MissingFieldError{Field: ParamRecipients}
	}

	user := params.Get(ParamUser)
	if !user.OK() {
		slog.Info("rejecting request, no sender user specified")
		return DeliveryRequest{}, &MissingFieldError{Field: ParamUser}
	}

	req := DeliveryRequest{
		User:       user.Text,
		Recipients: strings.Split(recipients.Text, ","),
		Subject:    params.Get(ParamSubject).Text,
		Body:       params.Get(ParamBody).Text,
		MimeType:   DefaultMimeType,
	}
	if v := params.Get(ParamMimeType); v.OK() {
		req.MimeType = v.Text
	}

	return req, nil
}
