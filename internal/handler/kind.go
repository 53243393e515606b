package handler

import (
	"errors"

	"github.com/shineum/http-email/internal/credential"
	"github.com/shineum/http-email/internal/directory"
	"github.com/shineum/http-email/internal/provider"
	"github.com/shineum/http-email/internal/request"
)

// Kind classifies the error of a failed invocation.
type Kind string

const (
	KindNone         Kind = "sent"
	KindMissingField Kind = "missing_field"
	KindNotFound     Kind = "not_found"
	KindAmbiguous    Kind = "ambiguous"
	KindCredential   Kind = "credential_unavailable"
	KindDelivery     Kind = "delivery_failed"
	KindDirectory    Kind = "directory_unavailable"
	KindInternal     Kind = "internal"
)

// Classify maps an invocation error to its Kind.
func Classify(err error) Kind {
	var (
		missing *request.MissingFieldError
		dirErr  *DirectoryError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &missing):
		return KindMissingField
	case errors.As(err, &dirErr):
		return KindDirectory
	case errors.Is(err, directory.ErrNotFound):
		return KindNotFound
	case errors.Is(err, directory.ErrAmbiguous):
		return KindAmbiguous
	case errors.Is(err, credential.ErrUnavailable):
		return KindCredential
	case errors.Is(err, provider.ErrDelivery):
		return KindDelivery
	default:
		return KindInternal
	}
}

// Internal reports whether the failure needs operator attention rather than
// a corrected request.
func (k Kind) Internal() bool {
	switch k {
	case KindAmbiguous, KindDirectory, KindInternal:
		return true
	}
	return false
}
