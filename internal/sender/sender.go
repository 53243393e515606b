// Package sender combines the directory and the credential store into a fully
// materialized sender profile.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/http-email/internal/credential"
	"github.com/shineum/http-email/internal/directory"
)

// Profile is a directory record with its credential resolved. It lives for a
// single delivery and must never be logged or persisted.
type Profile struct {
	User     string
	Email    string
	Host     string
	Port     int
	Password string
}

// String redacts the password.
func (p Profile) String() string {
	return fmt.Sprintf("%s <%s> via %s:%d", p.User, p.Email, p.Host, p.Port)
}

// GoString redacts the password from %#v output.
func (p Profile) GoString() string {
	password := ""
	if p.Password != "" {
		password = "REDACTED"
	}
	return fmt.Sprintf("sender.Profile{User:%q, Email:%q, Host:%q, Port:%d, Password:%q}",
		p.User, p.Email, p.Host, p.Port, password)
}

// LogValue implements slog.LogValuer and leaves the password out.
func (p Profile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", p.User),
		slog.String("email", p.Email),
		slog.String("host", p.Host),
		slog.Int("port", p.Port),
	)
}

// Lookuper finds the record of a sender. *directory.Store satisfies it.
type Lookuper interface {
	Lookup(user string) (directory.Record, error)
}

// Resolver turns a user name into a Profile.
type Resolver struct {
	directory   Lookuper
	credentials credential.Resolver
}

// NewResolver creates a Resolver over a directory snapshot and a credential store.
func NewResolver(dir Lookuper, creds credential.Resolver) *Resolver {
	return &Resolver{
		directory:   dir,
		credentials: creds,
	}
}

// ResolveSender looks up user and fetches its credential. Errors from the
// directory and the credential store are returned unchanged and never retried.
func (r *Resolver) ResolveSender(ctx context.Context, user string) (Profile, error) {
	rec, err := r.directory.Lookup(user)
	if err != nil {
		return Profile{}, err
	}

	password, err := r.credentials.Resolve(ctx, rec.CredentialRef)
	if err != nil {
		slog.Warn("failed to resolve sender credential",
			"user", user,
			"credential_ref", rec.CredentialRef,
		)
		return Profile{}, err
	}

	profile := Profile{
		User:     rec.User,
		Email:    rec.Email,
		Host:     rec.Host,
		Port:     int(rec.Port),
		Password: password,
	}
	slog.Info("sender resolved", "sender", profile)

	return profile, nil
}
