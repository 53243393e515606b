// Package credential resolves opaque credential references into secret values.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnavailable matches an *UnavailableError.
var ErrUnavailable = errors.New("credential: unavailable")

// Resolver turns a credential reference into its current secret value.
// Implementations must not cache secret values between calls.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// UnavailableError is returned when a secret does not exist, access is denied,
// or the credential service could not be reached.
type UnavailableError struct {
	Ref string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential %q unavailable", e.Ref)
	}
	return fmt.Sprintf("credential %q unavailable: %v", e.Ref, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// errEmptyRef is the cause reported for a blank reference.
var errEmptyRef = errors.New("empty credential reference")

// EnvResolver reads secrets from the process environment. The variable name
// is Prefix followed by the reference upper-cased, with every character
// outside [A-Z0-9_] replaced by '_'.
type EnvResolver struct {
	Prefix string

	// lookup defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// NewEnvResolver creates an EnvResolver reading variables with the given prefix.
func NewEnvResolver(prefix string) *EnvResolver {
	return &EnvResolver{Prefix: prefix, lookup: os.LookupEnv}
}

// Resolve implements Resolver.
func (r *EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", &UnavailableError{Ref: ref, Err: errEmptyRef}
	}

	lookup := r.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	name := r.VarName(ref)
	value, ok := lookup(name)
	if !ok || value == "" {
		return "", &UnavailableError{Ref: ref, Err: fmt.Errorf("environment variable %s is not set", name)}
	}
	return value, nil
}

// VarName returns the environment variable consulted for ref.
func (r *EnvResolver) VarName(ref string) string {
	normalized := strings.Map(func(c rune) rune {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			return c
		case c >= 'a' && c <= 'z':
			return c - 'a' + 'A'
		default:
			return '_'
		}
	}, ref)
	return r.Prefix + normalized
}
