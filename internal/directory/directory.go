// Package directory holds the sender records that map a logical user name to
// an SMTP account and the reference of its credential.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	// ErrNotFound matches a *NotFoundError.
	ErrNotFound = errors.New("directory: sender not found")

	// ErrAmbiguous matches an *AmbiguousError.
	ErrAmbiguous = errors.New("directory: ambiguous sender")
)

// Record is one entry of the directory document.
type Record struct {
	User          string `json:"user" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Host          string `json:"host" validate:"required"`
	Port          Port   `json:"port" validate:"required,gte=1,lte=65535"`
	CredentialRef string `json:"keyvault_secret" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their names in the document.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// InvalidRecordError is returned when an entry of the document lacks a field
// or holds an unusable value. The whole document is rejected.
type InvalidRecordError struct {
	Index  int
	User   string
	Fields []string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("directory record %d (user %q) is invalid: %s", e.Index, e.User, strings.Join(e.Fields, ", "))
}

// validateRecord checks one decoded entry.
func validateRecord(i int, r Record) error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate directory record %d: %w", i, err)
	}
	fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	})
	return &InvalidRecordError{Index: i, User: r.User, Fields: fields}
}

// Port is an SMTP port. The document is edited by hand, so both 587 and "587"
// are accepted.
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port must be a number or numeric string, got %s", data)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port must be a number or numeric string, got %q", s)
	}
	*p = Port(n)
	return nil
}

// NotFoundError is returned when no record matches the requested user.
type NotFoundError struct {
	User string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sender %q not found in directory", e.User)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AmbiguousError is returned when several records share the requested user.
// It points at a defect in the directory document, not in the request.
type AmbiguousError struct {
	User  string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("sender %q is defined %d times in directory", e.User, e.Count)
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// Store is a read-only snapshot of the directory.
type Store struct {
	records []Record
}

// NewStore wraps records in a Store. The slice is copied.
func NewStore(records []Record) *Store {
	return &Store{records: append([]Record(nil), records...)}
}

// Parse decodes a directory document, a JSON array of records. Every record
// must carry all of its fields.
func Parse(data []byte) (*Store, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode directory document: %w", err)
	}
	for i, r := range records {
		if err := validateRecord(i, r); err != nil {
			return nil, err
		}
	}
	return &Store{records: records}, nil
}

// Load fetches the document from src and parses it.
func Load(ctx context.Context, src Source) (*Store, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch directory from %s: %w", src.Name(), err)
	}

	store, err := Parse(data)
	if err != nil {
		return nil, err
	}

	slog.Debug("directory loaded", "source", src.Name(), "records", store.Len())
	return store, nil
}

// Len returns the number of records in the snapshot.
func (s *Store) Len() int {
	return len(s.records)
}

// Lookup returns the single record whose user equals user exactly.
// Uniqueness is re-checked on every call: duplicates fail with
// *AmbiguousError instead of resolving to the first match.
func (s *Store) Lookup(user string) (Record, error) {
	matches := lo.Filter(s.records, func(r Record, _ int) bool {
		return r.User == user
	})

	switch len(matches) {
	case 0:
		slog.Info("sender user not found in directory", "user", user)
		return Record{}, &NotFoundError{User: user}
	case 1:
		return matches[0], nil
	default:
		slog.Error("sender user defined more than once in directory, fix the document",
			"user", user,
			"count", len(matches),
		)
		return Record{}, &AmbiguousError{User: user, Count: len(matches)}
	}
}
