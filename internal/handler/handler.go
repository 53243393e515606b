// Package handler runs one delivery invocation: parse the request, resolve
// the sender against a freshly loaded directory, then compose and send.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/http-email/internal/credential"
	"github.com/shineum/http-email/internal/directory"
	"github.com/shineum/http-email/internal/email"
	"github.com/shineum/http-email/internal/metrics"
	"github.com/shineum/http-email/internal/provider"
	"github.com/shineum/http-email/internal/request"
	"github.com/shineum/http-email/internal/sender"
)

// State is a step of an invocation.
type State string

const (
	StateReceived State = "RECEIVED"
	StateParsed   State = "PARSED"
	StateResolved State = "RESOLVED"
	StateSent     State = "SENT"
	StateFailed   State = "FAILED"
)

// Outcome describes how an invocation ended.
type Outcome struct {
	InvocationID string

	// State is StateSent or StateFailed.
	State State

	// Reached is the last state entered before the terminal one.
	Reached State

	// Kind classifies the failure. KindNone when sent.
	Kind Kind

	// MessageID of the composed message, once composed.
	MessageID string
}

// DirectoryError reports that the directory document could not be fetched or
// decoded. It is an operator problem, not a client one.
type DirectoryError struct {
	Source string
	Err    error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("sender directory %s unavailable: %v", e.Source, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Handler wires the collaborators of an invocation. It keeps no state between
// invocations: the directory is fetched and secrets are resolved every time.
type Handler struct {
	source      directory.Source
	credentials credential.Resolver
	provider    provider.Provider
	now         func() time.Time
}

// New creates a Handler.
func New(source directory.Source, creds credential.Resolver, prov provider.Provider) *Handler {
	return &Handler{
		source:      source,
		credentials: creds,
		provider:    prov,
		now:         time.Now,
	}
}

// Handle runs one invocation. The error is the collaborator's error,
// unchanged, except for directory failures which are wrapped in
// *DirectoryError. At most one delivery is attempted.
func (h *Handler) Handle(ctx context.Context, params request.Params) (Outcome, error) {
	out := Outcome{
		InvocationID: uuid.NewString(),
		State:        StateReceived,
	}
	log := slog.With("invocation_id", out.InvocationID)
	log.Info("invocation received", "provider", h.provider.Name())

	fail := func(err error) (Outcome, error) {
		out.Reached = out.State
		out.State = StateFailed
		out.Kind = Classify(err)
		metrics.RecordOutcome(string(out.Kind))

		level := slog.LevelWarn
		if out.Kind.Internal() {
			level = slog.LevelError
		}
		log.Log(ctx, level, "invocation failed",
			"reached", out.Reached,
			"kind", out.Kind,
			"error", err,
		)
		return out, err
	}

	start := time.Now()
	req, err := request.Parse(params)
	metrics.ObserveStage("parse", start)
	if err != nil {
		return fail(err)
	}
	out.State = StateParsed

	start = time.Now()
	profile, err := h.resolve(ctx, req.User)
	metrics.ObserveStage("resolve", start)
	if err != nil {
		return fail(err)
	}
	out.State = StateResolved

	msg := email.New(profile.Email, req, h.now())
	out.MessageID = msg.MessageID

	start = time.Now()
	err = h.provider.Send(ctx, profile, msg)
	metrics.ObserveStage("send", start)
	if err != nil {
		return fail(err)
	}

	out.Reached = StateResolved
	out.State = StateSent
	out.Kind = KindNone
	metrics.RecordOutcome(string(KindNone))
	log.Info("invocation completed",
		"sender", profile,
		"recipients", len(msg.To),
		"message_id", msg.MessageID,
	)
	return out, nil
}

// Resolve loads the directory and resolves user without sending anything.
func (h *Handler) Resolve(ctx context.Context, user string) (sender.Profile, error) {
	return h.resolve(ctx, user)
}

func (h *Handler) resolve(ctx context.Context, user string) (sender.Profile, error) {
	store, err := directory.Load(ctx, h.source)
	if err != nil {
		return sender.Profile{}, &DirectoryError{Source: h.source.Name(), Err: err}
	}
	return sender.NewResolver(store, h.credentials).ResolveSender(ctx, user)
}
