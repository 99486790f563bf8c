// Package audit maintains the append-only trail of security-relevant events.
// Every authorization decision and every token operation lands here. Events
// are never updated or deleted once written.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fieldline.dev/internal/ids"
	"fieldline.dev/internal/obs"
)

// Actions recorded by the authentication side.
const (
	ActionLogin        = "login"
	ActionTokenRefresh = "token_refresh"
	ActionAuthFailure  = "auth_failure"
)

// ErrWriteFailed means an event could not be durably appended. In strict
// mode the operation that produced the event must be treated as incomplete.
var ErrWriteFailed = errors.New("audit: write failed")

// Event is one immutable audit record. Seq is assigned by the store and
// breaks timestamp ties in insertion order.
type Event struct {
	ID           string
	Seq          int64
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	SourceIP     string
	UserAgent    string
	OccurredAt   time.Time
}

// Filter narrows a Query. Zero values mean "any". From is inclusive, To
// exclusive.
type Filter struct {
	ActorIDs     []string
	Action       string
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	Limit        int
}

// Store is the durable backend. Append must be atomic per event; Query
// returns events ordered by timestamp ascending, ties by Seq.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

// Recorder wraps a Store with the failure policy and enrichment the callers
// rely on.
type Recorder struct {
	store  Store
	strict bool
	log    zerolog.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRelaxedMode makes append failures non-fatal: they are logged and the
// triggering operation proceeds. The default is strict.
func WithRelaxedMode() Option {
	return func(r *Recorder) { r.strict = false }
}

// WithLogger overrides the logger used for relaxed-mode failures.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder builds a strict-mode Recorder over store.
func NewRecorder(store Store, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	r := &Recorder{
		store:  store,
		strict: true,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends one event. The event's ID and timestamp are filled in when
// absent. In strict mode a backend failure is returned as ErrWriteFailed;
// in relaxed mode it is logged and swallowed.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("%w: action is required", ErrWriteFailed)
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	if info, ok := ClientInfoFromContext(ctx); ok {
		if event.SourceIP == "" {
			event.SourceIP = info.SourceIP
		}
		if event.UserAgent == "" {
			event.UserAgent = info.UserAgent
		}
	}
	if err := r.store.Append(ctx, &event); err != nil {
		obs.ObserveAuditWrite(false)
		if r.strict {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		r.log.Warn().Err(err).
			Str("action", event.Action).
			Str("actor_id", event.ActorID).
			Msg("audit append failed, continuing in relaxed mode")
		return nil
	}
	obs.ObserveAuditWrite(true)
	return nil
}

// Query returns matching events ordered by timestamp ascending, ties broken
// by insertion sequence. The result is a plain slice; callers may re-iterate
// freely.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return r.store.Query(ctx, filter)
}
