// Package token issues and verifies the signed session assertions that
// carry a principal's identity and role between requests.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fieldline.dev/internal/audit"
	"fieldline.dev/internal/authz"
	"fieldline.dev/internal/config"
	"fieldline.dev/internal/obs"
)

const (
	defaultTTL   = 30 * time.Minute
	defaultGrace = 10 * time.Minute
)

var (
	// ErrInvalid means the token failed signature or structural checks.
	ErrInvalid = errors.New("token: invalid")

	// ErrExpired means the token was otherwise valid but past its expiry
	// (for Refresh: past the grace window too). Callers map the two
	// errors to different boundary behavior, so they stay distinct.
	ErrExpired = errors.New("token: expired")
)

// Claims is the JWT payload. Role travels in the token; team linkage does
// not and is re-resolved through the directory on every request.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies session tokens. Stateless apart from the
// injected collaborators; safe for concurrent use.
type Service struct {
	key       []byte
	issuer    string
	ttl       time.Duration
	grace     time.Duration
	recorder  *audit.Recorder
	directory authz.Directory
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRefreshGrace sets how long past expiry a token may still be refreshed.
func WithRefreshGrace(grace time.Duration) Option {
	return func(s *Service) {
		if grace >= 0 {
			s.grace = grace
		}
	}
}

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithDirectory makes Verify and Refresh reject tokens whose principal has
// been disabled since issuance, and fills in team linkage. Without it the
// principal is derived from the claims alone.
func WithDirectory(d authz.Directory) Option {
	return func(s *Service) { s.directory = d }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService builds a Service. A missing signing key is a configuration
// error surfaced at startup, never per request.
func NewService(signingKey string, recorder *audit.Recorder, opts ...Option) (*Service, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, config.ErrMissingSigningKey
	}
	if recorder == nil {
		return nil, errors.New("token: audit recorder is required")
	}
	s := &Service{
		key:      []byte(signingKey),
		issuer:   "fieldline",
		ttl:      defaultTTL,
		grace:    defaultGrace,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for p with a fresh expiry. Emits a login audit event;
// in strict audit mode a failed append fails the issuance.
func (s *Service) Issue(ctx context.Context, p authz.Principal) (string, time.Time, error) {
	if p.ID == "" || !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: principal %q with role %q", authz.ErrInvalidInput, p.ID, p.Role)
	}
	signed, expiresAt, err := s.sign(p.ID, p.Role)
	if err != nil {
		obs.ObserveTokenOp("issue", "error")
		return "", time.Time{}, err
	}
	obs.ObserveTokenOp("issue", "ok")
	if err := s.recorder.Record(ctx, audit.Event{
		ActorID:      p.ID,
		Action:       audit.ActionLogin,
		ResourceType: "user",
		ResourceID:   p.ID,
		Details:      map[string]any{"role": string(p.Role)},
	}); err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature integrity, then expiry, and returns the principal
// the token asserts. Expiry is reported as ErrExpired, every other failure
// as ErrInvalid. Failures emit an auth_failure audit event.
func (s *Service) Verify(ctx context.Context, raw string) (authz.Principal, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return authz.Principal{}, s.fail(ctx, "", "verify", err)
	}
	if s.now().After(claims.ExpiresAt.Time) {
		return authz.Principal{}, s.fail(ctx, claims.Subject, "verify", ErrExpired)
	}
	p, err := s.resolve(ctx, claims)
	if errors.Is(err, ErrInvalid) {
		return authz.Principal{}, s.fail(ctx, claims.Subject, "verify", ErrInvalid)
	}
	if err != nil {
		// Directory outage, not an authentication failure.
		return authz.Principal{}, err
	}
	obs.ObserveTokenOp("verify", "ok")
	return p, nil
}

// Refresh re-issues a structurally valid token whose expiry is still inside
// the grace window. Past the window it returns ErrExpired, forcing a fresh
// login.
func (s *Service) Refresh(ctx context.Context, raw string) (string, time.Time, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return "", time.Time{}, s.fail(ctx, "", "refresh", err)
	}
	if s.now().After(claims.ExpiresAt.Time.Add(s.grace)) {
		return "", time.Time{}, s.fail(ctx, claims.Subject, "refresh", ErrExpired)
	}
	p, err := s.resolve(ctx, claims)
	if errors.Is(err, ErrInvalid) {
		return "", time.Time{}, s.fail(ctx, claims.Subject, "refresh", ErrInvalid)
	}
	if err != nil {
		return "", time.Time{}, err
	}
	signed, expiresAt, err := s.sign(p.ID, p.Role)
	if err != nil {
		obs.ObserveTokenOp("refresh", "error")
		return "", time.Time{}, err
	}
	obs.ObserveTokenOp("refresh", "ok")
	if err := s.recorder.Record(ctx, audit.Event{
		ActorID:      p.ID,
		Action:       audit.ActionTokenRefresh,
		ResourceType: "user",
		ResourceID:   p.ID,
		Details:      map[string]any{"role": string(p.Role)},
	}); err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) sign(subject string, role authz.Role) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// parse checks the signature and structure but deliberately not the expiry;
// Verify and Refresh apply their own expiry rules.
func (s *Service) parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return s.key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalid
	}
	if claims.Issuer != s.issuer {
		return nil, ErrInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalid
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalid
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return nil, ErrInvalid
	}
	if !authz.Role(claims.Role).Valid() {
		return nil, ErrInvalid
	}
	return claims, nil
}

// resolve turns verified claims into a principal. With a directory attached
// the principal is looked up fresh, so a disabled user's outstanding tokens
// stop working before natural expiry.
func (s *Service) resolve(ctx context.Context, claims *Claims) (authz.Principal, error) {
	p := authz.Principal{ID: claims.Subject, Role: authz.Role(claims.Role)}
	if s.directory == nil {
		return p, nil
	}
	current, err := s.directory.FindPrincipal(ctx, claims.Subject)
	if errors.Is(err, authz.ErrPrincipalNotFound) {
		return authz.Principal{}, ErrInvalid
	}
	if err != nil {
		return authz.Principal{}, fmt.Errorf("token: resolve principal: %w", err)
	}
	if current.Disabled {
		return authz.Principal{}, ErrInvalid
	}
	return current, nil
}

// fail audits an authentication failure and passes the error through. The
// audit append error wins in strict mode: an unrecorded failure must not
// look like a clean one.
func (s *Service) fail(ctx context.Context, subject, op string, cause error) error {
	obs.ObserveTokenOp(op, failLabel(cause))
	details := map[string]any{"operation": op, "reason": failLabel(cause)}
	if err := s.recorder.Record(ctx, audit.Event{
		ActorID:      subject,
		Action:       audit.ActionAuthFailure,
		ResourceType: "user",
		ResourceID:   subject,
		Details:      details,
	}); err != nil {
		return err
	}
	return cause
}

func failLabel(err error) string {
	if errors.Is(err, ErrExpired) {
		return "expired"
	}
	return "invalid"
}
