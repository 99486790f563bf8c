package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fieldline.dev/internal/audit"
	"fieldline.dev/internal/authz"
	"fieldline.dev/internal/config"
)

const testKey = "0123456789abcdef0123456789abcdef"

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T, opts ...Option) (*Service, *clock, *audit.MemoryStore) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := audit.NewMemoryStore()
	rec, err := audit.NewRecorder(store, audit.WithClock(c.now))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	opts = append([]Option{
		WithTTL(30 * time.Minute),
		WithRefreshGrace(10 * time.Minute),
		WithClock(c.now),
	}, opts...)
	svc, err := NewService(testKey, rec, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, c, store
}

func TestNewServiceRequiresSigningKey(t *testing.T) {
	rec, err := audit.NewRecorder(audit.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if _, err := NewService("  ", rec); !errors.Is(err, config.ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	rep := authz.Principal{ID: "rep1", Role: authz.RoleSalesRep}

	raw, expiresAt, err := svc.Issue(ctx, rep)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.After(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expiry not in the future: %v", expiresAt)
	}

	got, err := svc.Verify(ctx, raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != rep.ID || got.Role != rep.Role {
		t.Fatalf("principal changed through the round trip: %+v", got)
	}

	events, err := store.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionLogin {
		t.Fatalf("expected exactly one login event, got %+v", events)
	}
	if events[0].ActorID != "rep1" {
		t.Fatalf("unexpected actor: %s", events[0].ActorID)
	}
}

func TestIssueRejectsInvalidPrincipal(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.Issue(context.Background(), authz.Principal{ID: "x", Role: "intern"}); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerifyExpiredIsExpiredNotInvalid(t *testing.T) {
	svc, c, store := newTestService(t)
	ctx := context.Background()

	raw, _, err := svc.Issue(ctx, authz.Principal{ID: "rep1", Role: authz.RoleSalesRep})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.advance(31 * time.Minute)

	_, err = svc.Verify(ctx, raw)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrInvalid) {
		t.Fatal("expired token must not be reported as invalid")
	}

	events, _ := store.Query(ctx, audit.Filter{Action: audit.ActionAuthFailure})
	if len(events) != 1 {
		t.Fatalf("expected one auth_failure event, got %d", len(events))
	}
	if events[0].Details["reason"] != "expired" {
		t.Fatalf("unexpected reason: %v", events[0].Details["reason"])
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	raw, _, err := svc.Issue(ctx, authz.Principal{ID: "rep1", Role: authz.RoleSalesRep})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(raw, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := svc.Verify(ctx, tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := svc.Verify(ctx, "not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := svc.Verify(ctx, ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	events, _ := store.Query(ctx, audit.Filter{Action: audit.ActionAuthFailure})
	if len(events) != 3 {
		t.Fatalf("expected three auth_failure events, got %d", len(events))
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	other, _, _ := newTestService(t)
	other.key = []byte("another-signing-key-entirely!!!!")

	raw, _, err := other.Issue(context.Background(), authz.Principal{ID: "rep1", Role: authz.RoleSalesRep})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(context.Background(), raw); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestRefreshWithinGrace(t *testing.T) {
	svc, c, store := newTestService(t)
	ctx := context.Background()

	raw, firstExpiry, err := svc.Issue(ctx, authz.Principal{ID: "mgr1", Role: authz.RoleManager})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Past expiry but inside the grace window.
	c.advance(35 * time.Minute)
	refreshed, newExpiry, err := svc.Refresh(ctx, raw)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !newExpiry.After(firstExpiry) {
		t.Fatalf("refreshed expiry %v not after original %v", newExpiry, firstExpiry)
	}

	p, err := svc.Verify(ctx, refreshed)
	if err != nil {
		t.Fatalf("Verify refreshed: %v", err)
	}
	if p.ID != "mgr1" || p.Role != authz.RoleManager {
		t.Fatalf("refresh changed the principal: %+v", p)
	}

	events, _ := store.Query(ctx, audit.Filter{Action: audit.ActionTokenRefresh})
	if len(events) != 1 {
		t.Fatalf("expected one token_refresh event, got %d", len(events))
	}
}

func TestRefreshPastGraceForcesRelogin(t *testing.T) {
	svc, c, _ := newTestService(t)
	ctx := context.Background()

	raw, _, err := svc.Issue(ctx, authz.Principal{ID: "rep1", Role: authz.RoleSalesRep})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.advance(41 * time.Minute) // ttl 30m + grace 10m, and then some

	if _, _, err := svc.Refresh(ctx, raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

type staticDirectory map[string]authz.Principal

func (d staticDirectory) FindPrincipal(ctx context.Context, id string) (authz.Principal, error) {
	p, ok := d[id]
	if !ok {
		return authz.Principal{}, authz.ErrPrincipalNotFound
	}
	return p, nil
}

func (d staticDirectory) TeamMemberIDs(ctx context.Context, managerID string) ([]string, error) {
	return nil, nil
}

func TestVerifyConsultsDirectory(t *testing.T) {
	dir := staticDirectory{
		"rep1": {ID: "rep1", Role: authz.RoleSalesRep, ManagerID: "mgr1"},
	}
	svc, _, _ := newTestService(t, WithDirectory(dir))
	ctx := context.Background()

	raw, _, err := svc.Issue(ctx, authz.Principal{ID: "rep1", Role: authz.RoleSalesRep})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := svc.Verify(ctx, raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.ManagerID != "mgr1" {
		t.Fatalf("directory linkage not resolved: %+v", p)
	}

	// Disable the user; the outstanding token stops working.
	dir["rep1"] = authz.Principal{ID: "rep1", Role: authz.RoleSalesRep, Disabled: true}
	if _, err := svc.Verify(ctx, raw); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for disabled principal, got %v", err)
	}

	// Deleted user, same outcome.
	delete(dir, "rep1")
	if _, err := svc.Verify(ctx, raw); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown principal, got %v", err)
	}
}

func TestStrictAuditFailureBlocksIssue(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	rec, err := audit.NewRecorder(failingStore{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	svc, err := NewService(testKey, rec, WithClock(c.now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	_, _, err = svc.Issue(context.Background(), authz.Principal{ID: "rep1", Role: authz.RoleSalesRep})
	if !errors.Is(err, audit.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, event *audit.Event) error {
	return errors.New("backend down")
}

func (failingStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	return nil, errors.New("backend down")
}
