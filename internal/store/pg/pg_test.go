package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"fieldline.dev/internal/audit"
	"fieldline.dev/internal/authz"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestFindPrincipal(t *testing.T) {
	db, mock := newMock(t)
	dir := NewDirectory(db)

	mock.ExpectQuery("select id, role, coalesce").WithArgs("rep1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "manager_id", "disabled"}).
			AddRow("rep1", "sales_rep", "mgr1", false))

	p, err := dir.FindPrincipal(context.Background(), "rep1")
	if err != nil {
		t.Fatalf("FindPrincipal: %v", err)
	}
	if p.ID != "rep1" || p.Role != authz.RoleSalesRep || p.ManagerID != "mgr1" || p.Disabled {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindPrincipalNotFound(t *testing.T) {
	db, mock := newMock(t)
	dir := NewDirectory(db)

	mock.ExpectQuery("select id, role, coalesce").WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	if _, err := dir.FindPrincipal(context.Background(), "nobody"); !errors.Is(err, authz.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestFindPrincipalBadRole(t *testing.T) {
	db, mock := newMock(t)
	dir := NewDirectory(db)

	mock.ExpectQuery("select id, role, coalesce").WithArgs("odd").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "manager_id", "disabled"}).
			AddRow("odd", "superuser", "", false))

	if _, err := dir.FindPrincipal(context.Background(), "odd"); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
}

func TestTeamMemberIDs(t *testing.T) {
	db, mock := newMock(t)
	dir := NewDirectory(db)

	mock.ExpectQuery("select id from users where manager_id").WithArgs("mgr1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rep1").AddRow("rep2"))

	ids, err := dir.TeamMemberIDs(context.Background(), "mgr1")
	if err != nil {
		t.Fatalf("TeamMemberIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "rep1" || ids[1] != "rep2" {
		t.Fatalf("unexpected team: %v", ids)
	}
}

func TestUpdateCredentials(t *testing.T) {
	db, mock := newMock(t)
	dir := NewDirectory(db)

	mock.ExpectExec("update users set password_hash").
		WithArgs("rep1", "new-hash", "new-salt").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := dir.UpdateCredentials(context.Background(), "rep1", "new-hash", "new-salt"); err != nil {
		t.Fatalf("UpdateCredentials: %v", err)
	}

	mock.ExpectExec("update users set password_hash").
		WithArgs("nobody", "h", "s").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := dir.UpdateCredentials(context.Background(), "nobody", "h", "s"); !errors.Is(err, authz.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestAuditAppendAssignsSeq(t *testing.T) {
	db, mock := newMock(t)
	store := NewAuditStore(db)

	occurred := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("insert into audit_logs").
		WithArgs("ev1", "rep1", "read", "deal", "d1", sqlmock.AnyArg(), "10.0.0.1", "curl/8", occurred).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	ev := audit.Event{
		ID:           "ev1",
		ActorID:      "rep1",
		Action:       "read",
		ResourceType: "deal",
		ResourceID:   "d1",
		Details:      map[string]any{"outcome": "allow"},
		SourceIP:     "10.0.0.1",
		UserAgent:    "curl/8",
		OccurredAt:   occurred,
	}
	if err := store.Append(context.Background(), &ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ev.Seq != 7 {
		t.Fatalf("seq not assigned from store: %d", ev.Seq)
	}
}

func TestAuditQueryBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	store := NewAuditStore(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "seq", "actor_id", "action", "resource_type", "resource_id", "details", "source_ip", "user_agent", "occurred_at"}

	mock.ExpectQuery("select id, seq, actor_id.*actor_id in .*action =.*occurred_at >=.*order by occurred_at asc, seq asc").
		WithArgs("rep1", "rep2", "read", from).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ev1", int64(1), "rep1", "read", "deal", "d1", []byte(`{"outcome":"allow"}`), "", "", from.Add(time.Hour)))

	events, err := store.Query(context.Background(), audit.Filter{
		ActorIDs: []string{"rep1", "rep2"},
		Action:   "read",
		From:     from,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Details["outcome"] != "allow" {
		t.Fatalf("details not decoded: %+v", events[0].Details)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
