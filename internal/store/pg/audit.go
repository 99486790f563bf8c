package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"fieldline.dev/internal/audit"
)

// AuditStore appends and queries the audit_logs table. The table has no
// update or delete path; rows only ever accumulate.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, event *audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("pg: marshal audit details: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`insert into audit_logs (id, actor_id, action, resource_type, resource_id, details, source_ip, user_agent, occurred_at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 returning seq`,
		event.ID, event.ActorID, event.Action, event.ResourceType, event.ResourceID,
		details, event.SourceIP, event.UserAgent, event.OccurredAt,
	)
	if err := row.Scan(&event.Seq); err != nil {
		return fmt.Errorf("pg: append audit event: %w", err)
	}
	return nil
}

func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	query, args := buildAuditQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev      audit.Event
			details []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.ActorID, &ev.Action, &ev.ResourceType,
			&ev.ResourceID, &details, &ev.SourceIP, &ev.UserAgent, &ev.OccurredAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &ev.Details)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func buildAuditQuery(filter audit.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.ActorIDs) > 0 {
		placeholders := make([]string, len(filter.ActorIDs))
		for i, id := range filter.ActorIDs {
			placeholders[i] = arg(id)
		}
		clauses = append(clauses, fmt.Sprintf("actor_id in (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = "+arg(filter.Action))
	}
	if filter.ResourceType != "" {
		clauses = append(clauses, "resource_type = "+arg(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		clauses = append(clauses, "resource_id = "+arg(filter.ResourceID))
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "occurred_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "occurred_at < "+arg(filter.To))
	}

	query := `select id, seq, actor_id, action, resource_type, resource_id, details, source_ip, user_agent, occurred_at from audit_logs`
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += " order by occurred_at asc, seq asc"
	if filter.Limit > 0 {
		query += " limit " + arg(filter.Limit)
	}
	return query, args
}
