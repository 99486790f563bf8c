// Package pg backs the core's external interfaces with PostgreSQL through
// database/sql and the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fieldline.dev/internal/authz"
)

// Directory resolves principals from the users table.
type Directory struct {
	db *sql.DB
}

var _ authz.Directory = (*Directory)(nil)

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) FindPrincipal(ctx context.Context, id string) (authz.Principal, error) {
	row := d.db.QueryRowContext(ctx,
		`select id, role, coalesce(manager_id, ''), disabled from users where id = $1`, id)

	var (
		p    authz.Principal
		role string
	)
	if err := row.Scan(&p.ID, &role, &p.ManagerID, &p.Disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Principal{}, authz.ErrPrincipalNotFound
		}
		return authz.Principal{}, fmt.Errorf("pg: find principal %s: %w", id, err)
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("pg: principal %s: %w", id, err)
	}
	p.Role = parsed
	return p, nil
}

func (d *Directory) TeamMemberIDs(ctx context.Context, managerID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`select id from users where manager_id = $1 order by id asc`, managerID)
	if err != nil {
		return nil, fmt.Errorf("pg: team members of %s: %w", managerID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Credentials returns the stored hash and salt for a user, for the login
// flow that sits outside this core.
func (d *Directory) Credentials(ctx context.Context, id string) (hash, salt string, err error) {
	row := d.db.QueryRowContext(ctx,
		`select password_hash, password_salt from users where id = $1`, id)
	if err := row.Scan(&hash, &salt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", authz.ErrPrincipalNotFound
		}
		return "", "", fmt.Errorf("pg: credentials of %s: %w", id, err)
	}
	return hash, salt, nil
}

// UpdateCredentials replaces a user's hash and salt in one statement, so a
// password change never leaves a mismatched pair behind.
func (d *Directory) UpdateCredentials(ctx context.Context, id, hash, salt string) error {
	res, err := d.db.ExecContext(ctx,
		`update users set password_hash = $2, password_salt = $3, updated_at = now() where id = $1`,
		id, hash, salt)
	if err != nil {
		return fmt.Errorf("pg: update credentials of %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return authz.ErrPrincipalNotFound
	}
	return nil
}
