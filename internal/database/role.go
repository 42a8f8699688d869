package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	SystemRoleAdmin     = "admin"
	SystemRoleHRManager = "hrManager"
)

type SystemRole struct {
	ID        uuid.UUID
	PersonID  uuid.UUID
	Name      string
	CreatedAt time.Time
}

func (db *Database) ListSystemRoles(ctx context.Context, personID uuid.UUID) ([]SystemRole, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, person_id, name, created_at FROM tbl_system_role WHERE person_id = $1`, personID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list system roles (person_id=%s): %w", personID, err)
	}
	defer rows.Close()

	var roles []SystemRole
	for rows.Next() {
		var role SystemRole
		if err := rows.Scan(&role.ID, &role.PersonID, &role.Name, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan system role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate system roles: %w", err)
	}

	return roles, nil
}

// ReplaceSystemRoles swaps the person's system role set for the given names.
func (db *Database) ReplaceSystemRoles(ctx context.Context, personID uuid.UUID, names []string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tbl_system_role WHERE person_id = $1`, personID); err != nil {
			return fmt.Errorf("database: failed to clear system roles (person_id=%s): %w", personID, err)
		}
		for _, name := range names {
			if _, err := tx.Exec(ctx, `INSERT INTO tbl_system_role (id, person_id, name, created_at) VALUES ($1, $2, $3, $4)`,
				uuid.New(), personID, name, time.Now().UTC()); err != nil {
				return fmt.Errorf("database: failed to insert system role (person_id=%s name=%s): %w", personID, name, err)
			}
		}
		return nil
	})
}
