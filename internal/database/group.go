package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	GroupRoleAdmin  = "admin"
	GroupRoleMember = "member"
)

type Group struct {
	ID        uuid.UUID
	Name      string
	Command   bool
	Site      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type GroupMember struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	PersonID  uuid.UUID
	Role      string
	CreatedAt time.Time
}

const groupColumns = `id, name, is_command, is_site, created_at, updated_at`

func scanGroup(row pgx.Row, g *Group) error {
	return row.Scan(&g.ID, &g.Name, &g.Command, &g.Site, &g.CreatedAt, &g.UpdatedAt)
}

type CreateGroupParams struct {
	Name    string
	Command bool
	Site    bool
}

func (db *Database) CreateGroup(ctx context.Context, params CreateGroupParams) (Group, error) {
	group := Group{
		ID:        uuid.New(),
		Name:      params.Name,
		Command:   params.Command,
		Site:      params.Site,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_group (id, name, is_command, is_site, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		group.ID, group.Name, group.Command, group.Site, group.CreatedAt, group.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return group, ErrGroupNameTaken
		}
		return group, fmt.Errorf("database: failed to insert group (name=%s): %w", group.Name, err)
	}
	return group, nil
}

func (db *Database) GetGroupByID(ctx context.Context, id uuid.UUID) (Group, error) {
	var group Group
	err := scanGroup(db.Pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM tbl_group WHERE id = $1`, id), &group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group, ErrGroupNotFound
		}
		return group, fmt.Errorf("database: failed to scan group: %w", err)
	}
	return group, nil
}

func (db *Database) GetGroupByName(ctx context.Context, name string) (Group, error) {
	var group Group
	err := scanGroup(db.Pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM tbl_group WHERE name = $1`, name), &group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group, ErrGroupNotFound
		}
		return group, fmt.Errorf("database: failed to scan group: %w", err)
	}
	return group, nil
}

func (db *Database) GroupNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tbl_group WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("database: failed to check group name (name=%s): %w", name, err)
	}
	return exists, nil
}

func (db *Database) DeleteGroupByID(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_group WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: failed to delete group (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (db *Database) ListGroupsOfPerson(ctx context.Context, personID uuid.UUID) ([]Group, error) {
	rows, err := db.Pool.Query(ctx, `SELECT g.id, g.name, g.is_command, g.is_site, g.created_at, g.updated_at
		FROM tbl_group g
		JOIN tbl_group_member m ON m.group_id = g.id
		WHERE m.person_id = $1
		ORDER BY g.name ASC`, personID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list groups of person (person_id=%s): %w", personID, err)
	}
	defer rows.Close()

	return collectGroups(rows)
}

func (db *Database) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]Person, error) {
	rows, err := db.Pool.Query(ctx, `SELECT p.id, p.name, p.email, p.site, p.service_type, p.alert_status, p.report_status, p.location, p.manager_id, p.created_at, p.updated_at
		FROM tbl_person p
		JOIN tbl_group_member m ON m.person_id = p.id
		WHERE m.group_id = $1
		ORDER BY p.name ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list group members (group_id=%s): %w", groupID, err)
	}
	defer rows.Close()

	var persons []Person
	for rows.Next() {
		var person Person
		if err := scanPerson(rows, &person); err != nil {
			return nil, fmt.Errorf("database: failed to scan group member: %w", err)
		}
		persons = append(persons, person)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate group members: %w", err)
	}

	return persons, nil
}

// ListMemberRoles returns the membership rows a person holds in the given groups.
func (db *Database) ListMemberRoles(ctx context.Context, personID uuid.UUID, groupIDs []uuid.UUID) ([]GroupMember, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, group_id, person_id, role, created_at
		FROM tbl_group_member
		WHERE person_id = $1 AND group_id = ANY($2)`, personID, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list member roles (person_id=%s): %w", personID, err)
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var member GroupMember
		if err := rows.Scan(&member.ID, &member.GroupID, &member.PersonID, &member.Role, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan member role: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate member roles: %w", err)
	}

	return members, nil
}

// ListCommandGroupsAdministeredBy returns the command groups in which the
// person holds the admin role.
func (db *Database) ListCommandGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]Group, error) {
	return db.listGroupsAdministeredBy(ctx, personID, "is_command")
}

// ListSiteGroupsAdministeredBy returns the site groups in which the person
// holds the admin role.
func (db *Database) ListSiteGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]Group, error) {
	return db.listGroupsAdministeredBy(ctx, personID, "is_site")
}

func (db *Database) listGroupsAdministeredBy(ctx context.Context, personID uuid.UUID, flagColumn string) ([]Group, error) {
	// flagColumn is one of two fixed identifiers, never caller input.
	rows, err := db.Pool.Query(ctx, `SELECT g.id, g.name, g.is_command, g.is_site, g.created_at, g.updated_at
		FROM tbl_group g
		JOIN tbl_group_member m ON m.group_id = g.id
		WHERE m.person_id = $1 AND m.role = $2 AND g.`+flagColumn+` = TRUE
		ORDER BY g.name ASC`, personID, GroupRoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list administered groups (person_id=%s): %w", personID, err)
	}
	defer rows.Close()

	return collectGroups(rows)
}

func collectGroups(rows pgx.Rows) ([]Group, error) {
	var groups []Group
	for rows.Next() {
		var group Group
		if err := scanGroup(rows, &group); err != nil {
			return nil, fmt.Errorf("database: failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate groups: %w", err)
	}

	return groups, nil
}

func (db *Database) AddGroupMember(ctx context.Context, groupID, personID uuid.UUID, role string) error {
	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_group_member (id, group_id, person_id, role, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, person_id, role) DO NOTHING`,
		uuid.New(), groupID, personID, role, time.Now().UTC()); err != nil {
		return fmt.Errorf("database: failed to add group member (group_id=%s person_id=%s role=%s): %w", groupID, personID, role, err)
	}
	return nil
}

func (db *Database) DeleteGroupMember(ctx context.Context, groupID, personID uuid.UUID, role string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM tbl_group_member WHERE group_id = $1 AND person_id = $2 AND role = $3`,
		groupID, personID, role); err != nil {
		return fmt.Errorf("database: failed to delete group member (group_id=%s person_id=%s role=%s): %w", groupID, personID, role, err)
	}
	return nil
}

// GetSiteGroupOfPerson returns the site group the person is currently a
// member of, i.e. their current site.
func (db *Database) GetSiteGroupOfPerson(ctx context.Context, personID uuid.UUID) (Group, error) {
	var group Group
	err := scanGroup(db.Pool.QueryRow(ctx, `SELECT g.id, g.name, g.is_command, g.is_site, g.created_at, g.updated_at
		FROM tbl_group g
		JOIN tbl_group_member m ON m.group_id = g.id
		WHERE m.person_id = $1 AND g.is_site = TRUE
		LIMIT 1`, personID), &group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group, ErrGroupNotFound
		}
		return group, fmt.Errorf("database: failed to scan site group: %w", err)
	}
	return group, nil
}

// MoveToSiteGroup drops every site-group membership the person holds and
// makes them a member of the site group with the given name, atomically.
func (db *Database) MoveToSiteGroup(ctx context.Context, personID uuid.UUID, groupName string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		return moveToSiteGroupTx(ctx, tx, personID, groupName)
	})
}

func moveToSiteGroupTx(ctx context.Context, tx pgx.Tx, personID uuid.UUID, groupName string) error {
	var groupID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM tbl_group WHERE name = $1 AND is_site = TRUE`, groupName).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("database: failed to resolve site group (name=%s): %w", groupName, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tbl_group_member m USING tbl_group g
		WHERE m.group_id = g.id AND m.person_id = $1 AND g.is_site = TRUE`, personID); err != nil {
		return fmt.Errorf("database: failed to clear site memberships (person_id=%s): %w", personID, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO tbl_group_member (id, group_id, person_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), groupID, personID, GroupRoleMember, time.Now().UTC()); err != nil {
		return fmt.Errorf("database: failed to add site membership (person_id=%s group=%s): %w", personID, groupName, err)
	}

	return nil
}
