package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whereabouts/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	AlertStatusPending = "pending"
	AlertStatusGood    = "good"
	AlertStatusBad     = "bad"
)

type Person struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Site         string
	ServiceType  string
	AlertStatus  string
	ReportStatus string
	Location     string
	ManagerID    util.Optional[uuid.UUID]
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const personColumns = `id, name, email, site, service_type, alert_status, report_status, location, manager_id, created_at, updated_at`

func scanPerson(row pgx.Row, p *Person) error {
	return row.Scan(&p.ID, &p.Name, &p.Email, &p.Site, &p.ServiceType, &p.AlertStatus,
		&p.ReportStatus, &p.Location, &p.ManagerID, &p.CreatedAt, &p.UpdatedAt)
}

type CreatePersonParams struct {
	Name        string
	Email       string
	Site        string
	ServiceType string
	ManagerID   util.Optional[uuid.UUID]
}

func (db *Database) CreatePerson(ctx context.Context, params CreatePersonParams) (Person, error) {
	person := Person{
		ID:          uuid.New(),
		Name:        params.Name,
		Email:       params.Email,
		Site:        params.Site,
		ServiceType: params.ServiceType,
		AlertStatus: AlertStatusPending,
		ManagerID:   params.ManagerID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_person (id, name, email, site, service_type, alert_status, report_status, location, manager_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		person.ID, person.Name, person.Email, person.Site, person.ServiceType, person.AlertStatus,
		person.ReportStatus, person.Location, person.ManagerID, person.CreatedAt, person.UpdatedAt); err != nil {
		return person, fmt.Errorf("database: failed to insert person (email=%s): %w", person.Email, err)
	}
	return person, nil
}

func (db *Database) GetPersonByID(ctx context.Context, id uuid.UUID) (Person, error) {
	return db.GetPerson(ctx, GetPersonParams{ID: util.Some(id)})
}

func (db *Database) GetPersonByEmail(ctx context.Context, email string) (Person, error) {
	return db.GetPerson(ctx, GetPersonParams{Email: util.Some(email)})
}

type GetPersonParams struct {
	ID    util.Optional[uuid.UUID]
	Email util.Optional[string]
}

func (db *Database) GetPerson(ctx context.Context, params GetPersonParams) (Person, error) {
	var person Person

	var query strings.Builder
	query.WriteString(`SELECT ` + personColumns + ` FROM tbl_person WHERE 1=1`)
	var args []any
	argNum := 1

	if params.ID.IsSet {
		query.WriteString(fmt.Sprintf(" AND id = $%d", argNum))
		args = append(args, params.ID.Val)
		argNum++
	}
	if params.Email.IsSet {
		query.WriteString(fmt.Sprintf(" AND email = $%d", argNum))
		args = append(args, params.Email.Val)
		argNum++
	}

	err := scanPerson(db.Pool.QueryRow(ctx, query.String(), args...), &person)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return person, ErrPersonNotFound
		}
		return person, fmt.Errorf("database: failed to scan person: %w", err)
	}
	return person, nil
}

type ListPersonsParams struct {
	Site  util.Optional[string]
	Limit util.Optional[int]
}

func (db *Database) ListPersons(ctx context.Context, params ListPersonsParams) ([]Person, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + personColumns + ` FROM tbl_person WHERE 1=1`)
	var args []any
	argNum := 1

	if params.Site.IsSet {
		query.WriteString(fmt.Sprintf(" AND site = $%d", argNum))
		args = append(args, params.Site.Val)
		argNum++
	}
	query.WriteString(" ORDER BY name ASC")
	if params.Limit.IsSet {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", argNum))
		args = append(args, params.Limit.Val)
		argNum++
	}

	rows, err := db.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list persons: %w", err)
	}
	defer rows.Close()

	var persons []Person
	for rows.Next() {
		var person Person
		if err := scanPerson(rows, &person); err != nil {
			return nil, fmt.Errorf("database: failed to scan person: %w", err)
		}
		persons = append(persons, person)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate persons: %w", err)
	}

	return persons, nil
}

type UpdatePersonParams struct {
	Name         util.Optional[string]
	Email        util.Optional[string]
	Site         util.Optional[string]
	ServiceType  util.Optional[string]
	AlertStatus  util.Optional[string]
	ReportStatus util.Optional[string]
	Location     util.Optional[string]
	ManagerID    util.Optional[util.Optional[uuid.UUID]]
}

func (db *Database) UpdatePersonByID(ctx context.Context, id uuid.UUID, params UpdatePersonParams) error {
	var sets []string
	var args []any
	argNum := 1

	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argNum))
		args = append(args, value)
		argNum++
	}

	if params.Name.IsSet {
		set("name", params.Name.Val)
	}
	if params.Email.IsSet {
		set("email", params.Email.Val)
	}
	if params.Site.IsSet {
		set("site", params.Site.Val)
	}
	if params.ServiceType.IsSet {
		set("service_type", params.ServiceType.Val)
	}
	if params.AlertStatus.IsSet {
		set("alert_status", params.AlertStatus.Val)
	}
	if params.ReportStatus.IsSet {
		set("report_status", params.ReportStatus.Val)
	}
	if params.Location.IsSet {
		set("location", params.Location.Val)
	}
	if params.ManagerID.IsSet {
		set("manager_id", params.ManagerID.Val)
	}

	if len(sets) == 0 {
		return nil
	}
	set("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE tbl_person SET %s WHERE id = $%d", strings.Join(sets, ", "), argNum)
	args = append(args, id)

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("database: failed to update person (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPersonNotFound
	}
	return nil
}

// ResetAlertStatuses puts every person back into the pending alert state.
func (db *Database) ResetAlertStatuses(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE tbl_person SET alert_status = $1, updated_at = $2`,
		AlertStatusPending, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("database: failed to reset alert statuses: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePersonByID removes a person; memberships, system roles and any
// transfer row are removed by ON DELETE CASCADE.
func (db *Database) DeletePersonByID(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_person WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: failed to delete person (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPersonNotFound
	}
	return nil
}
