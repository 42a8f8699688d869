package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	TransferFieldSite    = "site"
	TransferFieldManager = "manager"

	TransferStatusPending  = "pending"
	TransferStatusResolved = "resolved"

	TransferSideOrigin = "origin"
	TransferSideTarget = "target"
)

var (
	ErrTransferNotConfirmed = errors.New("transfer not confirmed by both sides")
	ErrInvalidTransferSide  = errors.New("invalid transfer side")
)

// Transfer is a pending site/manager move for one person. At most one row
// exists per person, enforced by a unique index on person_id.
type Transfer struct {
	ID              uuid.UUID
	PersonID        uuid.UUID
	Origin          string
	Target          string
	Field           string
	OriginConfirmed bool
	TargetConfirmed bool
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const transferColumns = `id, person_id, origin, target, field, origin_confirmed, target_confirmed, status, created_at, updated_at`

func scanTransfer(row pgx.Row, t *Transfer) error {
	return row.Scan(&t.ID, &t.PersonID, &t.Origin, &t.Target, &t.Field,
		&t.OriginConfirmed, &t.TargetConfirmed, &t.Status, &t.CreatedAt, &t.UpdatedAt)
}

func (db *Database) GetTransferByPersonID(ctx context.Context, personID uuid.UUID) (Transfer, error) {
	var transfer Transfer
	err := scanTransfer(db.Pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM tbl_transfer WHERE person_id = $1`, personID), &transfer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transfer, ErrTransferNotFound
		}
		return transfer, fmt.Errorf("database: failed to scan transfer: %w", err)
	}
	return transfer, nil
}

type UpsertTransferParams struct {
	PersonID uuid.UUID
	Origin   string
	Target   string
	Field    string
}

// UpsertTransfer inserts a pending transfer for the person, or overwrites the
// existing one in place with both confirmations reset. The returned flag
// reports whether an existing row was overwritten.
func (db *Database) UpsertTransfer(ctx context.Context, params UpsertTransferParams) (Transfer, bool, error) {
	var transfer Transfer
	var replaced bool

	now := time.Now().UTC()
	err := db.Pool.QueryRow(ctx, `INSERT INTO tbl_transfer (id, person_id, origin, target, field, origin_confirmed, target_confirmed, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6, $7, $7)
		ON CONFLICT (person_id) DO UPDATE SET
			origin = EXCLUDED.origin,
			target = EXCLUDED.target,
			field = EXCLUDED.field,
			origin_confirmed = FALSE,
			target_confirmed = FALSE,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING `+transferColumns+`, (xmax <> 0)`,
		uuid.New(), params.PersonID, params.Origin, params.Target, params.Field, TransferStatusPending, now).Scan(
		&transfer.ID, &transfer.PersonID, &transfer.Origin, &transfer.Target, &transfer.Field,
		&transfer.OriginConfirmed, &transfer.TargetConfirmed, &transfer.Status,
		&transfer.CreatedAt, &transfer.UpdatedAt, &replaced)
	if err != nil {
		return transfer, false, fmt.Errorf("database: failed to upsert transfer (person_id=%s): %w", params.PersonID, err)
	}
	return transfer, replaced, nil
}

// SetTransferConfirmation sets one side's confirmation flag on the person's
// pending transfer and returns the updated row. A resolved or missing
// transfer yields ErrTransferNotFound.
func (db *Database) SetTransferConfirmation(ctx context.Context, personID uuid.UUID, side string, value bool) (Transfer, error) {
	var column string
	switch side {
	case TransferSideOrigin:
		column = "origin_confirmed"
	case TransferSideTarget:
		column = "target_confirmed"
	default:
		return Transfer{}, ErrInvalidTransferSide
	}

	var transfer Transfer
	err := scanTransfer(db.Pool.QueryRow(ctx, `UPDATE tbl_transfer SET `+column+` = $1, updated_at = $2
		WHERE person_id = $3 AND status = $4
		RETURNING `+transferColumns, value, time.Now().UTC(), personID, TransferStatusPending), &transfer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transfer, ErrTransferNotFound
		}
		return transfer, fmt.Errorf("database: failed to confirm transfer (person_id=%s side=%s): %w", personID, side, err)
	}
	return transfer, nil
}

// CompleteTransfer applies the transfer's side effect and marks it resolved.
// The row is locked for the duration so two racing confirmations cannot both
// complete: the loser either blocks until the row is resolved and then gets
// ErrTransferNotFound, or observes missing confirmations.
//
// siteGroupName is the resolved group name for the target site; it is only
// consulted when the transfer moves a site.
func (db *Database) CompleteTransfer(ctx context.Context, personID uuid.UUID, siteGroupName string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		var transfer Transfer
		err := scanTransfer(tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM tbl_transfer
			WHERE person_id = $1 AND status = $2 FOR UPDATE`, personID, TransferStatusPending), &transfer)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTransferNotFound
			}
			return fmt.Errorf("database: failed to lock transfer (person_id=%s): %w", personID, err)
		}

		if !transfer.OriginConfirmed || !transfer.TargetConfirmed {
			return ErrTransferNotConfirmed
		}

		switch transfer.Field {
		case TransferFieldSite:
			if err := moveToSiteGroupTx(ctx, tx, personID, siteGroupName); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE tbl_person SET site = $1, updated_at = $2 WHERE id = $3`,
				transfer.Target, time.Now().UTC(), personID); err != nil {
				return fmt.Errorf("database: failed to update person site (person_id=%s): %w", personID, err)
			}
		case TransferFieldManager:
			managerID, err := uuid.Parse(transfer.Target)
			if err != nil {
				return fmt.Errorf("database: transfer target is not a person id (target=%s): %w", transfer.Target, err)
			}
			if _, err := tx.Exec(ctx, `UPDATE tbl_person SET manager_id = $1, updated_at = $2 WHERE id = $3`,
				managerID, time.Now().UTC(), personID); err != nil {
				return fmt.Errorf("database: failed to update person manager (person_id=%s): %w", personID, err)
			}
		default:
			return fmt.Errorf("database: unknown transfer field %q", transfer.Field)
		}

		if _, err := tx.Exec(ctx, `UPDATE tbl_transfer SET status = $1, updated_at = $2 WHERE id = $3`,
			TransferStatusResolved, time.Now().UTC(), transfer.ID); err != nil {
			return fmt.Errorf("database: failed to resolve transfer (id=%s): %w", transfer.ID, err)
		}
		return nil
	})
}

func (db *Database) DeleteTransferByPersonID(ctx context.Context, personID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_transfer WHERE person_id = $1`, personID)
	if err != nil {
		return fmt.Errorf("database: failed to delete transfer (person_id=%s): %w", personID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// DeleteResolvedTransfersBefore removes resolved transfer rows older than the
// cutoff. Used by the janitor daemon.
func (db *Database) DeleteResolvedTransfersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_transfer WHERE status = $1 AND updated_at < $2`,
		TransferStatusResolved, cutoff)
	if err != nil {
		return 0, fmt.Errorf("database: failed to delete resolved transfers: %w", err)
	}
	return tag.RowsAffected(), nil
}
