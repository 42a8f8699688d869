package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"whereabouts/internal/authz"
	"whereabouts/internal/database"

	"github.com/google/uuid"
)

var (
	ErrUnknownSite   = errors.New("unknown site code")
	ErrNotAuthorized = errors.New("caller may not confirm this side")
)

// Store is the slice of the data layer the transfer manager consumes.
type Store interface {
	GetPersonByID(ctx context.Context, id uuid.UUID) (database.Person, error)
	GetTransferByPersonID(ctx context.Context, personID uuid.UUID) (database.Transfer, error)
	UpsertTransfer(ctx context.Context, params database.UpsertTransferParams) (database.Transfer, bool, error)
	SetTransferConfirmation(ctx context.Context, personID uuid.UUID, side string, value bool) (database.Transfer, error)
	CompleteTransfer(ctx context.Context, personID uuid.UUID, siteGroupName string) error
	DeleteTransferByPersonID(ctx context.Context, personID uuid.UUID) error
}

// Deriver supplies fresh caller permissions at confirmation time.
type Deriver interface {
	Derive(ctx context.Context, personID uuid.UUID) (authz.Permissions, error)
}

// Manager runs the two-party site transfer protocol: a proposal stays pending
// until both the origin and the target side confirm, at which point the move
// is applied and the transfer resolved.
type Manager struct {
	logger  *slog.Logger
	store   Store
	deriver Deriver
}

func NewManager(logger *slog.Logger, store Store, deriver Deriver) Manager {
	return Manager{logger: logger, store: store, deriver: deriver}
}

// Propose opens (or overwrites) the transfer request for a person. There is
// at most one transfer per person: proposing over an existing pending request
// replaces it and resets both confirmations, which the returned flag reports
// so callers can warn the parties whose confirmation state was discarded.
func (m *Manager) Propose(ctx context.Context, personID uuid.UUID, origin, target string) (database.Transfer, bool, error) {
	if !authz.KnownSite(origin) {
		return database.Transfer{}, false, fmt.Errorf("%w: %s", ErrUnknownSite, origin)
	}
	if !authz.KnownSite(target) {
		return database.Transfer{}, false, fmt.Errorf("%w: %s", ErrUnknownSite, target)
	}

	if _, err := m.store.GetPersonByID(ctx, personID); err != nil {
		return database.Transfer{}, false, err
	}

	transfer, replaced, err := m.store.UpsertTransfer(ctx, database.UpsertTransferParams{
		PersonID: personID,
		Origin:   origin,
		Target:   target,
		Field:    database.TransferFieldSite,
	})
	if err != nil {
		return transfer, false, err
	}

	if replaced {
		m.logger.InfoContext(ctx, "Pending transfer overwritten by new proposal",
			"person_id", personID, "origin", origin, "target", target)
	}
	return transfer, replaced, nil
}

// Confirm records one side's decision. The caller's permissions are derived
// fresh here: confirming the origin side requires site-manager authority over
// the origin site (likewise for target), with higher authority covering both.
// When the second side confirms, the move is applied and the transfer
// resolved; a concurrent completion by the other party is treated as success.
func (m *Manager) Confirm(ctx context.Context, personID, callerID uuid.UUID, side string, value bool) (database.Transfer, error) {
	transfer, err := m.store.GetTransferByPersonID(ctx, personID)
	if err != nil {
		return transfer, err
	}

	perms, err := m.deriver.Derive(ctx, callerID)
	if err != nil {
		return transfer, err
	}

	var site string
	switch side {
	case database.TransferSideOrigin:
		site = transfer.Origin
	case database.TransferSideTarget:
		site = transfer.Target
	default:
		return transfer, database.ErrInvalidTransferSide
	}
	if !perms.CanManageSite(site) {
		return transfer, fmt.Errorf("%w (person_id=%s side=%s)", ErrNotAuthorized, callerID, side)
	}

	transfer, err = m.store.SetTransferConfirmation(ctx, personID, side, value)
	if err != nil {
		return transfer, err
	}

	if !transfer.OriginConfirmed || !transfer.TargetConfirmed {
		return transfer, nil
	}

	siteGroupName, _ := authz.SiteGroupName(transfer.Target)
	if err := m.store.CompleteTransfer(ctx, personID, siteGroupName); err != nil {
		if errors.Is(err, database.ErrTransferNotFound) {
			// The other confirmer completed it first.
			transfer.Status = database.TransferStatusResolved
			return transfer, nil
		}
		return transfer, err
	}

	m.logger.InfoContext(ctx, "Transfer resolved",
		"person_id", personID, "origin", transfer.Origin, "target", transfer.Target, "field", transfer.Field)
	transfer.Status = database.TransferStatusResolved
	return transfer, nil
}

// Cancel removes the person's transfer without side effects.
func (m *Manager) Cancel(ctx context.Context, personID uuid.UUID) error {
	return m.store.DeleteTransferByPersonID(ctx, personID)
}

// Get returns the person's current transfer, if any.
func (m *Manager) Get(ctx context.Context, personID uuid.UUID) (database.Transfer, error) {
	return m.store.GetTransferByPersonID(ctx, personID)
}
