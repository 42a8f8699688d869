package person

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"whereabouts/internal/authz"
	"whereabouts/internal/database"
	"whereabouts/internal/util"

	"github.com/google/uuid"
)

var (
	// ErrGroupSelection rejects a personnel-manager request that names both an
	// existing group and a new group name, or neither.
	ErrGroupSelection = errors.New("exactly one of selected group and new group name must be given")
)

// Store is the slice of the data layer the orchestrator consumes.
type Store interface {
	GetPersonByID(ctx context.Context, id uuid.UUID) (database.Person, error)
	UpdatePersonByID(ctx context.Context, id uuid.UUID, params database.UpdatePersonParams) error
	ListGroupsOfPerson(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
	ListCommandGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
	ListSiteGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
	AddGroupMember(ctx context.Context, groupID, personID uuid.UUID, role string) error
	DeleteGroupMember(ctx context.Context, groupID, personID uuid.UUID, role string) error
	ReplaceSystemRoles(ctx context.Context, personID uuid.UUID, names []string) error
	CreateGroup(ctx context.Context, params database.CreateGroupParams) (database.Group, error)
	GroupNameExists(ctx context.Context, name string) (bool, error)
	GetGroupByID(ctx context.Context, id uuid.UUID) (database.Group, error)
	GetGroupByName(ctx context.Context, name string) (database.Group, error)
}

type Manager struct {
	logger *slog.Logger
	store  Store
}

func NewManager(logger *slog.Logger, store Store) Manager {
	return Manager{logger: logger, store: store}
}

// UpdateDetailsParams carries a compound person update. Optional fields left
// unset are not touched.
type UpdateDetailsParams struct {
	Name        util.Optional[string]
	Email       util.Optional[string]
	Site        util.Optional[string]
	ServiceType util.Optional[string]

	// CommanderID re-homes the person under every command group the new
	// commander administers.
	CommanderID util.Optional[uuid.UUID]

	// SystemRoles replaces the person's global role set.
	SystemRoles util.Optional[[]string]

	// SiteManagerSites replaces the set of sites the person administers.
	SiteManagerSites util.Optional[[]string]

	// PersonnelManager requests admin of exactly one command group, either an
	// existing one (SelectedGroupID) or a new one (NewGroupName).
	PersonnelManager bool
	SelectedGroupID  util.Optional[uuid.UUID]
	NewGroupName     util.Optional[string]

	// ReplacementAdmins hands each listed command group over to a new admin
	// before the person is removed from it.
	ReplacementAdmins map[uuid.UUID]uuid.UUID
}

// UpdateDetails sequences the compound effects of a person-details edit as
// one logical operation built from independent steps. There is no cross-step
// transaction: a failing step stops the sequence and earlier steps stay
// applied, so all validation runs before the first write.
func (m *Manager) UpdateDetails(ctx context.Context, personID uuid.UUID, params UpdateDetailsParams) error {
	if err := m.validate(ctx, params); err != nil {
		return err
	}

	if _, err := m.store.GetPersonByID(ctx, personID); err != nil {
		return err
	}

	if err := m.updateScalars(ctx, personID, params); err != nil {
		return m.fail(ctx, "update scalar fields", personID, err)
	}

	if params.CommanderID.IsSet {
		if err := m.reassignCommander(ctx, personID, params.CommanderID.Val); err != nil {
			return m.fail(ctx, "reassign commander", personID, err)
		}
	}

	if params.SystemRoles.IsSet {
		if err := m.store.ReplaceSystemRoles(ctx, personID, params.SystemRoles.Val); err != nil {
			return m.fail(ctx, "replace system roles", personID, err)
		}
	}

	if params.SiteManagerSites.IsSet {
		if err := m.replaceSiteManagerScope(ctx, personID, params.SiteManagerSites.Val); err != nil {
			return m.fail(ctx, "replace site manager scope", personID, err)
		}
	}

	// Handoffs must land before the generic admin cleanup below, otherwise a
	// group could transiently be left without any admin.
	handled := make(map[uuid.UUID]struct{}, len(params.ReplacementAdmins))
	for groupID, replacementID := range params.ReplacementAdmins {
		if err := m.handOverGroup(ctx, groupID, personID, replacementID); err != nil {
			return m.fail(ctx, "hand over group admin", personID, err)
		}
		handled[groupID] = struct{}{}
	}

	if params.PersonnelManager {
		if err := m.assignManagedGroup(ctx, personID, params, handled); err != nil {
			return m.fail(ctx, "assign managed group", personID, err)
		}
	}

	return nil
}

func (m *Manager) validate(ctx context.Context, params UpdateDetailsParams) error {
	if params.PersonnelManager {
		if params.SelectedGroupID.IsSet == params.NewGroupName.IsSet {
			return ErrGroupSelection
		}
		if params.NewGroupName.IsSet {
			taken, err := m.store.GroupNameExists(ctx, params.NewGroupName.Val)
			if err != nil {
				return err
			}
			if taken {
				return database.ErrGroupNameTaken
			}
		}
	}
	return nil
}

func (m *Manager) updateScalars(ctx context.Context, personID uuid.UUID, params UpdateDetailsParams) error {
	update := database.UpdatePersonParams{
		Name:        params.Name,
		Email:       params.Email,
		Site:        params.Site,
		ServiceType: params.ServiceType,
	}
	if params.CommanderID.IsSet {
		update.ManagerID = util.Some(util.Some(params.CommanderID.Val))
	}
	return m.store.UpdatePersonByID(ctx, personID, update)
}

func (m *Manager) reassignCommander(ctx context.Context, personID, commanderID uuid.UUID) error {
	groups, err := m.store.ListGroupsOfPerson(ctx, personID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if !g.Command {
			continue
		}
		if err := m.store.DeleteGroupMember(ctx, g.ID, personID, database.GroupRoleMember); err != nil {
			return err
		}
	}

	administered, err := m.store.ListCommandGroupsAdministeredBy(ctx, commanderID)
	if err != nil {
		return err
	}
	for _, g := range administered {
		if err := m.store.AddGroupMember(ctx, g.ID, personID, database.GroupRoleMember); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) replaceSiteManagerScope(ctx context.Context, personID uuid.UUID, siteCodes []string) error {
	current, err := m.store.ListSiteGroupsAdministeredBy(ctx, personID)
	if err != nil {
		return err
	}
	for _, g := range current {
		if err := m.store.DeleteGroupMember(ctx, g.ID, personID, database.GroupRoleAdmin); err != nil {
			return err
		}
	}

	for _, code := range siteCodes {
		name, ok := authz.SiteGroupName(code)
		if !ok {
			return fmt.Errorf("person: unknown site code %q: %w", code, database.ErrGroupNotFound)
		}
		g, err := m.store.GetGroupByName(ctx, name)
		if err != nil {
			return err
		}
		if err := m.store.AddGroupMember(ctx, g.ID, personID, database.GroupRoleAdmin); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) handOverGroup(ctx context.Context, groupID, personID, replacementID uuid.UUID) error {
	// Replacement first, so the group never sits without an admin.
	if err := m.store.AddGroupMember(ctx, groupID, replacementID, database.GroupRoleAdmin); err != nil {
		return err
	}
	return m.store.DeleteGroupMember(ctx, groupID, personID, database.GroupRoleAdmin)
}

func (m *Manager) assignManagedGroup(ctx context.Context, personID uuid.UUID, params UpdateDetailsParams, handled map[uuid.UUID]struct{}) error {
	var target database.Group
	var err error
	if params.SelectedGroupID.IsSet {
		target, err = m.store.GetGroupByID(ctx, params.SelectedGroupID.Val)
	} else {
		target, err = m.store.CreateGroup(ctx, database.CreateGroupParams{
			Name:    params.NewGroupName.Val,
			Command: true,
		})
	}
	if err != nil {
		return err
	}

	administered, err := m.store.ListCommandGroupsAdministeredBy(ctx, personID)
	if err != nil {
		return err
	}
	for _, g := range administered {
		if g.ID == target.ID {
			continue
		}
		if _, done := handled[g.ID]; done {
			continue
		}
		if err := m.store.DeleteGroupMember(ctx, g.ID, personID, database.GroupRoleAdmin); err != nil {
			return err
		}
	}

	return m.store.AddGroupMember(ctx, target.ID, personID, database.GroupRoleAdmin)
}

func (m *Manager) fail(ctx context.Context, step string, personID uuid.UUID, err error) error {
	m.logger.ErrorContext(ctx, "Person details update step failed; earlier steps stay applied",
		"step", step, "person_id", personID, "error", err)
	return fmt.Errorf("person: %s: %w", step, err)
}
