package group

import (
	"context"
	"fmt"
	"log/slog"

	"whereabouts/internal/authz"
	"whereabouts/internal/database"

	"github.com/google/uuid"
)

// Store is the slice of the data layer the group manager consumes.
type Store interface {
	CreateGroup(ctx context.Context, params database.CreateGroupParams) (database.Group, error)
	GroupNameExists(ctx context.Context, name string) (bool, error)
	GetGroupByID(ctx context.Context, id uuid.UUID) (database.Group, error)
	ListGroupsOfPerson(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]database.Person, error)
	ListMemberRoles(ctx context.Context, personID uuid.UUID, groupIDs []uuid.UUID) ([]database.GroupMember, error)
	ListCommandGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
	AddGroupMember(ctx context.Context, groupID, personID uuid.UUID, role string) error
	DeleteGroupMember(ctx context.Context, groupID, personID uuid.UUID, role string) error
	MoveToSiteGroup(ctx context.Context, personID uuid.UUID, groupName string) error
	GetSiteGroupOfPerson(ctx context.Context, personID uuid.UUID) (database.Group, error)
	GetPersonByID(ctx context.Context, id uuid.UUID) (database.Person, error)
}

// Manager is the read/write surface over groups and memberships.
type Manager struct {
	logger *slog.Logger
	store  Store
}

func NewManager(logger *slog.Logger, store Store) Manager {
	return Manager{logger: logger, store: store}
}

// Create makes a new group. Group names are unique across the deployment;
// database.ErrGroupNameTaken comes back on collision.
func (m *Manager) Create(ctx context.Context, name string, command bool) (database.Group, error) {
	return m.store.CreateGroup(ctx, database.CreateGroupParams{
		Name:    name,
		Command: command,
	})
}

func (m *Manager) NameExists(ctx context.Context, name string) (bool, error) {
	return m.store.GroupNameExists(ctx, name)
}

func (m *Manager) GroupsOfPerson(ctx context.Context, personID uuid.UUID) ([]database.Group, error) {
	return m.store.ListGroupsOfPerson(ctx, personID)
}

func (m *Manager) MembersOfGroup(ctx context.Context, groupID uuid.UUID) ([]database.Person, error) {
	return m.store.ListGroupMembers(ctx, groupID)
}

func (m *Manager) RolesInGroups(ctx context.Context, personID uuid.UUID, groupIDs []uuid.UUID) ([]database.GroupMember, error) {
	return m.store.ListMemberRoles(ctx, personID, groupIDs)
}

func (m *Manager) AddMember(ctx context.Context, groupID, personID uuid.UUID, role string) error {
	return m.store.AddGroupMember(ctx, groupID, personID, role)
}

func (m *Manager) RemoveMember(ctx context.Context, groupID, personID uuid.UUID, role string) error {
	return m.store.DeleteGroupMember(ctx, groupID, personID, role)
}

// MoveToSite reassigns the person's site-group membership to the site with
// the given code. All previous site memberships are dropped in the same
// transaction.
func (m *Manager) MoveToSite(ctx context.Context, personID uuid.UUID, siteCode string) error {
	name, ok := authz.SiteGroupName(siteCode)
	if !ok {
		return fmt.Errorf("group: unknown site code %q: %w", siteCode, database.ErrGroupNotFound)
	}
	return m.store.MoveToSiteGroup(ctx, personID, name)
}

// CurrentSite returns the site code of the person's current site-group
// membership, falling back to the empty string when they have none.
func (m *Manager) CurrentSite(ctx context.Context, personID uuid.UUID) (string, error) {
	g, err := m.store.GetSiteGroupOfPerson(ctx, personID)
	if err != nil {
		if err == database.ErrGroupNotFound {
			return "", nil
		}
		return "", err
	}
	code, ok := authz.SiteCodeForGroupName(g.Name)
	if !ok {
		m.logger.WarnContext(ctx, "Site group has no configured site code", "group", g.Name)
		return "", nil
	}
	return code, nil
}
