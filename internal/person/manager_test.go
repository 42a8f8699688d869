package person_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"whereabouts/internal/database"
	"whereabouts/internal/person"
	"whereabouts/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps state in memory and records every write in order, so tests
// can assert on the step sequencing of a compound update.
type fakeStore struct {
	persons     map[uuid.UUID]database.Person
	groups      map[uuid.UUID]database.Group
	memberships []database.GroupMember
	roles       map[uuid.UUID][]string

	ops []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons: make(map[uuid.UUID]database.Person),
		groups:  make(map[uuid.UUID]database.Group),
		roles:   make(map[uuid.UUID][]string),
	}
}

func (s *fakeStore) addPerson(name string) database.Person {
	p := database.Person{ID: uuid.New(), Name: name}
	s.persons[p.ID] = p
	return p
}

func (s *fakeStore) addGroup(name string, command, site bool) database.Group {
	g := database.Group{ID: uuid.New(), Name: name, Command: command, Site: site}
	s.groups[g.ID] = g
	return g
}

func (s *fakeStore) join(g database.Group, p database.Person, role string) {
	s.memberships = append(s.memberships, database.GroupMember{
		ID: uuid.New(), GroupID: g.ID, PersonID: p.ID, Role: role,
	})
}

func (s *fakeStore) record(format string, args ...any) {
	s.ops = append(s.ops, fmt.Sprintf(format, args...))
}

func (s *fakeStore) GetPersonByID(_ context.Context, id uuid.UUID) (database.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return database.Person{}, database.ErrPersonNotFound
	}
	return p, nil
}

func (s *fakeStore) UpdatePersonByID(_ context.Context, id uuid.UUID, params database.UpdatePersonParams) error {
	p, ok := s.persons[id]
	if !ok {
		return database.ErrPersonNotFound
	}
	if params.Name.IsSet {
		p.Name = params.Name.Val
	}
	if params.Email.IsSet {
		p.Email = params.Email.Val
	}
	if params.Site.IsSet {
		p.Site = params.Site.Val
	}
	if params.ServiceType.IsSet {
		p.ServiceType = params.ServiceType.Val
	}
	if params.ManagerID.IsSet {
		p.ManagerID = params.ManagerID.Val
	}
	s.persons[id] = p
	s.record("update person %s", p.Name)
	return nil
}

func (s *fakeStore) ListGroupsOfPerson(_ context.Context, personID uuid.UUID) ([]database.Group, error) {
	var out []database.Group
	seen := make(map[uuid.UUID]struct{})
	for _, m := range s.memberships {
		if m.PersonID != personID {
			continue
		}
		if _, dup := seen[m.GroupID]; dup {
			continue
		}
		seen[m.GroupID] = struct{}{}
		out = append(out, s.groups[m.GroupID])
	}
	return out, nil
}

func (s *fakeStore) ListCommandGroupsAdministeredBy(_ context.Context, personID uuid.UUID) ([]database.Group, error) {
	var out []database.Group
	for _, m := range s.memberships {
		if m.PersonID != personID || m.Role != database.GroupRoleAdmin {
			continue
		}
		if g := s.groups[m.GroupID]; g.Command {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) ListSiteGroupsAdministeredBy(_ context.Context, personID uuid.UUID) ([]database.Group, error) {
	var out []database.Group
	for _, m := range s.memberships {
		if m.PersonID != personID || m.Role != database.GroupRoleAdmin {
			continue
		}
		if g := s.groups[m.GroupID]; g.Site {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) AddGroupMember(_ context.Context, groupID, personID uuid.UUID, role string) error {
	for _, m := range s.memberships {
		if m.GroupID == groupID && m.PersonID == personID && m.Role == role {
			return nil
		}
	}
	s.memberships = append(s.memberships, database.GroupMember{
		ID: uuid.New(), GroupID: groupID, PersonID: personID, Role: role,
	})
	s.record("add %s %s to %s", role, s.persons[personID].Name, s.groups[groupID].Name)
	return nil
}

func (s *fakeStore) DeleteGroupMember(_ context.Context, groupID, personID uuid.UUID, role string) error {
	kept := s.memberships[:0]
	for _, m := range s.memberships {
		if m.GroupID == groupID && m.PersonID == personID && m.Role == role {
			continue
		}
		kept = append(kept, m)
	}
	s.memberships = kept
	s.record("remove %s %s from %s", role, s.persons[personID].Name, s.groups[groupID].Name)
	return nil
}

func (s *fakeStore) ReplaceSystemRoles(_ context.Context, personID uuid.UUID, names []string) error {
	s.roles[personID] = names
	s.record("replace roles of %s", s.persons[personID].Name)
	return nil
}

func (s *fakeStore) CreateGroup(_ context.Context, params database.CreateGroupParams) (database.Group, error) {
	for _, g := range s.groups {
		if g.Name == params.Name {
			return database.Group{}, database.ErrGroupNameTaken
		}
	}
	g := database.Group{ID: uuid.New(), Name: params.Name, Command: params.Command, Site: params.Site}
	s.groups[g.ID] = g
	s.record("create group %s", g.Name)
	return g, nil
}

func (s *fakeStore) GroupNameExists(_ context.Context, name string) (bool, error) {
	for _, g := range s.groups {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetGroupByID(_ context.Context, id uuid.UUID) (database.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return database.Group{}, database.ErrGroupNotFound
	}
	return g, nil
}

func (s *fakeStore) GetGroupByName(_ context.Context, name string) (database.Group, error) {
	for _, g := range s.groups {
		if g.Name == name {
			return g, nil
		}
	}
	return database.Group{}, database.ErrGroupNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}

func TestUpdateDetails_GroupSelectionMustBeExclusive(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)
	p := store.addPerson("dana")
	g := store.addGroup("squadron", true, false)

	cases := map[string]person.UpdateDetailsParams{
		"neither": {PersonnelManager: true},
		"both": {
			PersonnelManager: true,
			SelectedGroupID:  util.Some(g.ID),
			NewGroupName:     util.Some("platoon"),
		},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			err := manager.UpdateDetails(context.Background(), p.ID, params)
			assert.ErrorIs(t, err, person.ErrGroupSelection)
			assert.Empty(t, store.ops, "validation failures must precede any write")
		})
	}
}

func TestUpdateDetails_NewGroupNameCollision(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)
	p := store.addPerson("dana")
	store.addGroup("squadron", true, false)

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		Name:             util.Some("renamed"),
		PersonnelManager: true,
		NewGroupName:     util.Some("squadron"),
	})
	assert.ErrorIs(t, err, database.ErrGroupNameTaken)
	assert.Empty(t, store.ops, "validation failures must precede any write")
}

func TestUpdateDetails_UnknownPerson(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)

	err := manager.UpdateDetails(context.Background(), uuid.New(), person.UpdateDetailsParams{
		Name: util.Some("ghost"),
	})
	assert.ErrorIs(t, err, database.ErrPersonNotFound)
}

func TestUpdateDetails_ScalarsOnly(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)
	p := store.addPerson("dana")

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		Name:        util.Some("dana levi"),
		ServiceType: util.Some("career"),
	})
	require.NoError(t, err)

	updated := store.persons[p.ID]
	assert.Equal(t, "dana levi", updated.Name)
	assert.Equal(t, "career", updated.ServiceType)
}

func TestUpdateDetails_ReassignCommander(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)

	p := store.addPerson("dana")
	commander := store.addPerson("boss")

	oldGroup := store.addGroup("old squadron", true, false)
	newGroup := store.addGroup("new squadron", true, false)
	site := store.addGroup("נבטים", false, true)

	store.join(oldGroup, p, database.GroupRoleMember)
	store.join(site, p, database.GroupRoleMember)
	store.join(newGroup, commander, database.GroupRoleAdmin)

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		CommanderID: util.Some(commander.ID),
	})
	require.NoError(t, err)

	groups, err := store.ListGroupsOfPerson(context.Background(), p.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	// Command membership moves; site membership is untouched.
	assert.ElementsMatch(t, []string{"new squadron", "נבטים"}, names)
	assert.Equal(t, commander.ID, store.persons[p.ID].ManagerID.Val)
}

func TestUpdateDetails_KeepsExistingCommanderOnScalarEdit(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)

	commander := store.addPerson("boss")
	p := store.addPerson("dana")
	withManager := store.persons[p.ID]
	withManager.ManagerID = util.Some(commander.ID)
	store.persons[p.ID] = withManager

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		Name: util.Some("dana levi"),
	})
	require.NoError(t, err)

	updated := store.persons[p.ID]
	assert.Equal(t, "dana levi", updated.Name)
	require.True(t, updated.ManagerID.IsSet)
	assert.Equal(t, commander.ID, updated.ManagerID.Val)
}

func TestUpdateDetails_PersonnelManagerWithNewGroup(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)

	p := store.addPerson("dana")
	stale := store.addGroup("stale squadron", true, false)
	store.join(stale, p, database.GroupRoleAdmin)

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		PersonnelManager: true,
		NewGroupName:     util.Some("fresh squadron"),
	})
	require.NoError(t, err)

	administered, err := store.ListCommandGroupsAdministeredBy(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, administered, 1)
	assert.Equal(t, "fresh squadron", administered[0].Name)
	assert.True(t, administered[0].Command)
}

func TestUpdateDetails_ReplacementBeforeRemoval(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)

	p := store.addPerson("dana")
	replacement := store.addPerson("noa")
	target := store.addGroup("target squadron", true, false)
	handedOver := store.addGroup("handed squadron", true, false)

	store.join(target, p, database.GroupRoleAdmin)
	store.join(handedOver, p, database.GroupRoleAdmin)

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		PersonnelManager: true,
		SelectedGroupID:  util.Some(target.ID),
		ReplacementAdmins: map[uuid.UUID]uuid.UUID{
			handedOver.ID: replacement.ID,
		},
	})
	require.NoError(t, err)

	added := indexOf(store.ops, "add admin noa to handed squadron")
	removed := indexOf(store.ops, "remove admin dana from handed squadron")
	require.GreaterOrEqual(t, added, 0)
	require.GreaterOrEqual(t, removed, 0)
	assert.Less(t, added, removed, "the replacement admin lands before the outgoing one leaves")

	// The handed-over group kept exactly its replacement admin, and the
	// target group kept the person.
	administered, err := store.ListCommandGroupsAdministeredBy(context.Background(), replacement.ID)
	require.NoError(t, err)
	require.Len(t, administered, 1)
	assert.Equal(t, handedOver.ID, administered[0].ID)

	administered, err = store.ListCommandGroupsAdministeredBy(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, administered, 1)
	assert.Equal(t, target.ID, administered[0].ID)
}

func TestUpdateDetails_ReplaceSiteManagerScope(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)

	p := store.addPerson("dana")
	old := store.addGroup("איילת השחר", false, true)
	store.addGroup("נבטים", false, true)
	store.join(old, p, database.GroupRoleAdmin)

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		SiteManagerSites: util.Some([]string{"nvt"}),
	})
	require.NoError(t, err)

	sites, err := store.ListSiteGroupsAdministeredBy(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "נבטים", sites[0].Name)
}

func TestUpdateDetails_SystemRolesReplaced(t *testing.T) {
	store := newFakeStore()
	manager := person.NewManager(testLogger(), store)
	p := store.addPerson("dana")
	store.roles[p.ID] = []string{database.SystemRoleAdmin}

	err := manager.UpdateDetails(context.Background(), p.ID, person.UpdateDetailsParams{
		SystemRoles: util.Some([]string{database.SystemRoleHRManager}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{database.SystemRoleHRManager}, store.roles[p.ID])
}
