package authz_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"whereabouts/internal/authz"
	"whereabouts/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	roles         map[uuid.UUID][]database.SystemRole
	commandGroups map[uuid.UUID][]database.Group
	siteGroups    map[uuid.UUID][]database.Group

	commandLookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:         make(map[uuid.UUID][]database.SystemRole),
		commandGroups: make(map[uuid.UUID][]database.Group),
		siteGroups:    make(map[uuid.UUID][]database.Group),
	}
}

func (s *fakeStore) ListSystemRoles(_ context.Context, personID uuid.UUID) ([]database.SystemRole, error) {
	return s.roles[personID], nil
}

func (s *fakeStore) ListCommandGroupsAdministeredBy(_ context.Context, personID uuid.UUID) ([]database.Group, error) {
	s.commandLookups++
	return s.commandGroups[personID], nil
}

func (s *fakeStore) ListSiteGroupsAdministeredBy(_ context.Context, personID uuid.UUID) ([]database.Group, error) {
	return s.siteGroups[personID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDerive_HigherAuthorityShortCircuits(t *testing.T) {
	for _, role := range []string{database.SystemRoleAdmin, database.SystemRoleHRManager} {
		t.Run(role, func(t *testing.T) {
			store := newFakeStore()
			personID := uuid.New()
			store.roles[personID] = []database.SystemRole{{PersonID: personID, Name: role}}

			deriver := authz.NewDeriver(testLogger(), store)
			perms, err := deriver.Derive(context.Background(), personID)
			require.NoError(t, err)

			assert.True(t, perms.HigherAuthority)
			assert.True(t, perms.PersonnelManager)
			assert.Zero(t, store.commandLookups, "group lookups should be skipped")
			assert.True(t, perms.CanManageSite("mbt"))
			assert.True(t, perms.CanManageSite("nvt"))
		})
	}
}

func TestDerive_PersonnelManagerFromCommandGroups(t *testing.T) {
	store := newFakeStore()
	personID := uuid.New()
	store.commandGroups[personID] = []database.Group{{ID: uuid.New(), Name: "squadron", Command: true}}

	deriver := authz.NewDeriver(testLogger(), store)
	perms, err := deriver.Derive(context.Background(), personID)
	require.NoError(t, err)

	assert.True(t, perms.PersonnelManager)
	assert.False(t, perms.HigherAuthority)
	assert.False(t, perms.CanManageSite("mbt"))
}

func TestDerive_SiteManagerScope(t *testing.T) {
	store := newFakeStore()
	personID := uuid.New()
	store.siteGroups[personID] = []database.Group{
		{ID: uuid.New(), Name: "איילת השחר", Site: true},
		{ID: uuid.New(), Name: "unmapped site", Site: true},
	}

	deriver := authz.NewDeriver(testLogger(), store)
	perms, err := deriver.Derive(context.Background(), personID)
	require.NoError(t, err)

	assert.False(t, perms.HigherAuthority)
	assert.True(t, perms.CanManageSite("mbt"))
	assert.False(t, perms.CanManageSite("nvt"))
	assert.Len(t, perms.SiteManagerOf, 1, "groups without a site code are skipped")
}

func TestDerive_NoGrants(t *testing.T) {
	store := newFakeStore()
	deriver := authz.NewDeriver(testLogger(), store)

	perms, err := deriver.Derive(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.False(t, perms.PersonnelManager)
	assert.False(t, perms.HigherAuthority)
	assert.False(t, perms.CanManageSite("mbt"))
}

func TestSiteCodeRoundTrip(t *testing.T) {
	for _, code := range authz.SiteCodes() {
		name, ok := authz.SiteGroupName(code)
		require.True(t, ok)

		back, ok := authz.SiteCodeForGroupName(name)
		require.True(t, ok)
		assert.Equal(t, code, back)
	}

	_, ok := authz.SiteGroupName("xyz")
	assert.False(t, ok)
	assert.False(t, authz.KnownSite("xyz"))
}
