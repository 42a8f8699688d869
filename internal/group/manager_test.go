package group_test

import (
	"context"
	"testing"

	"whereabouts/internal/database"
	"whereabouts/internal/group"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_RejectsDuplicateName(t *testing.T) {
	store := newFakeStore()
	manager := group.NewManager(testLogger(), store)

	_, err := manager.Create(context.Background(), "squadron", true)
	require.NoError(t, err)

	_, err = manager.Create(context.Background(), "squadron", false)
	assert.ErrorIs(t, err, database.ErrGroupNameTaken)
}

func TestNameExists(t *testing.T) {
	store := newFakeStore()
	manager := group.NewManager(testLogger(), store)
	store.addGroup("squadron", true, false)

	exists, err := manager.NameExists(context.Background(), "squadron")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = manager.NameExists(context.Background(), "platoon")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMoveToSite_UnknownCode(t *testing.T) {
	store := newFakeStore()
	manager := group.NewManager(testLogger(), store)
	p := store.addPerson("soldier")

	err := manager.MoveToSite(context.Background(), p.ID, "xyz")
	assert.ErrorIs(t, err, database.ErrGroupNotFound)
}

func TestMoveToSite_ReplacesSiteMembership(t *testing.T) {
	store := newFakeStore()
	manager := group.NewManager(testLogger(), store)

	p := store.addPerson("soldier")
	origin := store.addGroup("איילת השחר", false, true)
	target := store.addGroup("נבטים", false, true)
	store.join(origin, p, database.GroupRoleMember)

	require.NoError(t, manager.MoveToSite(context.Background(), p.ID, "nvt"))

	current, err := store.GetSiteGroupOfPerson(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, current.ID)
}

func TestCurrentSite(t *testing.T) {
	store := newFakeStore()
	manager := group.NewManager(testLogger(), store)

	p := store.addPerson("soldier")
	site := store.addGroup("איילת השחר", false, true)
	store.join(site, p, database.GroupRoleMember)

	code, err := manager.CurrentSite(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "mbt", code)
}

func TestCurrentSite_NoMembership(t *testing.T) {
	store := newFakeStore()
	manager := group.NewManager(testLogger(), store)
	p := store.addPerson("soldier")

	code, err := manager.CurrentSite(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, code)
}
