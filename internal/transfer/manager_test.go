package transfer_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"whereabouts/internal/authz"
	"whereabouts/internal/database"
	"whereabouts/internal/transfer"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	persons   map[uuid.UUID]database.Person
	transfers map[uuid.UUID]database.Transfer

	completedGroup string
	completeErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons:   make(map[uuid.UUID]database.Person),
		transfers: make(map[uuid.UUID]database.Transfer),
	}
}

func (s *fakeStore) addPerson() database.Person {
	p := database.Person{ID: uuid.New()}
	s.persons[p.ID] = p
	return p
}

func (s *fakeStore) GetPersonByID(_ context.Context, id uuid.UUID) (database.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return database.Person{}, database.ErrPersonNotFound
	}
	return p, nil
}

func (s *fakeStore) GetTransferByPersonID(_ context.Context, personID uuid.UUID) (database.Transfer, error) {
	t, ok := s.transfers[personID]
	if !ok {
		return database.Transfer{}, database.ErrTransferNotFound
	}
	return t, nil
}

func (s *fakeStore) UpsertTransfer(_ context.Context, params database.UpsertTransferParams) (database.Transfer, bool, error) {
	_, replaced := s.transfers[params.PersonID]
	t := database.Transfer{
		ID:       uuid.New(),
		PersonID: params.PersonID,
		Origin:   params.Origin,
		Target:   params.Target,
		Field:    params.Field,
		Status:   database.TransferStatusPending,
	}
	s.transfers[params.PersonID] = t
	return t, replaced, nil
}

func (s *fakeStore) SetTransferConfirmation(_ context.Context, personID uuid.UUID, side string, value bool) (database.Transfer, error) {
	t, ok := s.transfers[personID]
	if !ok || t.Status != database.TransferStatusPending {
		return database.Transfer{}, database.ErrTransferNotFound
	}
	switch side {
	case database.TransferSideOrigin:
		t.OriginConfirmed = value
	case database.TransferSideTarget:
		t.TargetConfirmed = value
	default:
		return database.Transfer{}, database.ErrInvalidTransferSide
	}
	s.transfers[personID] = t
	return t, nil
}

func (s *fakeStore) CompleteTransfer(_ context.Context, personID uuid.UUID, siteGroupName string) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	t, ok := s.transfers[personID]
	if !ok || t.Status != database.TransferStatusPending {
		return database.ErrTransferNotFound
	}
	s.completedGroup = siteGroupName
	t.Status = database.TransferStatusResolved
	s.transfers[personID] = t
	return nil
}

func (s *fakeStore) DeleteTransferByPersonID(_ context.Context, personID uuid.UUID) error {
	if _, ok := s.transfers[personID]; !ok {
		return database.ErrTransferNotFound
	}
	delete(s.transfers, personID)
	return nil
}

// fakeDeriver hands each caller a fixed permission set.
type fakeDeriver struct {
	perms map[uuid.UUID]authz.Permissions
}

func (d *fakeDeriver) Derive(_ context.Context, personID uuid.UUID) (authz.Permissions, error) {
	return d.perms[personID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func siteManagerOf(codes ...string) authz.Permissions {
	perms := authz.Permissions{SiteManagerOf: make(map[string]struct{})}
	for _, code := range codes {
		perms.SiteManagerOf[code] = struct{}{}
	}
	return perms
}

func newManager(store *fakeStore, deriver *fakeDeriver) transfer.Manager {
	return transfer.NewManager(testLogger(), store, deriver)
}

func TestPropose_RejectsUnknownSites(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	manager := newManager(store, &fakeDeriver{})

	_, _, err := manager.Propose(context.Background(), p.ID, "xyz", "nvt")
	assert.ErrorIs(t, err, transfer.ErrUnknownSite)

	_, _, err = manager.Propose(context.Background(), p.ID, "mbt", "xyz")
	assert.ErrorIs(t, err, transfer.ErrUnknownSite)
}

func TestPropose_UnknownPerson(t *testing.T) {
	store := newFakeStore()
	manager := newManager(store, &fakeDeriver{})

	_, _, err := manager.Propose(context.Background(), uuid.New(), "mbt", "nvt")
	assert.ErrorIs(t, err, database.ErrPersonNotFound)
}

func TestPropose_ReplacesPendingAndResetsConfirmations(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	manager := newManager(store, &fakeDeriver{})

	_, replaced, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)
	assert.False(t, replaced)

	// One side confirms, then a new proposal lands.
	_, err = store.SetTransferConfirmation(context.Background(), p.ID, database.TransferSideOrigin, true)
	require.NoError(t, err)

	tr, replaced, err := manager.Propose(context.Background(), p.ID, "mbt", "rmn")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.False(t, tr.OriginConfirmed)
	assert.False(t, tr.TargetConfirmed)
	assert.Equal(t, "rmn", tr.Target)
}

func TestConfirm_RequiresAuthorityOverSide(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	caller := uuid.New()
	deriver := &fakeDeriver{perms: map[uuid.UUID]authz.Permissions{
		caller: siteManagerOf("nvt"), // target only
	}}
	manager := newManager(store, deriver)

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)

	_, err = manager.Confirm(context.Background(), p.ID, caller, database.TransferSideOrigin, true)
	assert.ErrorIs(t, err, transfer.ErrNotAuthorized)

	tr, err := manager.Confirm(context.Background(), p.ID, caller, database.TransferSideTarget, true)
	require.NoError(t, err)
	assert.True(t, tr.TargetConfirmed)
}

func TestConfirm_InvalidSide(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	manager := newManager(store, &fakeDeriver{})

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)

	_, err = manager.Confirm(context.Background(), p.ID, uuid.New(), "sideways", true)
	assert.ErrorIs(t, err, database.ErrInvalidTransferSide)
}

func TestConfirm_OneSideStaysPending(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	caller := uuid.New()
	deriver := &fakeDeriver{perms: map[uuid.UUID]authz.Permissions{
		caller: siteManagerOf("mbt"),
	}}
	manager := newManager(store, deriver)

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)

	tr, err := manager.Confirm(context.Background(), p.ID, caller, database.TransferSideOrigin, true)
	require.NoError(t, err)

	assert.Equal(t, database.TransferStatusPending, tr.Status)
	assert.Empty(t, store.completedGroup)
}

func TestConfirm_BothSidesResolves(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	originMgr := uuid.New()
	targetMgr := uuid.New()
	deriver := &fakeDeriver{perms: map[uuid.UUID]authz.Permissions{
		originMgr: siteManagerOf("mbt"),
		targetMgr: siteManagerOf("nvt"),
	}}
	manager := newManager(store, deriver)

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)

	_, err = manager.Confirm(context.Background(), p.ID, originMgr, database.TransferSideOrigin, true)
	require.NoError(t, err)

	tr, err := manager.Confirm(context.Background(), p.ID, targetMgr, database.TransferSideTarget, true)
	require.NoError(t, err)

	assert.Equal(t, database.TransferStatusResolved, tr.Status)
	assert.Equal(t, "נבטים", store.completedGroup, "move applies to the target site group")
}

func TestConfirm_ConcurrentCompletionIsSuccess(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	caller := uuid.New()
	deriver := &fakeDeriver{perms: map[uuid.UUID]authz.Permissions{
		caller: authz.Permissions{HigherAuthority: true},
	}}
	manager := newManager(store, deriver)

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)
	_, err = store.SetTransferConfirmation(context.Background(), p.ID, database.TransferSideOrigin, true)
	require.NoError(t, err)

	// The other confirmer wins the completion race.
	store.completeErr = database.ErrTransferNotFound

	tr, err := manager.Confirm(context.Background(), p.ID, caller, database.TransferSideTarget, true)
	require.NoError(t, err)
	assert.Equal(t, database.TransferStatusResolved, tr.Status)
}

func TestConfirm_RetractingAConfirmation(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	caller := uuid.New()
	deriver := &fakeDeriver{perms: map[uuid.UUID]authz.Permissions{
		caller: authz.Permissions{HigherAuthority: true},
	}}
	manager := newManager(store, deriver)

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)

	_, err = manager.Confirm(context.Background(), p.ID, caller, database.TransferSideOrigin, true)
	require.NoError(t, err)

	tr, err := manager.Confirm(context.Background(), p.ID, caller, database.TransferSideOrigin, false)
	require.NoError(t, err)

	assert.False(t, tr.OriginConfirmed)
	assert.Equal(t, database.TransferStatusPending, tr.Status)
}

func TestCancel(t *testing.T) {
	store := newFakeStore()
	p := store.addPerson()
	manager := newManager(store, &fakeDeriver{})

	_, _, err := manager.Propose(context.Background(), p.ID, "mbt", "nvt")
	require.NoError(t, err)

	require.NoError(t, manager.Cancel(context.Background(), p.ID))

	_, err = manager.Get(context.Background(), p.ID)
	assert.ErrorIs(t, err, database.ErrTransferNotFound)
}
