package group

import (
	"context"
	"fmt"

	"whereabouts/internal/database"

	"github.com/google/uuid"
)

// GroupedMembers is one command group together with the subordinates that
// belong to it.
type GroupedMembers struct {
	Group   database.Group
	Persons []database.Person
}

// chainWalk carries the per-call traversal state. The visited sets live on
// the walk, never on the Manager, so concurrent resolutions for different
// roots don't interfere.
type chainWalk struct {
	store          Store
	visitedGroups  map[uuid.UUID]struct{}
	visitedPersons map[uuid.UUID]struct{}
	result         map[uuid.UUID]struct{}
}

// Subordinates computes the transitive set of person IDs under every command
// group the person administers, directly or through subordinate admins. The
// person themself is never part of the result, and admin cycles terminate.
func (m *Manager) Subordinates(ctx context.Context, personID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	walk := &chainWalk{
		store:          m.store,
		visitedGroups:  make(map[uuid.UUID]struct{}),
		visitedPersons: make(map[uuid.UUID]struct{}),
		result:         make(map[uuid.UUID]struct{}),
	}
	// Seeding the root as visited excludes self-subordination even when the
	// root reappears as a member deeper in the tree.
	walk.visitedPersons[personID] = struct{}{}

	if err := walk.visit(ctx, personID); err != nil {
		return nil, err
	}
	return walk.result, nil
}

func (w *chainWalk) visit(ctx context.Context, personID uuid.UUID) error {
	groups, err := w.store.ListCommandGroupsAdministeredBy(ctx, personID)
	if err != nil {
		return fmt.Errorf("group: failed to resolve administered groups (person_id=%s): %w", personID, err)
	}

	for _, g := range groups {
		if _, seen := w.visitedGroups[g.ID]; seen {
			continue
		}
		w.visitedGroups[g.ID] = struct{}{}

		members, err := w.store.ListGroupMembers(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("group: failed to list members (group_id=%s): %w", g.ID, err)
		}
		for _, member := range members {
			if member.ID == personID {
				continue
			}
			if _, seen := w.visitedPersons[member.ID]; seen {
				continue
			}
			w.visitedPersons[member.ID] = struct{}{}
			w.result[member.ID] = struct{}{}

			if err := w.visit(ctx, member.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// GroupedChain returns the person's transitive subordinates arranged by the
// command groups they belong to. Site groups are left out of this view, and a
// person appearing through several membership rows of one group is listed
// once.
func (m *Manager) GroupedChain(ctx context.Context, personID uuid.UUID) (map[uuid.UUID]GroupedMembers, error) {
	subordinates, err := m.Subordinates(ctx, personID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[uuid.UUID]GroupedMembers)
	seen := make(map[uuid.UUID]map[uuid.UUID]struct{})

	for subID := range subordinates {
		person, err := m.store.GetPersonByID(ctx, subID)
		if err != nil {
			return nil, fmt.Errorf("group: failed to load subordinate (person_id=%s): %w", subID, err)
		}
		groups, err := m.store.ListGroupsOfPerson(ctx, subID)
		if err != nil {
			return nil, fmt.Errorf("group: failed to list groups of subordinate (person_id=%s): %w", subID, err)
		}
		for _, g := range groups {
			if !g.Command {
				continue
			}
			entry, ok := grouped[g.ID]
			if !ok {
				entry = GroupedMembers{Group: g}
				seen[g.ID] = make(map[uuid.UUID]struct{})
			}
			if _, dup := seen[g.ID][person.ID]; dup {
				continue
			}
			seen[g.ID][person.ID] = struct{}{}
			entry.Persons = append(entry.Persons, person)
			grouped[g.ID] = entry
		}
	}

	return grouped, nil
}

// SubordinateCommandGroups returns the command groups administered by the
// manager or by anyone in their chain, deduplicated.
func (m *Manager) SubordinateCommandGroups(ctx context.Context, managerID uuid.UUID) ([]database.Group, error) {
	subordinates, err := m.Subordinates(ctx, managerID)
	if err != nil {
		return nil, err
	}

	roots := make([]uuid.UUID, 0, len(subordinates)+1)
	roots = append(roots, managerID)
	for id := range subordinates {
		roots = append(roots, id)
	}

	var groups []database.Group
	seen := make(map[uuid.UUID]struct{})
	for _, id := range roots {
		administered, err := m.store.ListCommandGroupsAdministeredBy(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("group: failed to resolve administered groups (person_id=%s): %w", id, err)
		}
		for _, g := range administered {
			if _, dup := seen[g.ID]; dup {
				continue
			}
			seen[g.ID] = struct{}{}
			groups = append(groups, g)
		}
	}

	return groups, nil
}
