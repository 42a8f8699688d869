package authz

import (
	"context"
	"fmt"
	"log/slog"

	"whereabouts/internal/database"

	"github.com/google/uuid"
)

// Store is the slice of the data layer the deriver reads from.
type Store interface {
	ListSystemRoles(ctx context.Context, personID uuid.UUID) ([]database.SystemRole, error)
	ListCommandGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
	ListSiteGroupsAdministeredBy(ctx context.Context, personID uuid.UUID) ([]database.Group, error)
}

// Permissions is a person's effective capability set. It is derived fresh for
// every privileged operation and never cached across requests.
type Permissions struct {
	PersonnelManager bool
	SiteManagerOf    map[string]struct{}
	HigherAuthority  bool
}

// CanManageSite reports whether the permissions cover the given site.
func (p Permissions) CanManageSite(code string) bool {
	if p.HigherAuthority {
		return true
	}
	_, ok := p.SiteManagerOf[code]
	return ok
}

type Deriver struct {
	logger *slog.Logger
	store  Store
}

func NewDeriver(logger *slog.Logger, store Store) Deriver {
	return Deriver{logger: logger, store: store}
}

// Derive computes the person's effective permissions. Rules are additive: any
// source granting a capability wins. Higher authority (a global admin or
// hrManager system role) short-circuits the group lookups entirely.
func (d *Deriver) Derive(ctx context.Context, personID uuid.UUID) (Permissions, error) {
	var perms Permissions

	roles, err := d.store.ListSystemRoles(ctx, personID)
	if err != nil {
		return perms, fmt.Errorf("authz: failed to list system roles (person_id=%s): %w", personID, err)
	}
	for _, role := range roles {
		if role.Name == database.SystemRoleAdmin || role.Name == database.SystemRoleHRManager {
			perms.HigherAuthority = true
			perms.PersonnelManager = true
			return perms, nil
		}
	}

	commandGroups, err := d.store.ListCommandGroupsAdministeredBy(ctx, personID)
	if err != nil {
		return perms, fmt.Errorf("authz: failed to list administered command groups (person_id=%s): %w", personID, err)
	}
	perms.PersonnelManager = len(commandGroups) > 0

	siteGroups, err := d.store.ListSiteGroupsAdministeredBy(ctx, personID)
	if err != nil {
		return perms, fmt.Errorf("authz: failed to list administered site groups (person_id=%s): %w", personID, err)
	}
	perms.SiteManagerOf = make(map[string]struct{}, len(siteGroups))
	for _, group := range siteGroups {
		code, ok := SiteCodeForGroupName(group.Name)
		if !ok {
			d.logger.WarnContext(ctx, "Site group has no configured site code", "group", group.Name)
			continue
		}
		perms.SiteManagerOf[code] = struct{}{}
	}

	return perms, nil
}
