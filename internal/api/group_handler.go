package api

import (
	"net/url"
	"strings"
	"time"

	"whereabouts/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type GroupHandler struct {
	deps Deps
}

func NewGroupHandler(deps Deps) GroupHandler {
	return GroupHandler{deps: deps}
}

type groupView struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
	Command bool   `json:"command"`
	Site    bool   `json:"site"`
}

type personView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Site         string    `json:"site"`
	ServiceType  string    `json:"serviceType"`
	AlertStatus  string    `json:"alertStatus"`
	ReportStatus string    `json:"reportStatus"`
	Location     string    `json:"location"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toGroupView(g database.Group) groupView {
	return groupView{
		GroupID: g.ID.String(),
		Name:    g.Name,
		Command: g.Command,
		Site:    g.Site,
	}
}

func toGroupViews(groups []database.Group) []groupView {
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, toGroupView(g))
	}
	return views
}

func toPersonView(p database.Person) personView {
	return personView{
		ID:           p.ID.String(),
		Name:         p.Name,
		Site:         p.Site,
		ServiceType:  p.ServiceType,
		AlertStatus:  p.AlertStatus,
		ReportStatus: p.ReportStatus,
		Location:     p.Location,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (h *GroupHandler) GroupsOfPerson(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("personId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	groups, err := h.deps.Groups.GroupsOfPerson(c.Context(), personID)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	return c.JSON(toGroupViews(groups))
}

func (h *GroupHandler) CommandChain(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("personId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	chain, err := h.deps.Groups.GroupedChain(c.Context(), personID)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	type entry struct {
		Group   groupView    `json:"group"`
		Persons []personView `json:"persons"`
	}
	response := make(map[string]entry, len(chain))
	for groupID, grouped := range chain {
		persons := make([]personView, 0, len(grouped.Persons))
		for _, p := range grouped.Persons {
			persons = append(persons, toPersonView(p))
		}
		response[groupID.String()] = entry{
			Group:   toGroupView(grouped.Group),
			Persons: persons,
		}
	}
	return c.JSON(response)
}

func (h *GroupHandler) RolesInGroups(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("personId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	var groupIDs []uuid.UUID
	for _, raw := range strings.Split(c.Query("groupIds"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id: " + raw})
		}
		groupIDs = append(groupIDs, id)
	}

	roles, err := h.deps.Groups.RolesInGroups(c.Context(), personID, groupIDs)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	type roleView struct {
		GroupID   string `json:"groupId"`
		GroupRole string `json:"groupRole"`
	}
	response := make([]roleView, 0, len(roles))
	for _, r := range roles {
		response = append(response, roleView{GroupID: r.GroupID.String(), GroupRole: r.Role})
	}
	return c.JSON(response)
}

func (h *GroupHandler) SubordinateCommandGroups(c *fiber.Ctx) error {
	managerID, err := uuid.Parse(c.Params("managerId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid manager id"})
	}

	groups, err := h.deps.Groups.SubordinateCommandGroups(c.Context(), managerID)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	return c.JSON(toGroupViews(groups))
}

func (h *GroupHandler) CheckNameExists(c *fiber.Ctx) error {
	name, err := decodeParam(c, "name")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group name"})
	}

	exists, err := h.deps.Groups.NameExists(c.Context(), name)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	return c.JSON(fiber.Map{"exists": exists})
}

// decodeParam unescapes a path parameter. Group names carry Hebrew text, so
// clients percent-encode them.
func decodeParam(c *fiber.Ctx, name string) (string, error) {
	return url.QueryUnescape(c.Params(name))
}

type createGroupRequest struct {
	Name    string `json:"name" validate:"required,min=1"`
	Command bool   `json:"command"`
}

func (h *GroupHandler) Create(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.deps, err)
	}

	// Advisory UI checks aside, permissions are re-derived here before the
	// write happens.
	perms, err := h.deps.Deriver.Derive(c.Context(), caller(c).ID)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	if !perms.PersonnelManager && !perms.HigherAuthority {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": h.deps.Translator.T(requestLanguage(c), "error.not_permitted"),
		})
	}

	group, err := h.deps.Groups.Create(c.Context(), req.Name, req.Command)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toGroupView(group))
}
