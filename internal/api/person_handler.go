package api

import (
	"time"

	"whereabouts/internal/database"
	"whereabouts/internal/person"
	"whereabouts/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PersonHandler struct {
	deps Deps
}

func NewPersonHandler(deps Deps) PersonHandler {
	return PersonHandler{deps: deps}
}

func (h *PersonHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	p, err := h.deps.DB.GetPersonByID(c.Context(), id)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	currentSite, err := h.deps.Groups.CurrentSite(c.Context(), id)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	response := fiber.Map{
		"id":           p.ID.String(),
		"name":         p.Name,
		"email":        p.Email,
		"site":         p.Site,
		"currentSite":  currentSite,
		"serviceType":  p.ServiceType,
		"alertStatus":  p.AlertStatus,
		"reportStatus": p.ReportStatus,
		"location":     p.Location,
		"updatedAt":    p.UpdatedAt,
	}
	if p.ManagerID.IsSet {
		response["managerId"] = p.ManagerID.Val.String()
	}
	if lastSeen, ok := h.deps.Presence.LastSeen(c.Context(), id); ok {
		response["lastSeen"] = lastSeen.Format(time.RFC3339)
	}
	return c.JSON(response)
}

type updateStatusRequest struct {
	ReportStatus *string `json:"reportStatus" validate:"omitempty,min=1"`
	Location     *string `json:"location"`
	AlertStatus  *string `json:"alertStatus" validate:"omitempty,oneof=pending good bad"`
}

// UpdateStatus records a presence report for a person and fans the change out
// to connected watchers.
func (h *PersonHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.deps, err)
	}

	params := database.UpdatePersonParams{}
	if req.ReportStatus != nil {
		params.ReportStatus = util.Some(*req.ReportStatus)
	}
	if req.Location != nil {
		params.Location = util.Some(*req.Location)
	}
	if req.AlertStatus != nil {
		params.AlertStatus = util.Some(*req.AlertStatus)
	}

	if err := h.deps.DB.UpdatePersonByID(c.Context(), id, params); err != nil {
		return respondError(c, h.deps, err)
	}

	h.deps.Presence.Touch(c.Context(), id)

	updated, err := h.deps.DB.GetPersonByID(c.Context(), id)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	h.deps.Hub.Broadcast("status", toPersonView(updated))

	return c.JSON(toPersonView(updated))
}

type updateDetailsRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Site        *string `json:"site"`
	ServiceType *string `json:"serviceType"`
	CommanderID *string `json:"commanderId" validate:"omitempty,uuid"`

	SystemRoles      *[]string `json:"systemRoles" validate:"omitempty,dive,oneof=admin hrManager"`
	SiteManagerSites *[]string `json:"siteManagerSites"`

	PersonnelManager bool    `json:"personnelManager"`
	SelectedGroupID  *string `json:"selectedGroupId" validate:"omitempty,uuid"`
	NewGroupName     *string `json:"newGroupName" validate:"omitempty,min=1"`

	ReplacementAdmins map[string]string `json:"replacementAdmins" validate:"omitempty,dive,keys,uuid,endkeys,uuid"`
}

// privileged reports whether the request touches fields only higher
// authority may set.
func (r *updateDetailsRequest) privileged() bool {
	return r.SystemRoles != nil || r.SiteManagerSites != nil || r.PersonnelManager || len(r.ReplacementAdmins) > 0
}

// UpdateDetails applies a compound person edit. The orchestration itself
// lives in the person manager; this handler only parses, gates, and maps.
func (h *PersonHandler) UpdateDetails(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	var req updateDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.deps, err)
	}

	if req.privileged() {
		perms, err := h.deps.Deriver.Derive(c.Context(), caller(c).ID)
		if err != nil {
			return respondError(c, h.deps, err)
		}
		if !perms.HigherAuthority {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": h.deps.Translator.T(requestLanguage(c), "error.not_permitted"),
			})
		}
	}

	params := person.UpdateDetailsParams{
		PersonnelManager: req.PersonnelManager,
	}
	if req.Name != nil {
		params.Name = util.Some(*req.Name)
	}
	if req.Email != nil {
		params.Email = util.Some(*req.Email)
	}
	if req.Site != nil {
		params.Site = util.Some(*req.Site)
	}
	if req.ServiceType != nil {
		params.ServiceType = util.Some(*req.ServiceType)
	}
	if req.CommanderID != nil {
		commanderID, err := uuid.Parse(*req.CommanderID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid commander id"})
		}
		params.CommanderID = util.Some(commanderID)
	}
	if req.SystemRoles != nil {
		params.SystemRoles = util.Some(*req.SystemRoles)
	}
	if req.SiteManagerSites != nil {
		params.SiteManagerSites = util.Some(*req.SiteManagerSites)
	}
	if req.SelectedGroupID != nil {
		groupID, err := uuid.Parse(*req.SelectedGroupID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id"})
		}
		params.SelectedGroupID = util.Some(groupID)
	}
	if req.NewGroupName != nil {
		params.NewGroupName = util.Some(*req.NewGroupName)
	}
	if len(req.ReplacementAdmins) > 0 {
		params.ReplacementAdmins = make(map[uuid.UUID]uuid.UUID, len(req.ReplacementAdmins))
		for rawGroup, rawAdmin := range req.ReplacementAdmins {
			groupID, err := uuid.Parse(rawGroup)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id: " + rawGroup})
			}
			adminID, err := uuid.Parse(rawAdmin)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid admin id: " + rawAdmin})
			}
			params.ReplacementAdmins[groupID] = adminID
		}
	}

	if err := h.deps.Persons.UpdateDetails(c.Context(), id, params); err != nil {
		return respondError(c, h.deps, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
