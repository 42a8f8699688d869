package api

import (
	"whereabouts/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type TransferHandler struct {
	deps Deps
}

func NewTransferHandler(deps Deps) TransferHandler {
	return TransferHandler{deps: deps}
}

type transferView struct {
	PersonID        string `json:"personId"`
	Field           string `json:"field"`
	Origin          string `json:"origin"`
	Target          string `json:"target"`
	OriginConfirmed bool   `json:"originConfirmed"`
	TargetConfirmed bool   `json:"targetConfirmed"`
	Status          string `json:"status"`
}

func toTransferView(t database.Transfer) transferView {
	return transferView{
		PersonID:        t.PersonID.String(),
		Field:           t.Field,
		Origin:          t.Origin,
		Target:          t.Target,
		OriginConfirmed: t.OriginConfirmed,
		TargetConfirmed: t.TargetConfirmed,
		Status:          t.Status,
	}
}

type proposeTransferRequest struct {
	Origin string `json:"origin" validate:"required"`
	Target string `json:"target" validate:"required"`
}

func (h *TransferHandler) Propose(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	var req proposeTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.deps, err)
	}

	perms, err := h.deps.Deriver.Derive(c.Context(), caller(c).ID)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	if !perms.CanManageSite(req.Origin) && !perms.CanManageSite(req.Target) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": h.deps.Translator.T(requestLanguage(c), "error.not_permitted"),
		})
	}

	t, replaced, err := h.deps.Transfers.Propose(c.Context(), personID, req.Origin, req.Target)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	response := fiber.Map{"transfer": toTransferView(t)}
	if replaced {
		response["warning"] = h.deps.Translator.T(requestLanguage(c), "transfer.replaced_warning")
	}
	return c.Status(fiber.StatusCreated).JSON(response)
}

type confirmTransferRequest struct {
	Originator string `json:"originator" validate:"required,oneof=origin target"`
	Status     *bool  `json:"status" validate:"required"`
}

// Confirm records the caller's yes/no on one side of a pending transfer.
// Which side they speak for comes from the request, whether they may speak
// for it from their derived permissions.
func (h *TransferHandler) Confirm(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	var req confirmTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, h.deps, err)
	}

	t, err := h.deps.Transfers.Confirm(c.Context(), personID, caller(c).ID, req.Originator, *req.Status)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	if t.Status == database.TransferStatusResolved {
		h.deps.Telemetry.RecordTransferResolved(c.Context(), t.Origin, t.Target)
		h.deps.Hub.Broadcast("transfer", toTransferView(t))
	}
	return c.JSON(toTransferView(t))
}

func (h *TransferHandler) Cancel(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid person id"})
	}

	// Cancellation needs authority over at least one side of the pending
	// request.
	t, err := h.deps.Transfers.Get(c.Context(), personID)
	if err != nil {
		return respondError(c, h.deps, err)
	}

	perms, err := h.deps.Deriver.Derive(c.Context(), caller(c).ID)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	if !perms.CanManageSite(t.Origin) && !perms.CanManageSite(t.Target) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": h.deps.Translator.T(requestLanguage(c), "error.not_permitted"),
		})
	}

	if err := h.deps.Transfers.Cancel(c.Context(), personID); err != nil {
		return respondError(c, h.deps, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
