package api

import (
	"github.com/gofiber/fiber/v2"
)

type AlertHandler struct {
	deps Deps
}

func NewAlertHandler(deps Deps) AlertHandler {
	return AlertHandler{deps: deps}
}

// Reset puts every person back into the pending alert state, the starting
// point of a new accountability round. Connected clients are told so their
// views flip at once.
func (h *AlertHandler) Reset(c *fiber.Ctx) error {
	perms, err := h.deps.Deriver.Derive(c.Context(), caller(c).ID)
	if err != nil {
		return respondError(c, h.deps, err)
	}
	if !perms.HigherAuthority {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": h.deps.Translator.T(requestLanguage(c), "error.not_permitted"),
		})
	}

	count, err := h.deps.DB.ResetAlertStatuses(c.Context())
	if err != nil {
		return respondError(c, h.deps, err)
	}

	h.deps.Logger.InfoContext(c.Context(), "Alert statuses reset", "count", count, "by", caller(c).Email)
	h.deps.Hub.Broadcast("alert", fiber.Map{"reset": true, "count": count})

	return c.JSON(fiber.Map{"reset": count})
}
