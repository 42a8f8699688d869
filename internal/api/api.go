package api

import (
	"errors"
	"log/slog"

	"whereabouts/internal/authz"
	"whereabouts/internal/broadcast"
	"whereabouts/internal/config"
	"whereabouts/internal/database"
	"whereabouts/internal/group"
	"whereabouts/internal/i18n"
	"whereabouts/internal/monitoring"
	"whereabouts/internal/person"
	"whereabouts/internal/presence"
	"whereabouts/internal/ratelimit"
	"whereabouts/internal/transfer"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

var validate = validator.New()

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Logger     *slog.Logger
	DB         *database.Database
	Translator *i18n.Translator
	Telemetry  monitoring.Telemetry
	Groups     *group.Manager
	Persons    *person.Manager
	Transfers  *transfer.Manager
	Deriver    *authz.Deriver
	Presence   *presence.Cache
	Hub        *broadcast.Hub
	Limiter    *ratelimit.Limiter
}

// NewApp builds the fiber application with all routes mounted.
func NewApp(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		AppName:      "whereabouts",
	})

	app.Use(RequestLogger(deps.Logger))
	app.Use(Language())
	app.Use(monitoring.FiberMiddleware(deps.Telemetry, cfg.Telemetry.ServiceName))

	groupHandler := NewGroupHandler(deps)
	personHandler := NewPersonHandler(deps)
	transferHandler := NewTransferHandler(deps)
	alertHandler := NewAlertHandler(deps)

	api := app.Group("/api")
	api.Get("/health", Health(deps.DB))

	authed := api.Group("", Authenticate(deps))

	authed.Get("/groups/person/:personId", groupHandler.GroupsOfPerson)
	authed.Get("/groups/person/:personId/command-chain", groupHandler.CommandChain)
	authed.Get("/groups/person/:personId/roles", groupHandler.RolesInGroups)
	authed.Get("/groups/subordinate-command-groups/:managerId", groupHandler.SubordinateCommandGroups)
	authed.Get("/groups/check-name-exists/:name", groupHandler.CheckNameExists)
	authed.Post("/groups", RateLimit(deps), groupHandler.Create)

	authed.Get("/persons/:id", personHandler.Get)
	authed.Patch("/persons/:id/status", RateLimit(deps), personHandler.UpdateStatus)
	authed.Put("/users/:id/details", RateLimit(deps), personHandler.UpdateDetails)

	authed.Post("/users/:id/move", RateLimit(deps), transferHandler.Propose)
	authed.Patch("/users/:id/move", RateLimit(deps), transferHandler.Confirm)
	authed.Delete("/users/:id/move", RateLimit(deps), transferHandler.Cancel)

	authed.Post("/alerts/reset", RateLimit(deps), alertHandler.Reset)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		deps.Hub.Handle(conn)
	}))

	return app
}

// respondError translates an error into the HTTP status and localized
// message the taxonomy prescribes. Unexpected errors are logged and hidden
// behind a generic 500.
func respondError(c *fiber.Ctx, deps Deps, err error) error {
	lang := requestLanguage(c)

	type mapping struct {
		target error
		status int
		key    string
	}
	mappings := []mapping{
		{database.ErrPersonNotFound, fiber.StatusNotFound, "error.person_not_found"},
		{database.ErrGroupNotFound, fiber.StatusNotFound, "error.group_not_found"},
		{database.ErrTransferNotFound, fiber.StatusNotFound, "error.transfer_not_found"},
		{database.ErrGroupNameTaken, fiber.StatusConflict, "error.group_name_taken"},
		{database.ErrInvalidTransferSide, fiber.StatusBadRequest, "error.internal"},
		{person.ErrGroupSelection, fiber.StatusBadRequest, "error.group_selection"},
		{transfer.ErrUnknownSite, fiber.StatusBadRequest, "error.unknown_site"},
		{transfer.ErrNotAuthorized, fiber.StatusForbidden, "error.not_permitted"},
		{ratelimit.ErrTooManyRequests, fiber.StatusTooManyRequests, "error.too_many_requests"},
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return c.Status(m.status).JSON(fiber.Map{
				"error": deps.Translator.T(lang, m.key),
			})
		}
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validationErrs.Error(),
		})
	}

	deps.Logger.ErrorContext(c.Context(), "Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": deps.Translator.T(lang, "error.internal"),
	})
}
