package api

import (
	"log/slog"
	"strings"

	"whereabouts/internal/database"
	"whereabouts/internal/i18n"

	"github.com/gofiber/fiber/v2"
)

const (
	localsCaller   = "caller"
	localsLanguage = "lang"
)

// Authenticate resolves the calling person from the X-User-Email header.
// Authentication proper (SSO, tokens) happens upstream of this service; by
// the time a request arrives the header is trusted.
func Authenticate(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		email := strings.TrimSpace(strings.ToLower(c.Get("X-User-Email")))
		if email == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": deps.Translator.T(requestLanguage(c), "error.unauthenticated"),
			})
		}

		caller, err := deps.DB.GetPersonByEmail(c.Context(), email)
		if err != nil {
			if err == database.ErrPersonNotFound {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": deps.Translator.T(requestLanguage(c), "error.unauthenticated"),
				})
			}
			return respondError(c, deps, err)
		}

		c.Locals(localsCaller, caller)
		return c.Next()
	}
}

func caller(c *fiber.Ctx) database.Person {
	person, _ := c.Locals(localsCaller).(database.Person)
	return person
}

// Language picks the response language from Accept-Language, defaulting to
// Hebrew.
func Language() fiber.Handler {
	return func(c *fiber.Ctx) error {
		lang := i18n.HE
		accept := c.Get("Accept-Language")
		if strings.HasPrefix(accept, "en") {
			lang = i18n.EN
		}
		c.Locals(localsLanguage, lang)
		return c.Next()
	}
}

func requestLanguage(c *fiber.Ctx) i18n.Language {
	if lang, ok := c.Locals(localsLanguage).(i18n.Language); ok {
		return lang
	}
	return i18n.HE
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		logger.Info("Request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"ip", c.IP(),
		)
		return err
	}
}

// RateLimit throttles mutating requests per caller.
func RateLimit(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if person, ok := c.Locals(localsCaller).(database.Person); ok {
			key = person.Email
		}
		if err := deps.Limiter.Check(c.Context(), key); err != nil {
			return respondError(c, deps, err)
		}
		return c.Next()
	}
}
