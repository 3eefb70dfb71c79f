package middleware

import (
	"context"
	"database/sql"

	"github.com/gofiber/fiber/v3"

	"github.com/varianta/varianta/internal/database"
	"github.com/varianta/varianta/internal/models"
)

// SessionCookieName is the dashboard login cookie.
const SessionCookieName = "varianta_session"

// sessionValidator is the function used to resolve session tokens (can be mocked in tests)
var sessionValidator = validateSessionFromDB

// RequireAuth middleware guards the dashboard and management API.
// It resolves the session cookie to a user and stores it in locals.
func RequireAuth(c fiber.Ctx) error {
	token := c.Cookies(SessionCookieName)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	user, err := sessionValidator(models.HashSessionToken(token))

	if err == sql.ErrNoRows {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Session expired",
		})
	}

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Authentication error",
		})
	}

	c.Locals("user", user)

	return c.Next()
}

// validateSessionFromDB resolves a session token hash against the database
func validateSessionFromDB(tokenHash string) (*models.SessionUser, error) {
	return models.GetSessionUser(context.Background(), database.DB, tokenHash)
}

// GetUser retrieves the authenticated user from context
func GetUser(c fiber.Ctx) *models.SessionUser {
	if user, ok := c.Locals("user").(*models.SessionUser); ok {
		return user
	}
	return nil
}

// SetSessionValidator allows tests to inject a mock validator
func SetSessionValidator(validator func(string) (*models.SessionUser, error)) {
	sessionValidator = validator
}

// ResetSessionValidator resets the validator to the default implementation
func ResetSessionValidator() {
	sessionValidator = validateSessionFromDB
}
