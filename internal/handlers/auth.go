package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/database"
	"github.com/varianta/varianta/internal/logging"
	"github.com/varianta/varianta/internal/middleware"
	"github.com/varianta/varianta/internal/models"
)

// secureCookies mirrors the config flag; serve.go sets it at startup.
var secureCookies = true

// SetSecureCookies configures cookie security attributes.
func SetSecureCookies(v bool) {
	secureCookies = v
}

// LoginRequest is the /api/auth/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin → POST /api/auth/login
// Verifies credentials and issues a session cookie.
func HandleLogin(c fiber.Ctx) error {
	var req LoginRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if req.Username == "" || req.Password == "" {
		return c.Status(400).JSON(fiber.Map{"error": "username and password are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := models.ValidateUser(ctx, database.DB, req.Username, req.Password)
	if err != nil {
		logging.L().Error("login validation failed", zap.String("username", req.Username), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "Authentication error"})
	}
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "Invalid username or password"})
	}

	token, expiresAt, err := models.CreateSession(ctx, database.DB, user.UserID)
	if err != nil {
		logging.L().Error("session creation failed", zap.String("username", req.Username), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create session"})
	}

	c.Cookie(sessionCookie(token, expiresAt))

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"user_id":  user.UserID,
			"username": user.Username,
		},
	})
}

// HandleLogout → POST /api/auth/logout
func HandleLogout(c fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "Not authenticated"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := models.DeleteSession(ctx, database.DB, user.TokenHash); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to logout"})
	}

	// Expire the cookie
	c.Cookie(sessionCookie("", time.Now().Add(-1*time.Hour)))

	return c.JSON(fiber.Map{"status": "logged out"})
}

func sessionCookie(token string, expiresAt time.Time) *fiber.Cookie {
	sameSite := "Lax"
	if secureCookies {
		sameSite = "None"
	}
	return &fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   secureCookies,
		SameSite: sameSite,
		Path:     "/",
	}
}
