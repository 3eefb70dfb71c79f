package middleware

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varianta/varianta/internal/models"
)

func stubSessionValidator(t *testing.T, stub func(tokenHash string) (*models.SessionUser, error)) {
	t.Helper()
	original := sessionValidator
	SetSessionValidator(stub)
	t.Cleanup(func() {
		sessionValidator = original
	})
}

func newSessionTestApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(RequireAuth)
	app.Get("/", handler)
	return app
}

func TestRequireAuthNoCookie(t *testing.T) {
	app := newSessionTestApp(func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)
	assert.Contains(t, string(body), "Not authenticated")
}

func TestRequireAuthExpiredSession(t *testing.T) {
	stubSessionValidator(t, func(tokenHash string) (*models.SessionUser, error) {
		return nil, sql.ErrNoRows
	})

	app := newSessionTestApp(func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stale-token"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)
	assert.Contains(t, string(body), "Session expired")
}

func TestRequireAuthDatabaseError(t *testing.T) {
	stubSessionValidator(t, func(tokenHash string) (*models.SessionUser, error) {
		return nil, sql.ErrConnDone
	})

	app := newSessionTestApp(func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "some-token"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestRequireAuthSuccess(t *testing.T) {
	expectedUser := &models.SessionUser{
		UserID:   uuid.New(),
		Username: "admin",
	}

	var seenHash string
	stubSessionValidator(t, func(tokenHash string) (*models.SessionUser, error) {
		seenHash = tokenHash
		return expectedUser, nil
	})

	var capturedUser *models.SessionUser

	app := newSessionTestApp(func(c fiber.Ctx) error {
		capturedUser = GetUser(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "raw-token"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Middleware must hash the raw cookie value before lookup
	assert.Equal(t, models.HashSessionToken("raw-token"), seenHash)

	require.NotNil(t, capturedUser)
	assert.Equal(t, expectedUser.UserID, capturedUser.UserID)
	assert.Equal(t, "admin", capturedUser.Username)
}

func TestHashSessionTokenDeterministic(t *testing.T) {
	first := models.HashSessionToken("token")
	second := models.HashSessionToken("token")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, models.HashSessionToken("other"))
}
