package handlers

import (
	"io"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/varianta/varianta/internal/middleware"
)

func newAuthApp() *fiber.App {
	app := fiber.New()
	app.Post("/api/auth/login", HandleLogin)
	app.Post("/api/auth/logout", HandleLogout)
	return app
}

func loginUserRows(t *testing.T, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"user_id", "username", "password_hash", "name", "created_at"}).
		AddRow(uuid.New(), "admin", string(hash), nil, "2025-01-01T00:00:00Z")
}

func TestHandleLoginMissingFields(t *testing.T) {
	app := newAuthApp()
	resp := postJSON(t, app, "/api/auth/login", `{"username":"admin"}`)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandleLoginWrongPassword(t *testing.T) {
	mock := useMockDB(t)
	mock.ExpectQuery("SELECT user_id, username, password_hash").
		WithArgs("admin").
		WillReturnRows(loginUserRows(t, "s3cret"))

	app := newAuthApp()
	resp := postJSON(t, app, "/api/auth/login", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, 401, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Invalid username or password")
}

func TestHandleLoginSuccessSetsCookie(t *testing.T) {
	mock := useMockDB(t)
	mock.ExpectQuery("SELECT user_id, username, password_hash").
		WithArgs("admin").
		WillReturnRows(loginUserRows(t, "s3cret"))
	mock.ExpectExec("INSERT INTO user_sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := newAuthApp()
	resp := postJSON(t, app, "/api/auth/login", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, 200, resp.StatusCode)

	var sessionCookie *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == middleware.SessionCookieName {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie, "expected a session cookie")
	assert.NotEmpty(t, sessionCookie.Value)
	assert.True(t, sessionCookie.HttpOnly)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "admin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleLogoutRequiresAuth(t *testing.T) {
	app := newAuthApp()
	resp := postJSON(t, app, "/api/auth/logout", `{}`)
	assert.Equal(t, 401, resp.StatusCode)
}
