package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudshelf/cloudshelf/internal/auth"
	"github.com/cloudshelf/cloudshelf/internal/config"
	"github.com/cloudshelf/cloudshelf/internal/db"
	"github.com/cloudshelf/cloudshelf/internal/jobs"
	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
)

func userColumnSlice() []string {
	return []string{"id", "username", "email", "password_hash", "role", "is_active", "last_login_at", "created_at", "updated_at"}
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	cfg := &config.Config{
		Port:          8080,
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		DriveEndpoint: "https://drive.local",
		DriveUsername: "admin",
		DrivePassword: "secret",
		DriveRootPath: "/media",
		DriveEnabled:  true,
		TMDBAPIKey:    "tmdb-key",
	}

	srv, err := NewServer(cfg, &db.DB{DB: mockDB}, jobs.NewQueue("127.0.0.1:6379"), refresh.NewCache())
	require.NoError(t, err)
	return srv, mock
}

func mintToken(t *testing.T, role models.UserRole) (string, uuid.UUID) {
	t.Helper()
	a, err := auth.NewAuth("test-secret", time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	token, err := a.GenerateToken(&models.User{ID: id, Username: "tester", Role: role})
	require.NoError(t, err)
	return token, id
}

func doRequest(srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// expectSessionAllowed satisfies the middleware's revocation check via
// the legacy path: no sessions tracked at all.
func expectSessionAllowed(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM user_sessions`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
}

// ──────────────────── Tests ────────────────────

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSetupCheckRequired(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	rec := doRequest(srv, "GET", "/api/v1/setup/check", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["setup_required"])
}

func TestSetupCreatesFirstAdmin(t *testing.T) {
	srv, mock := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_sessions`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(srv, "POST", "/api/v1/setup", "", SetupRequest{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])

	user := data["user"].(map[string]interface{})
	assert.Equal(t, "admin", user["username"])
	assert.Equal(t, "admin", user["role"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupRefusedOnceUsersExist(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rec := doRequest(srv, "POST", "/api/v1/setup", "", SetupRequest{
		Username: "intruder", Email: "x@example.com", Password: "p",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeResponse(t, rec).Error, "already completed")
}

func TestLoginSuccess(t *testing.T) {
	srv, mock := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	userID := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumnSlice()).
			AddRow(userID.String(), "alice", "alice@example.com", string(hash), "user", true, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_sessions`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET last_login_at`)).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(srv, "POST", "/api/v1/auth/login", "", LoginRequest{
		Username: "alice", Password: "hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])

	user := data["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	_, hasHash := user["password_hash"]
	assert.False(t, hasHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginWrongPassword(t *testing.T) {
	srv, mock := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("other"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumnSlice()).
			AddRow(uuid.New().String(), "alice", "alice@example.com", string(hash), "user", true, nil, now, now))

	rec := doRequest(srv, "POST", "/api/v1/auth/login", "", LoginRequest{
		Username: "alice", Password: "hunter2",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeResponse(t, rec).Error)
}

func TestLoginUnknownUser(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumnSlice()))

	rec := doRequest(srv, "POST", "/api/v1/auth/login", "", LoginRequest{
		Username: "ghost", Password: "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginDisabledAccount(t *testing.T) {
	srv, mock := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumnSlice()).
			AddRow(uuid.New().String(), "alice", "alice@example.com", string(hash), "user", false, nil, now, now))

	rec := doRequest(srv, "POST", "/api/v1/auth/login", "", LoginRequest{
		Username: "alice", Password: "hunter2",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeResponse(t, rec).Error, "disabled")
}

func TestProfileRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/v1/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authorization", decodeResponse(t, rec).Error)
}

func TestProfileRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/v1/profile", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decodeResponse(t, rec).Error)
}

func TestProfileWithValidToken(t *testing.T) {
	srv, mock := newTestServer(t)
	token, userID := mintToken(t, models.RoleUser)

	expectSessionAllowed(mock)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userColumnSlice()).
			AddRow(userID.String(), "tester", "tester@example.com", "hash", "user", true, nil, now, now))

	rec := doRequest(srv, "GET", "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	user := resp.Data.(map[string]interface{})
	assert.Equal(t, "tester", user["username"])
}

func TestRevokedSessionIsRejected(t *testing.T) {
	srv, mock := newTestServer(t)
	token, _ := mintToken(t, models.RoleUser)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM user_sessions`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := doRequest(srv, "GET", "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session revoked", decodeResponse(t, rec).Error)
}

func TestAdminEndpointForbiddenForUserRole(t *testing.T) {
	srv, mock := newTestServer(t)
	token, _ := mintToken(t, models.RoleUser)

	expectSessionAllowed(mock)

	rec := doRequest(srv, "POST", "/api/v1/refresh", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "insufficient permissions", decodeResponse(t, rec).Error)
}

func TestLogoutDeletesSession(t *testing.T) {
	srv, mock := newTestServer(t)
	token, _ := mintToken(t, models.RoleUser)

	expectSessionAllowed(mock)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_sessions WHERE token_hash = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(srv, "POST", "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "logged_out", data["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
