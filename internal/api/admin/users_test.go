package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/db/repositories"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// userSQLCols are the columns returned by user SELECT queries.
var userSQLCols = []string{
	"id", "name", "email", "password_hash", "role",
	"country_id", "organization_id", "is_active", "created_at", "updated_at",
}

// orgSQLCols are the columns returned by organization SELECT queries.
var orgSQLCols = []string{
	"id", "name", "slug", "contact_email", "is_active",
	"rate_limit_per_hour", "created_at", "updated_at",
}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols).
		AddRow("user-1", "Alice", "alice@example.com", nil, "member",
			nil, nil, true, time.Now(), time.Now())
}

func emptyUserRows() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols)
}

func sampleOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgSQLCols).
		AddRow("org-1", "Acme Feeds", "acme-feeds", "ops@acme.example", true,
			1000, time.Now(), time.Now())
}

func emptyOrgRows() *sqlmock.Rows {
	return sqlmock.NewRows(orgSQLCols)
}

// newUserRouter creates a gin router with all UserHandlers routes registered.
func newUserRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewUserHandlers(repositories.NewUserRepository(db), nil)

	r := gin.New()
	r.GET("/users", h.List)
	r.PUT("/users/:id/role", h.UpdateRole)

	return mock, r
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

// errDB is a sentinel error for DB failures in tests.
var errDB = &dbError{"database error"}

type dbError struct{ msg string }

func (e *dbError) Error() string { return e.msg }

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestListUsers_Success(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT .* FROM users").
		WillReturnRows(sampleUserRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["users"] == nil {
		t.Error("response missing 'users' key")
	}
}

func TestListUsers_DBError(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT .* FROM users").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// UpdateRole
// ---------------------------------------------------------------------------

func TestUpdateRole_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing role", map[string]interface{}{}},
		{"unknown role", map[string]interface{}{"role": "emperor"}},
		{"country_admin without country_id", map[string]interface{}{"role": "country_admin"}},
		{"country_admin with empty country_id", map[string]interface{}{"role": "country_admin", "country_id": ""}},
		{"organization_admin without organization_id", map[string]interface{}{"role": "organization_admin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newUserRouter(t)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/user-1/role", jsonBody(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateRole_Superadmin(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT .* FROM users WHERE id").
		WillReturnRows(sampleUserRow())
	mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/user-1/role",
		jsonBody(map[string]interface{}{"role": "superadmin"})))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["role"] != "superadmin" {
		t.Errorf("role = %v, want superadmin", resp["role"])
	}
}

func TestUpdateRole_CountryAdminWithScope(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT .* FROM users WHERE id").
		WillReturnRows(sampleUserRow())
	mock.ExpectExec("UPDATE users").
		WithArgs("user-1", "country_admin", "ke", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/user-1/role",
		jsonBody(map[string]interface{}{"role": "country_admin", "country_id": "ke"})))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["country_id"] != "ke" {
		t.Errorf("country_id = %v, want ke", resp["country_id"])
	}
	if resp["organization_id"] != nil {
		t.Errorf("organization_id = %v, want cleared", resp["organization_id"])
	}
}

func TestUpdateRole_UserNotFound(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT .* FROM users WHERE id").
		WillReturnRows(emptyUserRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/nope/role",
		jsonBody(map[string]interface{}{"role": "member"})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404: body=%s", w.Code, w.Body.String())
	}
}
