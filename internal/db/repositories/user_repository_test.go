package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/feedbase/feedbase/internal/db/models"
)

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var userCols = []string{
	"id", "name", "email", "password_hash", "role",
	"country_id", "organization_id", "is_active", "created_at", "updated_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow("user-1", "Alice", "alice@example.com", nil, models.RoleMember,
			nil, nil, true, time.Now(), time.Now())
}

func emptyUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols)
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetByEmail / GetByID
// ---------------------------------------------------------------------------

func TestUserGetByEmail_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %s, want alice@example.com", user.Email)
	}
}

func TestUserGetByEmail_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE email").
		WillReturnRows(emptyUserRow())

	user, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil, got %+v", user)
	}
}

func TestUserGetByID_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnError(errDB)

	if _, err := repo.GetByID(context.Background(), "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserCreate_FillsGeneratedFields(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Alice", "alice@example.com", models.RoleMember, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow("user-new", true, time.Now(), time.Now()))

	user := &models.User{Name: "Alice", Email: "alice@example.com", Role: models.RoleMember}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "user-new" {
		t.Errorf("ID = %s, want user-new", user.ID)
	}
	if !user.IsActive {
		t.Error("IsActive = false, want true")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(errDB)

	user := &models.User{Name: "Alice", Email: "alice@example.com", Role: models.RoleMember}
	if err := repo.Create(context.Background(), user); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// UpdateRole
// ---------------------------------------------------------------------------

func TestUserUpdateRole_ReplacesScope(t *testing.T) {
	repo, mock := newUserRepo(t)
	orgID := "org-1"
	mock.ExpectExec("UPDATE users.*SET role.*country_id.*organization_id").
		WithArgs("user-1", models.RoleOrganizationAdmin, nil, &orgID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateRole(context.Background(), "user-1", models.RoleOrganizationAdmin, nil, &orgID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserUpdateRole_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users.*SET role").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRole(context.Background(), "ghost", models.RoleMember, nil, nil)
	if err == nil {
		t.Error("expected error for missing user, got nil")
	}
}

// ---------------------------------------------------------------------------
// ClearPasswordHash
// ---------------------------------------------------------------------------

func TestUserClearPasswordHash(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users SET password_hash = NULL").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ClearPasswordHash(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestUserList(t *testing.T) {
	repo, mock := newUserRepo(t)
	rows := sqlmock.NewRows(userCols).
		AddRow("user-1", "Alice", "alice@example.com", nil, models.RoleMember,
			nil, nil, true, time.Now(), time.Now()).
		AddRow("user-2", "Bob", "bob@example.com", nil, models.RoleSuperadmin,
			nil, nil, true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT.*FROM users.*ORDER BY created_at").
		WithArgs(50, 0).
		WillReturnRows(rows)

	users, err := repo.List(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("len(users) = %d, want 2", len(users))
	}
}
