package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/feedbase/feedbase/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var usageCols = []string{
	"id", "organization_id", "api_key_id", "endpoint", "method",
	"response_status", "response_time_ms", "created_at",
}

func newUsageRepo(t *testing.T) (*UsageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUsageRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// ReserveSlot
// ---------------------------------------------------------------------------

// The quota property rests on this statement: the window count and the
// append must be one unit, so no request can pass the check and then dodge
// the accounting.
func TestUsageReserveSlot_GuardAndAppendAreOneStatement(t *testing.T) {
	repo, mock := newUsageRepo(t)
	windowStart := time.Now().Add(-time.Hour)
	keyID := "key-1"
	mock.ExpectQuery("INSERT INTO api_usage .*SELECT .*"+
		"SELECT COUNT.*FROM api_usage WHERE organization_id = .*created_at > .*"+
		"RETURNING id").
		WithArgs("org-1", &keyID, "/api/v1/recommend", "POST", windowStart, 1000).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("usage-1"))

	id, ok, err := repo.ReserveSlot(context.Background(), "org-1", &keyID, "/api/v1/recommend", "POST", 1000, windowStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected slot under quota, got ok=false")
	}
	if id != "usage-1" {
		t.Errorf("id = %s, want usage-1", id)
	}
}

func TestUsageReserveSlot_QuotaExhausted(t *testing.T) {
	repo, mock := newUsageRepo(t)
	// The guarded INSERT writes nothing when the window is full.
	mock.ExpectQuery("INSERT INTO api_usage").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, ok, err := repo.ReserveSlot(context.Background(), "org-1", nil, "/api/v1/recommend", "POST", 1, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false past the limit")
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
}

func TestUsageReserveSlot_DBError(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO api_usage").
		WillReturnError(errDB)

	if _, _, err := repo.ReserveSlot(context.Background(), "org-1", nil, "/x", "GET", 10, time.Now()); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Finalize / Record
// ---------------------------------------------------------------------------

func TestUsageFinalize(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectExec("UPDATE api_usage SET response_status").
		WithArgs("usage-1", 200, 41).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Finalize(context.Background(), "usage-1", 200, 41); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUsageRecord(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO api_usage").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("usage-2", time.Now()))

	rec := &models.UsageRecord{
		OrganizationID: "org-1",
		Endpoint:       "/api/v1/recommend",
		Method:         "POST",
		ResponseStatus: 200,
		ResponseTimeMs: 12,
	}
	if err := repo.Record(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "usage-2" {
		t.Errorf("ID = %s, want usage-2", rec.ID)
	}
}

// ---------------------------------------------------------------------------
// CountSince / OldestInWindow
// ---------------------------------------------------------------------------

func TestUsageCountSince(t *testing.T) {
	repo, mock := newUsageRepo(t)
	since := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT COUNT.*FROM api_usage WHERE organization_id").
		WithArgs("org-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountSince(context.Background(), "org-1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Errorf("count = %d, want 42", count)
	}
}

func TestUsageOldestInWindow_Found(t *testing.T) {
	repo, mock := newUsageRepo(t)
	oldest := time.Now().Add(-50 * time.Minute)
	mock.ExpectQuery("SELECT created_at FROM api_usage.*ORDER BY created_at ASC.*LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(oldest))

	got, err := repo.OldestInWindow(context.Background(), "org-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(oldest) {
		t.Errorf("oldest = %v, want %v", got, oldest)
	}
}

func TestUsageOldestInWindow_EmptyWindow(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT created_at FROM api_usage").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	got, err := repo.OldestInWindow(context.Background(), "org-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("oldest = %v, want zero time", got)
	}
}

// ---------------------------------------------------------------------------
// ListByOrganization
// ---------------------------------------------------------------------------

func TestUsageListByOrganization(t *testing.T) {
	repo, mock := newUsageRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows(usageCols).
		AddRow("usage-1", "org-1", nil, "/api/v1/recommend", "POST", 200, 12, now).
		AddRow("usage-2", "org-1", nil, "/api/v1/recommend", "POST", 429, 1, now)
	mock.ExpectQuery("SELECT.*FROM api_usage.*ORDER BY created_at DESC").
		WillReturnRows(rows)

	records, err := repo.ListByOrganization(context.Background(), "org-1", now.Add(-24*time.Hour), now, 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[1].ResponseStatus != 429 {
		t.Errorf("ResponseStatus = %d, want 429", records[1].ResponseStatus)
	}
}
