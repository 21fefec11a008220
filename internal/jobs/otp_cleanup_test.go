package jobs

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/feedbase/feedbase/internal/config"
	"github.com/feedbase/feedbase/internal/db/repositories"
)

func newCleanupJob(t *testing.T, cfg config.JobsConfig) (sqlmock.Sqlmock, *OtpCleanupJob) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repositories.NewOtpRepository(sqlx.NewDb(db, "sqlmock"))
	return mock, NewOtpCleanupJob(repo, cfg)
}

func TestOtpCleanup_RunOncePrunes(t *testing.T) {
	mock, job := newCleanupJob(t, config.JobsConfig{
		OtpCleanupInterval: time.Hour,
		OtpRetention:       24 * time.Hour,
	})

	mock.ExpectExec("DELETE FROM otp_codes").
		WillReturnResult(sqlmock.NewResult(0, 3))

	job.runOnce(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// timeNear matches a time.Time argument within a second of the expected value.
type timeNear struct{ want time.Time }

func (m timeNear) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	if !ok {
		return false
	}
	d := ts.Sub(m.want)
	return d > -time.Second && d < time.Second
}

func TestOtpCleanup_CutoffRespectsRetention(t *testing.T) {
	retention := 24 * time.Hour
	mock, job := newCleanupJob(t, config.JobsConfig{
		OtpCleanupInterval: time.Hour,
		OtpRetention:       retention,
	})

	mock.ExpectExec("DELETE FROM otp_codes").
		WithArgs(timeNear{want: time.Now().Add(-retention)}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	job.runOnce(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOtpCleanup_DisabledWithoutRetention(t *testing.T) {
	mock, job := newCleanupJob(t, config.JobsConfig{
		OtpCleanupInterval: time.Hour,
		OtpRetention:       0,
	})

	// Start returns immediately when retention is unset; no query runs.
	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return for disabled job")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected queries: %v", err)
	}
}

func TestOtpCleanup_StopEndsLoop(t *testing.T) {
	mock, job := newCleanupJob(t, config.JobsConfig{
		OtpCleanupInterval: time.Hour,
		OtpRetention:       24 * time.Hour,
	})

	// The immediate startup run.
	mock.ExpectExec("DELETE FROM otp_codes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	job.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
