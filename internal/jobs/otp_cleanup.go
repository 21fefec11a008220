// Package jobs contains background workers that run on a schedule.
// The OTP cleanup job prunes expired one-time codes so that the otp_codes
// table does not grow without bound. Jobs are designed to be idempotent:
// re-running after a crash produces the same result as a clean run.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/feedbase/feedbase/internal/config"
	"github.com/feedbase/feedbase/internal/db/repositories"
)

// OtpCleanupJob periodically deletes OTP rows whose expiry is older than the
// configured retention. Expired codes are already unusable (expiry is checked
// by timestamp on every verification); keeping them for a retention window
// lets operators inspect recent failed logins before the rows disappear.
type OtpCleanupJob struct {
	otpRepo   *repositories.OtpRepository
	interval  time.Duration
	retention time.Duration
	stopChan  chan struct{}
}

// NewOtpCleanupJob creates the cleanup job from the jobs config section.
func NewOtpCleanupJob(otpRepo *repositories.OtpRepository, cfg config.JobsConfig) *OtpCleanupJob {
	return &OtpCleanupJob{
		otpRepo:   otpRepo,
		interval:  cfg.OtpCleanupInterval,
		retention: cfg.OtpRetention,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called or ctx is cancelled.
// Callers run it in a goroutine.
func (j *OtpCleanupJob) Start(ctx context.Context) {
	if j.retention <= 0 {
		slog.Info("otp cleanup job disabled (jobs.otp_retention not set)")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("otp cleanup job started",
		"interval", j.interval,
		"retention", j.retention,
	)

	// Run once immediately on startup
	j.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-j.stopChan:
			slog.Info("otp cleanup job stopped")
			return
		case <-ctx.Done():
			slog.Info("otp cleanup job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *OtpCleanupJob) Stop() {
	close(j.stopChan)
}

func (j *OtpCleanupJob) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)

	deleted, err := j.otpRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		slog.Error("otp cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("otp cleanup pruned expired codes", "deleted", deleted, "cutoff", cutoff)
	}
}
