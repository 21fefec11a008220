// service.go implements the OTP service: request with a rolling-hour cap,
// verify with atomic single-use consumption, delivery via the mailer.
package otp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/mailer"
	"github.com/feedbase/feedbase/internal/safego"
	"github.com/feedbase/feedbase/internal/telemetry"
)

// Store is the persistence surface the service needs. Implemented by
// repositories.OtpRepository; narrowed to an interface so service tests can
// run against a fake without a database.
type Store interface {
	CountCreatedSince(ctx context.Context, email string, purpose models.OtpPurpose, since time.Time) (int, error)
	ReplaceActive(ctx context.Context, otp *models.OtpCode) error
	Consume(ctx context.Context, email string, purpose models.OtpPurpose, code string, maxAttempts int, now time.Time) (*models.OtpCode, error)
	GetLatest(ctx context.Context, email string, purpose models.OtpPurpose) (*models.OtpCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
}

// Config holds the OTP policy knobs.
type Config struct {
	CodeLength      int           // Digits per code (default 6)
	TTL             time.Duration // Code lifetime (default 10 minutes)
	MaxAttempts     int           // Per-code verification ceiling (default 5)
	RequestsPerHour int           // Per (email, purpose) rolling-hour request cap (default 5)
}

// DefaultConfig returns the standard OTP policy.
func DefaultConfig() Config {
	return Config{
		CodeLength:      6,
		TTL:             10 * time.Minute,
		MaxAttempts:     5,
		RequestsPerHour: 5,
	}
}

// Service issues and verifies one-time passcodes.
type Service struct {
	store  Store
	mailer mailer.Mailer
	cfg    Config

	// now is swappable in tests to exercise expiry arithmetic.
	now func() time.Time
}

// NewService creates an OTP service.
func NewService(store Store, m mailer.Mailer, cfg Config) *Service {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = 5
	}
	if m == nil {
		m = mailer.Noop{}
	}
	return &Service{store: store, mailer: m, cfg: cfg, now: time.Now}
}

// Request issues a new code for (email, purpose) and hands it to the delivery
// channel. The rolling-hour cap is checked first: when exhausted it fails with
// ErrRateLimited and no code row is created. Issuing a replacement retires any
// previous live code, so at most one code per identity is ever valid.
//
// Delivery runs in the background; the caller's 202 never waits on SMTP, and
// a delivery failure is logged, never reported to the requester (which would
// confirm whether the address is known).
func (s *Service) Request(ctx context.Context, email string, purpose models.OtpPurpose) error {
	now := s.now()

	count, err := s.store.CountCreatedSince(ctx, email, purpose, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("otp request: %w", err)
	}
	if count >= s.cfg.RequestsPerHour {
		telemetry.OtpRequestsTotal.WithLabelValues(string(purpose), "rate_limited").Inc()
		return ErrRateLimited
	}

	code, err := GenerateCode(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("otp request: %w", err)
	}

	record := &models.OtpCode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.ReplaceActive(ctx, record); err != nil {
		return fmt.Errorf("otp request: %w", err)
	}

	telemetry.OtpRequestsTotal.WithLabelValues(string(purpose), "issued").Inc()

	msg := mailer.OtpMessage{
		Email:            email,
		Code:             code,
		Purpose:          string(purpose),
		ExpiresInSeconds: int(s.cfg.TTL.Seconds()),
	}
	m := s.mailer
	safego.Go(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.SendOtp(sendCtx, msg); err != nil {
			slog.Error("otp email delivery failed", "purpose", purpose, "error", err)
		}
	})

	return nil
}

// Verify checks a presented code against the latest live code for
// (email, purpose). On match the code is consumed atomically; among N
// concurrent calls with the same valid code, exactly one succeeds and the
// rest fail with ErrAlreadyUsed. On mismatch the attempt counter is
// incremented; once it reaches the ceiling the code is dead even if unexpired.
func (s *Service) Verify(ctx context.Context, email, code string, purpose models.OtpPurpose) (*models.OtpCode, error) {
	now := s.now()

	consumed, err := s.store.Consume(ctx, email, purpose, code, s.cfg.MaxAttempts, now)
	if err != nil {
		return nil, fmt.Errorf("otp verify: %w", err)
	}
	if consumed != nil {
		telemetry.OtpVerificationsTotal.WithLabelValues(string(purpose), "success").Inc()
		return consumed, nil
	}

	// No row qualified. Classify against the latest code so operators can
	// tell brute-forcing from stale codes; the client sees one generic error
	// either way.
	subtype := s.classifyFailure(ctx, email, purpose, now)
	if IsOtpError(subtype) {
		telemetry.OtpVerificationsTotal.WithLabelValues(string(purpose), failureLabel(subtype)).Inc()
	}
	return nil, subtype
}

func (s *Service) classifyFailure(ctx context.Context, email string, purpose models.OtpPurpose, now time.Time) error {
	latest, err := s.store.GetLatest(ctx, email, purpose)
	if err != nil {
		return fmt.Errorf("otp verify: %w", err)
	}
	if latest == nil {
		return ErrInvalidCode
	}
	if latest.IsUsed {
		return ErrAlreadyUsed
	}
	if latest.Attempts >= s.cfg.MaxAttempts {
		return ErrAttemptsExceeded
	}
	if now.After(latest.ExpiresAt) {
		// Expired codes keep is_used = false; expiry is enforced purely by
		// timestamp comparison.
		return ErrExpired
	}

	// Live code, wrong digits: this attempt counts against the ceiling.
	attempts, err := s.store.IncrementAttempts(ctx, latest.ID)
	if err != nil {
		return fmt.Errorf("otp verify: %w", err)
	}
	if attempts >= s.cfg.MaxAttempts {
		return ErrAttemptsExceeded
	}
	return ErrInvalidCode
}

func failureLabel(err error) string {
	switch err {
	case ErrExpired:
		return "expired"
	case ErrAlreadyUsed:
		return "already_used"
	case ErrAttemptsExceeded:
		return "attempts_exceeded"
	default:
		return "mismatch"
	}
}
