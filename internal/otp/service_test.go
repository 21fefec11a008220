package otp

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/mailer"
)

// fakeStore mimics the repository semantics against a single in-memory code.
type fakeStore struct {
	countSince int
	latest     *models.OtpCode
	created    []*models.OtpCode
	retired    int
}

func (f *fakeStore) CountCreatedSince(ctx context.Context, email string, purpose models.OtpPurpose, since time.Time) (int, error) {
	return f.countSince, nil
}

func (f *fakeStore) ReplaceActive(ctx context.Context, code *models.OtpCode) error {
	if f.latest != nil && !f.latest.IsUsed {
		f.latest.IsUsed = true
		f.retired++
	}
	code.ID = "otp-1"
	f.created = append(f.created, code)
	f.latest = code
	return nil
}

func (f *fakeStore) Consume(ctx context.Context, email string, purpose models.OtpPurpose, code string, maxAttempts int, now time.Time) (*models.OtpCode, error) {
	l := f.latest
	if l == nil || l.IsUsed || l.Attempts >= maxAttempts || now.After(l.ExpiresAt) || l.Code != code {
		return nil, nil
	}
	l.IsUsed = true
	return l, nil
}

func (f *fakeStore) GetLatest(ctx context.Context, email string, purpose models.OtpPurpose) (*models.OtpCode, error) {
	return f.latest, nil
}

func (f *fakeStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	f.latest.Attempts++
	return f.latest.Attempts, nil
}

// chanMailer hands each delivered message to a channel so tests can wait for
// the background send.
type chanMailer struct {
	sent chan mailer.OtpMessage
}

func (m *chanMailer) SendOtp(ctx context.Context, msg mailer.OtpMessage) error {
	m.sent <- msg
	return nil
}

func newTestService(store *fakeStore, m mailer.Mailer, at time.Time) *Service {
	svc := NewService(store, m, DefaultConfig())
	svc.now = func() time.Time { return at }
	return svc
}

func TestGenerateCode(t *testing.T) {
	numeric := regexp.MustCompile(`^[0-9]+$`)
	for _, length := range []int{4, 6, 10} {
		code, err := GenerateCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length, "leading zeros must be preserved")
		assert.Regexp(t, numeric, code)
	}
}

func TestRequest_IssuesAndDelivers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{latest: &models.OtpCode{
		ID:        "otp-0",
		Code:      "999999",
		ExpiresAt: now.Add(5 * time.Minute),
	}}
	m := &chanMailer{sent: make(chan mailer.OtpMessage, 1)}
	svc := newTestService(store, m, now)

	err := svc.Request(context.Background(), "vet@acme.example", models.OtpPurposeLogin)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	rec := store.created[0]
	assert.Equal(t, "vet@acme.example", rec.Email)
	assert.Equal(t, models.OtpPurposeLogin, rec.Purpose)
	assert.Len(t, rec.Code, 6)
	assert.Equal(t, now.Add(10*time.Minute), rec.ExpiresAt)
	assert.Equal(t, 1, store.retired, "issuing must retire the previous live code")

	select {
	case msg := <-m.sent:
		assert.Equal(t, rec.Code, msg.Code)
		assert.Equal(t, "vet@acme.example", msg.Email)
		assert.Equal(t, 600, msg.ExpiresInSeconds)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background delivery")
	}
}

func TestRequest_RateLimited(t *testing.T) {
	store := &fakeStore{countSince: 5}
	svc := newTestService(store, mailer.Noop{}, time.Now())

	err := svc.Request(context.Background(), "vet@acme.example", models.OtpPurposeLogin)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, store.created, "no code row may be created past the cap")
}

func TestVerify_Success(t *testing.T) {
	now := time.Now()
	store := &fakeStore{latest: &models.OtpCode{
		ID:        "otp-1",
		Email:     "vet@acme.example",
		Code:      "123456",
		Purpose:   models.OtpPurposeLogin,
		ExpiresAt: now.Add(5 * time.Minute),
	}}
	svc := newTestService(store, mailer.Noop{}, now)

	consumed, err := svc.Verify(context.Background(), "vet@acme.example", "123456", models.OtpPurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, consumed)
	assert.True(t, consumed.IsUsed)
}

func TestVerify_SingleUse(t *testing.T) {
	now := time.Now()
	store := &fakeStore{latest: &models.OtpCode{
		ID:        "otp-1",
		Code:      "123456",
		ExpiresAt: now.Add(5 * time.Minute),
	}}
	svc := newTestService(store, mailer.Noop{}, now)

	_, err := svc.Verify(context.Background(), "vet@acme.example", "123456", models.OtpPurposeLogin)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), "vet@acme.example", "123456", models.OtpPurposeLogin)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestVerify_WrongCodeCountsAttempt(t *testing.T) {
	now := time.Now()
	store := &fakeStore{latest: &models.OtpCode{
		ID:        "otp-1",
		Code:      "123456",
		ExpiresAt: now.Add(5 * time.Minute),
	}}
	svc := newTestService(store, mailer.Noop{}, now)

	_, err := svc.Verify(context.Background(), "vet@acme.example", "654321", models.OtpPurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, 1, store.latest.Attempts)
}

func TestVerify_AttemptCeiling(t *testing.T) {
	now := time.Now()
	store := &fakeStore{latest: &models.OtpCode{
		ID:        "otp-1",
		Code:      "123456",
		ExpiresAt: now.Add(5 * time.Minute),
		Attempts:  4,
	}}
	svc := newTestService(store, mailer.Noop{}, now)

	// Fifth miss reaches the ceiling.
	_, err := svc.Verify(context.Background(), "vet@acme.example", "000000", models.OtpPurposeLogin)
	assert.ErrorIs(t, err, ErrAttemptsExceeded)

	// The right code is dead now too.
	_, err = svc.Verify(context.Background(), "vet@acme.example", "123456", models.OtpPurposeLogin)
	assert.ErrorIs(t, err, ErrAttemptsExceeded)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Now()
	store := &fakeStore{latest: &models.OtpCode{
		ID:        "otp-1",
		Code:      "123456",
		ExpiresAt: now.Add(-time.Minute),
	}}
	svc := newTestService(store, mailer.Noop{}, now)

	_, err := svc.Verify(context.Background(), "vet@acme.example", "123456", models.OtpPurposeLogin)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, store.latest.Attempts, "expired codes do not accrue attempts")
}

func TestVerify_NoCodeIssued(t *testing.T) {
	svc := newTestService(&fakeStore{}, mailer.Noop{}, time.Now())

	_, err := svc.Verify(context.Background(), "vet@acme.example", "123456", models.OtpPurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestIsOtpError(t *testing.T) {
	for _, err := range []error{ErrInvalidCode, ErrExpired, ErrAlreadyUsed, ErrAttemptsExceeded} {
		assert.True(t, IsOtpError(err), err.Error())
	}
	assert.False(t, IsOtpError(ErrRateLimited))
	assert.False(t, IsOtpError(context.Canceled))
}
